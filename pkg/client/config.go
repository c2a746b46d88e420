package client

import (
	"flag"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vctt94/bisonbotkit/logging"
	butils "github.com/vctt94/bisonbotkit/utils"

	"github.com/BiroNora/BlackJack-01/pkg/utils"
)

// Timings holds the delays of the auto-advancing phases. These shape the
// pacing of the table, not its correctness; tests shrink them to near zero.
type Timings struct {
	// MinLoading is the minimum display duration of the loading screen.
	MinLoading time.Duration
	// Shuffle is the shuffle animation delay before dealing.
	Shuffle time.Duration
	// Result is how long a resolved round stays on screen before the next
	// betting phase.
	Result time.Duration
	// SplitTransit paces the natural-21 and ace short-circuit split phases.
	SplitTransit time.Duration
	// OutOfTokens is the pause on the out-of-tokens screen.
	OutOfTokens time.Duration
	// Restart is the pause on the restart screen.
	Restart time.Duration
	// Reload is the pause on the reloading screen.
	Reload time.Duration
	// ErrorRecovery is the wait before the error phase attempts a forced
	// session restart.
	ErrorRecovery time.Duration
}

// DefaultTimings matches the pacing of the reference deployment.
func DefaultTimings() Timings {
	return Timings{
		MinLoading:    4 * time.Second,
		Shuffle:       2 * time.Second,
		Result:        3 * time.Second,
		SplitTransit:  1500 * time.Millisecond,
		OutOfTokens:   3 * time.Second,
		Restart:       2 * time.Second,
		Reload:        400 * time.Millisecond,
		ErrorRecovery: 7 * time.Second,
	}
}

// AppConfig carries everything the client binaries need.
type AppConfig struct {
	// ServerURL is the base URL of the game server.
	ServerURL string
	// DataDir holds the identity file and logs.
	DataDir string
	// Debug is the logging debug level.
	Debug string
	// Timings paces the auto-advancing phases.
	Timings Timings
}

// Flags is the set of command line flags shared by the client binaries.
type Flags struct {
	ServerURL *string
	DataDir   *string
	Debug     *string
}

// RegisterClientFlags registers the shared client flags on the default set.
func RegisterClientFlags() *Flags {
	return &Flags{
		ServerURL: flag.String("server", "http://localhost:8080", "Base URL of the blackjack server"),
		DataDir:   flag.String("datadir", "", "Directory for identity and logs"),
		Debug:     flag.String("debug", "info", "Debug level for logging"),
	}
}

// LoadConfig resolves flags into an AppConfig, applying the datadir
// convention when none was given.
func LoadConfig(appName string, flags *Flags) (*AppConfig, error) {
	datadir := *flags.DataDir
	if datadir == "" {
		datadir = butils.AppDataDir(appName, false)
	}
	if err := utils.EnsureDataDirExists(datadir); err != nil {
		return nil, fmt.Errorf("create datadir: %w", err)
	}
	return &AppConfig{
		ServerURL: *flags.ServerURL,
		DataDir:   datadir,
		Debug:     *flags.Debug,
		Timings:   DefaultTimings(),
	}, nil
}

// SetupLogging builds the shared log backend writing under the datadir.
func SetupLogging(cfg *AppConfig, logName string) (*logging.LogBackend, error) {
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:     filepath.Join(cfg.DataDir, "logs", logName+".log"),
		DebugLevel:  cfg.Debug,
		MaxLogFiles: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %v", err)
	}
	return logBackend, nil
}
