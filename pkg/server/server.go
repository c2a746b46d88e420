package server

import (
	"context"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/vctt94/bisonbotkit/logging"
)

// Server is the authoritative blackjack game server: per-session games, a
// persistent bankroll and the JSON API the browser and terminal clients
// speak.
type Server struct {
	log      slog.Logger
	db       Database
	sessions *SessionStore
}

// NewServer creates a server over the given database.
func NewServer(db Database, logBackend *logging.LogBackend) *Server {
	return &Server{
		log:      logBackend.Logger("SERVER"),
		db:       db,
		sessions: NewSessionStore(),
	}
}

// Handler builds the API routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/initialize_session", s.handleInitializeSession)
	mux.HandleFunc("POST /api/force_restart", s.handleForceRestart)

	mux.HandleFunc("POST /api/get_init_tokens_from_db", s.requireUser(s.handleInitTokens))

	mux.HandleFunc("POST /api/get_deck_len", s.requireGame(s.handleDeckLen))
	mux.HandleFunc("POST /api/bet", s.requireGame(s.handleBet))
	mux.HandleFunc("POST /api/retake_bet", s.requireGame(s.handleRetakeBet))
	mux.HandleFunc("POST /api/create_deck", s.requireGame(s.handleCreateDeck))
	mux.HandleFunc("POST /api/start_game", s.requireGame(s.handleStartGame))
	mux.HandleFunc("POST /api/hit", s.requireGame(s.handleHit))
	mux.HandleFunc("POST /api/stand", s.requireGame(s.handleStand))
	mux.HandleFunc("POST /api/double_request", s.requireGame(s.handleDouble))
	mux.HandleFunc("POST /api/ins_request", s.requireGame(s.handleInsurance))
	mux.HandleFunc("POST /api/split_request", s.requireGame(s.handleSplit))
	mux.HandleFunc("POST /api/split_hit", s.requireGame(s.handleSplitHit))
	mux.HandleFunc("POST /api/add_to_players_list_by_stand", s.requireGame(s.handleSplitStand))
	mux.HandleFunc("POST /api/add_split_player_to_game", s.requireGame(s.handleSplitNext))
	mux.HandleFunc("POST /api/add_player_from_players", s.requireGame(s.handleSplitPop))
	mux.HandleFunc("POST /api/split_double_request", s.requireGame(s.handleSplitDouble))
	mux.HandleFunc("POST /api/rewards", s.requireGame(s.handleRewards))
	mux.HandleFunc("POST /api/round_end", s.requireGame(s.handleRoundEnd))
	mux.HandleFunc("POST /api/set_restart", s.requireGame(s.handleSetRestart))

	return mux
}

// Run serves the API on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
