// Command blackjackctl is a command line prober for the game server: it
// drives single API calls the way the interactive client would, printing the
// resulting round state. Useful for poking at a running server during
// development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/vctt94/bisonbotkit/logging"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
	"github.com/BiroNora/BlackJack-01/pkg/client"
	"github.com/BiroNora/BlackJack-01/pkg/utils"
)

var (
	serverURL = flag.String("server", "http://localhost:8080", "Game server base URL")
	clientID  = flag.String("id", "", "Client identity to register under")
	debug     = flag.String("debug", "warn", "Debug level for logging")
	asJSON    = flag.Bool("json", false, "Print raw JSON instead of tables")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args] [command ...]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands run in order against one session, e.g.:")
	fmt.Fprintf(os.Stderr, "  %s shuffle bet 100 deal hit stand rewards end\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  session            Initialize a session; prints ids and tokens")
	fmt.Fprintln(os.Stderr, "  tokens             Fetch the bankroll (starts a fresh game)")
	fmt.Fprintln(os.Stderr, "  deck               Print the number of undealt cards")
	fmt.Fprintln(os.Stderr, "  shuffle            Build and shuffle a fresh shoe")
	fmt.Fprintln(os.Stderr, "  bet N              Stake N tokens")
	fmt.Fprintln(os.Stderr, "  retake             Withdraw the last stake increment")
	fmt.Fprintln(os.Stderr, "  deal               Deal the opening hands")
	fmt.Fprintln(os.Stderr, "  hit|stand|double   Main-hand actions")
	fmt.Fprintln(os.Stderr, "  insure|split       Side actions")
	fmt.Fprintln(os.Stderr, "  rewards [--split]  Settle the current hand")
	fmt.Fprintln(os.Stderr, "  end                Close the round")
	fmt.Fprintln(os.Stderr, "  restart            Force a server-side restart")
	fmt.Fprintln(os.Stderr, "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	logBackend, err := logging.NewLogBackend(logging.LogConfig{DebugLevel: *debug})
	if err != nil {
		pterm.Error.Printfln("logging: %v", err)
		os.Exit(1)
	}
	gw, err := client.NewGateway(*serverURL, logBackend.Logger("CTL"))
	if err != nil {
		pterm.Error.Printfln("gateway: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Every game call needs the session cookie and a server-side game first.
	if flag.Arg(0) != "session" && flag.Arg(0) != "restart" {
		if _, err := gw.InitializeSession(ctx, *clientID); err != nil {
			pterm.Error.Printfln("initialize session: %v", err)
			os.Exit(1)
		}
		if flag.Arg(0) != "tokens" {
			if _, err := gw.InitTokens(ctx); err != nil {
				pterm.Error.Printfln("init tokens: %v", err)
				os.Exit(1)
			}
		}
	}

	args := flag.Args()
	for len(args) > 0 {
		cmd := args[0]
		var rest []string
		rest, err = run(ctx, gw, cmd, args[1:])
		if err != nil {
			pterm.Error.Printfln("%s: %v", cmd, err)
			os.Exit(1)
		}
		args = rest
	}
}

// run executes one command, consuming any arguments it takes, and returns
// the remaining ones.
func run(ctx context.Context, gw *client.Gateway, cmd string, args []string) ([]string, error) {
	switch cmd {
	case "session":
		info, err := gw.InitializeSession(ctx, *clientID)
		if err != nil {
			return nil, err
		}
		pterm.Success.Printfln("user %s (client %s), %s tokens",
			info.UserID, info.ClientID, utils.FormatTokens(info.Tokens))
		return args, nil
	case "tokens":
		tokens, err := gw.InitTokens(ctx)
		if err != nil {
			return nil, err
		}
		pterm.Success.Printfln("bankroll: %s tokens", utils.FormatTokens(tokens))
		return args, nil
	case "deck":
		n, err := gw.DeckLen(ctx)
		if err != nil {
			return nil, err
		}
		pterm.Info.Printfln("shoe holds %d cards", n)
		return args, nil
	case "shuffle":
		return args, report(gw.Shuffle(ctx))
	case "bet":
		if len(args) == 0 {
			return nil, fmt.Errorf("bet needs an amount")
		}
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad amount %q", args[0])
		}
		return args[1:], report(gw.PlaceBet(ctx, amount))
	case "retake":
		return args, report(gw.RetakeBet(ctx))
	case "deal":
		return args, report(gw.StartRound(ctx))
	case "hit":
		return args, report(gw.Hit(ctx))
	case "stand":
		return args, report(gw.Stand(ctx))
	case "double":
		return args, report(gw.Double(ctx))
	case "insure":
		return args, report(gw.Insurance(ctx))
	case "split":
		return args, report(gw.Split(ctx))
	case "rewards":
		if len(args) > 0 && args[0] == "--split" {
			return args[1:], report(gw.Rewards(ctx, true))
		}
		return args, report(gw.Rewards(ctx, false))
	case "end":
		return args, report(gw.RoundEnd(ctx))
	case "restart":
		return args, report(gw.ForceRestart(ctx, *clientID))
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// report prints the round state of an action response.
func report(raw json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	if *asJSON {
		fmt.Println(string(raw))
		return nil
	}
	tokens, rs, ok := client.ExtractSnapshot(raw)
	if !ok {
		fmt.Println(string(raw))
		return nil
	}

	pterm.Info.Printfln("tokens: %s  bet: %s  shoe: %d cards",
		utils.FormatTokens(tokens), utils.FormatTokens(rs.Bet), rs.DeckLen)

	rows := pterm.TableData{{"hand", "cards", "total", "bet"}}
	rows = append(rows, []string{"you", utils.FormatCards(rs.Player.Hand),
		strconv.Itoa(rs.Player.Total), utils.FormatTokens(rs.Player.Bet)})
	for i, h := range rs.Players {
		rows = append(rows, []string{fmt.Sprintf("split %d", i+1),
			utils.FormatCards(h.Hand), strconv.Itoa(h.Total), utils.FormatTokens(h.Bet)})
	}
	dealer := rs.DealerUnmasked
	if len(dealer.Hand) == 0 {
		dealer = rs.DealerMasked
	}
	rows = append(rows, []string{"dealer", utils.FormatCards(dealer.Hand),
		strconv.Itoa(dealer.Total), ""})
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	if rs.Winner != blackjack.WinnerNone {
		pterm.Success.Printfln("%s", rs.Winner.OutcomeText())
	}
	return nil
}
