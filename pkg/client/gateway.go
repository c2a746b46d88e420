package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/decred/slog"
)

// Endpoint paths of the remote game server.
const (
	epInitSession  = "/api/initialize_session"
	epInitTokens   = "/api/get_init_tokens_from_db"
	epDeckLen      = "/api/get_deck_len"
	epBet          = "/api/bet"
	epRetakeBet    = "/api/retake_bet"
	epShuffle      = "/api/create_deck"
	epStartGame    = "/api/start_game"
	epHit          = "/api/hit"
	epStand        = "/api/stand"
	epDouble       = "/api/double_request"
	epInsurance    = "/api/ins_request"
	epSplit        = "/api/split_request"
	epSplitHit     = "/api/split_hit"
	epSplitStand   = "/api/add_to_players_list_by_stand"
	epSplitNext    = "/api/add_split_player_to_game"
	epSplitPop     = "/api/add_player_from_players"
	epSplitDouble  = "/api/split_double_request"
	epRewards      = "/api/rewards"
	epRoundEnd     = "/api/round_end"
	epSetRestart   = "/api/set_restart"
	epForceRestart = "/api/force_restart"
)

// FaultKind classifies gateway failures for the round state machine.
type FaultKind int

const (
	// ExpectedRejection is a round-logic refusal the caller anticipated
	// (e.g. probing for another split hand). Handled silently.
	ExpectedRejection FaultKind = iota
	// ServerFault is a server-side failure or a malformed error body.
	ServerFault
	// TransportFailure means no usable response arrived at all.
	TransportFailure
	// ValidationFailure means a response arrived but did not carry the
	// expected snapshot shape.
	ValidationFailure
)

func (k FaultKind) String() string {
	switch k {
	case ExpectedRejection:
		return "expected rejection"
	case ServerFault:
		return "server fault"
	case TransportFailure:
		return "transport failure"
	case ValidationFailure:
		return "validation failure"
	}
	return "unknown"
}

// ErrRejected matches any CallError carrying an ExpectedRejection.
var ErrRejected = errors.New("action rejected by server")

// CallError is the gateway's uniform failure value.
type CallError struct {
	Kind     FaultKind
	Endpoint string
	Status   int
	// Message is the server's error string, when one was decoded.
	Message string
	Err     error
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Endpoint, e.Message, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Endpoint, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s: %s, status %d", e.Endpoint, e.Kind, e.Status)
}

func (e *CallError) Unwrap() error { return e.Err }

// Is lets callers test for expected rejections with errors.Is(err, ErrRejected).
func (e *CallError) Is(target error) bool {
	return target == ErrRejected && e.Kind == ExpectedRejection
}

// IsFatal reports whether the failure must abort the round.
func (e *CallError) IsFatal() bool {
	return e.Kind != ExpectedRejection
}

// errorBody is the structured error shape the server uses for refusals.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"game_state_hint"`
}

// Gateway performs one remote call per invocation against the game server,
// normalizing transport failures and server-reported errors into the
// FaultKind taxonomy. A cookie jar keeps the server session sticky.
type Gateway struct {
	baseURL string
	httpc   *http.Client
	log     slog.Logger
}

// NewGateway returns a gateway for the server at baseURL.
func NewGateway(baseURL string, log slog.Logger) (*Gateway, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
		},
		log: log,
	}, nil
}

// call POSTs payload (or nil) to endpoint and returns the decoded body.
func (g *Gateway) call(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, &CallError{Kind: ServerFault, Endpoint: endpoint, Err: err}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, body)
	if err != nil {
		return nil, &CallError{Kind: TransportFailure, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(req)
	if err != nil {
		cerr := &CallError{Kind: TransportFailure, Endpoint: endpoint, Err: err}
		g.log.Errorf("transport failure on %s: %v", endpoint, err)
		return nil, cerr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		cerr := &CallError{Kind: TransportFailure, Endpoint: endpoint, Status: resp.StatusCode, Err: err}
		g.log.Errorf("reading response from %s: %v", endpoint, err)
		return nil, cerr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	// A 4xx with a structured error body is normal game-logic control flow
	// (e.g. "No more split hands."); it must not pollute the error log.
	var eb errorBody
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		if jsonErr := json.Unmarshal(raw, &eb); jsonErr == nil && eb.Error != "" {
			g.log.Debugf("%s rejected: %s (%s)", endpoint, eb.Error, eb.Hint)
			return nil, &CallError{
				Kind:     ExpectedRejection,
				Endpoint: endpoint,
				Status:   resp.StatusCode,
				Message:  eb.Error,
			}
		}
	}

	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	cerr := &CallError{Kind: ServerFault, Endpoint: endpoint, Status: resp.StatusCode, Message: msg}
	g.log.Errorf("server fault on %s: status %d, body %q", endpoint, resp.StatusCode, truncate(raw, 256))
	return nil, cerr
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// SessionInfo is the response of the session initialization endpoint.
type SessionInfo struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id"`
	Tokens   int64  `json:"tokens"`
}

// InitializeSession associates this client with a server-side session. The
// returned ClientID may differ from the submitted one; callers must persist
// the server's value.
func (g *Gateway) InitializeSession(ctx context.Context, clientID string) (*SessionInfo, error) {
	raw, err := g.call(ctx, epInitSession, map[string]string{"client_id": clientID})
	if err != nil {
		return nil, err
	}
	var info SessionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &CallError{Kind: ValidationFailure, Endpoint: epInitSession, Err: err}
	}
	return &info, nil
}

// InitTokens fetches the bankroll and creates a fresh server-side game.
func (g *Gateway) InitTokens(ctx context.Context) (int64, error) {
	raw, err := g.call(ctx, epInitTokens, nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		UserTokens *int64 `json:"user_tokens"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.UserTokens == nil {
		return 0, &CallError{Kind: ValidationFailure, Endpoint: epInitTokens, Err: err}
	}
	return *resp.UserTokens, nil
}

// DeckLen fetches the number of undealt cards in the shoe.
func (g *Gateway) DeckLen(ctx context.Context) (int, error) {
	raw, err := g.call(ctx, epDeckLen, nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		DeckLen *int `json:"deckLen"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.DeckLen == nil {
		return 0, &CallError{Kind: ValidationFailure, Endpoint: epDeckLen, Err: err}
	}
	return *resp.DeckLen, nil
}

// PlaceBet wagers amount on the current round.
func (g *Gateway) PlaceBet(ctx context.Context, amount int64) (json.RawMessage, error) {
	return g.call(ctx, epBet, map[string]int64{"bet": amount})
}

// RetakeBet returns the most recent wager increment to the bankroll.
func (g *Gateway) RetakeBet(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epRetakeBet, nil)
}

// Shuffle asks the server to rebuild and shuffle the shoe.
func (g *Gateway) Shuffle(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epShuffle, nil)
}

// StartRound deals the initial hands.
func (g *Gateway) StartRound(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epStartGame, nil)
}

// Hit draws one card to the active hand.
func (g *Gateway) Hit(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epHit, nil)
}

// Stand finishes the player's turn; the dealer plays out its hand.
func (g *Gateway) Stand(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epStand, nil)
}

// Double doubles the wager; the server enforces one hit then stand.
func (g *Gateway) Double(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epDouble, nil)
}

// Insurance places the insurance side bet.
func (g *Gateway) Insurance(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epInsurance, nil)
}

// Split divides the current pair into two hands. May fail with an
// ExpectedRejection when no split slot remains.
func (g *Gateway) Split(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epSplit, nil)
}

// SplitHit draws one card to the active split hand.
func (g *Gateway) SplitHit(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epSplitHit, nil)
}

// SplitStand records the active split hand as finished.
func (g *Gateway) SplitStand(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epSplitStand, nil)
}

// NextSplitHand activates the next queued split hand, dealing its second
// card. Fails with an ExpectedRejection when no hand remains.
func (g *Gateway) NextSplitHand(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epSplitNext, nil)
}

// PopSplitHand moves the next finished split hand into the active slot for
// payout computation. Fails with an ExpectedRejection when none remains.
func (g *Gateway) PopSplitHand(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epSplitPop, nil)
}

// SplitDouble doubles the active split hand's wager.
func (g *Gateway) SplitDouble(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epSplitDouble, nil)
}

// Rewards settles the payout for the current hand, or for the current split
// hand when isSplit is set.
func (g *Gateway) Rewards(ctx context.Context, isSplit bool) (json.RawMessage, error) {
	return g.call(ctx, epRewards, map[string]bool{"is_splitted": isSplit})
}

// RoundEnd clears the finished round on the server.
func (g *Gateway) RoundEnd(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epRoundEnd, nil)
}

// SetRestart resets the bankroll after the player runs out of tokens.
func (g *Gateway) SetRestart(ctx context.Context) (json.RawMessage, error) {
	return g.call(ctx, epSetRestart, nil)
}

// ForceRestart is the recovery path out of the error phase: it rebuilds the
// server-side session for the given client identifier.
func (g *Gateway) ForceRestart(ctx context.Context, clientID string) (json.RawMessage, error) {
	return g.call(ctx, epForceRestart, map[string]string{"client_id": clientID})
}
