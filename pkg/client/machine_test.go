package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
)

// testTimings collapses every display delay so phase chains run immediately.
func testTimings() Timings {
	return Timings{
		MinLoading: 0,
		Shuffle:    time.Millisecond,
		// Long enough for the poll in waitForPhase to observe the
		// resolved-round screen before it auto-advances.
		Result:        150 * time.Millisecond,
		SplitTransit:  time.Millisecond,
		OutOfTokens:   time.Millisecond,
		Restart:       time.Millisecond,
		Reload:        time.Millisecond,
		ErrorRecovery: 25 * time.Millisecond,
	}
}

// callRecorder wraps a handler, recording the request paths in order.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
	next  http.Handler
}

func (c *callRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.calls = append(c.calls, r.URL.Path)
	c.mu.Unlock()
	c.next.ServeHTTP(w, r)
}

func (c *callRecorder) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.calls {
		if p == path {
			n++
		}
	}
	return n
}

func envelope(tokens int64, rs blackjack.RoundState) string {
	buf, _ := json.Marshal(map[string]any{
		"status":         "success",
		"current_tokens": tokens,
		"game_state":     rs,
	})
	return string(buf)
}

// sessionMux serves the session establishment endpoints every scenario
// needs, delegating game endpoints to the per-test mux.
func sessionMux(tokens func() int64, deckLen int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/initialize_session", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"user_id":"u1","client_id":"c1","tokens":%d}`, tokens())
	})
	mux.HandleFunc("/api/get_init_tokens_from_db", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"user_tokens":%d}`, tokens())
	})
	mux.HandleFunc("/api/get_deck_len", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"deckLen":%d}`, deckLen)
	})
	return mux
}

func newTestMachine(t *testing.T, handler http.Handler) (*Machine, *callRecorder) {
	rec := &callRecorder{next: handler}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	gw, err := NewGateway(srv.URL, testLogger(t).Logger("GW"))
	require.NoError(t, err)

	m := NewMachine(context.Background(), gw, "c1", t.TempDir(), testTimings(), testLogger(t).Logger("SM"))
	t.Cleanup(m.Close)

	// Drain UI updates so publishing never stalls on a full channel.
	go func() {
		for range m.UpdatesCh {
		}
	}()
	return m, rec
}

func waitForPhase(t *testing.T, m *Machine, phase blackjack.Phase) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.Phase() == phase {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("machine never reached %s, stuck in %s", phase, m.Phase())
}

func turnRound(bet, deckLen int) blackjack.RoundState {
	return blackjack.RoundState{
		Player: blackjack.PlayerHand{
			Hand:  []string{"♥10", "♣7"},
			Total: 17,
			State: blackjack.HandUnder21,
			Bet:   int64(bet),
		},
		DealerMasked: blackjack.DealerView{
			Hand:  []string{blackjack.MaskedCard, "♦9"},
			Total: 9,
		},
		DeckLen:     deckLen,
		Bet:         int64(bet),
		RoundActive: true,
	}
}

func TestMachineStartsIntoBetting(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	m, _ := newTestMachine(t, mux)
	m.Start()

	waitForPhase(t, m, blackjack.PhaseBetting)
	snap := m.Snapshot()
	assert.Equal(t, int64(1000), snap.Tokens)
	assert.Equal(t, 80, snap.Round.DeckLen)
}

func TestMachineStartsIntoOutOfTokensWhenBroke(t *testing.T) {
	var mu sync.Mutex
	tokens := int64(0)
	bank := func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return tokens
	}

	mux := sessionMux(bank, 80)
	mux.HandleFunc("/api/set_restart", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokens = 1000
		mu.Unlock()
		fmt.Fprint(w, envelope(1000, blackjack.RoundState{DeckLen: 0}))
	})
	m, rec := newTestMachine(t, mux)
	m.Start()

	// Broke at login: restart flow restores the bankroll and lands in
	// betting.
	waitForPhase(t, m, blackjack.PhaseBetting)
	assert.Equal(t, int64(1000), m.Snapshot().Tokens)
	assert.GreaterOrEqual(t, rec.count("/api/set_restart"), 1)
}

func TestPlaceBetUpdatesSnapshot(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/bet", func(w http.ResponseWriter, r *http.Request) {
		rs := blackjack.RoundState{DeckLen: 80, Bet: 100, BetList: []int64{100}, RoundActive: true}
		fmt.Fprint(w, envelope(900, rs))
	})
	m, _ := newTestMachine(t, mux)
	m.Start()
	waitForPhase(t, m, blackjack.PhaseBetting)

	m.PlaceBet(100)

	snap := m.Snapshot()
	assert.Equal(t, blackjack.PhaseBetting, snap.Phase)
	assert.Equal(t, int64(900), snap.Tokens)
	assert.Equal(t, int64(100), snap.Round.Bet)
}

func TestPlaceBetRejectsOverBankrollLocally(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	m, rec := newTestMachine(t, mux)
	m.Start()
	waitForPhase(t, m, blackjack.PhaseBetting)

	m.PlaceBet(2000)

	assert.Equal(t, 0, rec.count("/api/bet"), "over-bankroll bet must not reach the server")
	assert.Equal(t, blackjack.PhaseBetting, m.Phase())
}

func TestDealRoutesThroughShuffleOnFullShoe(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, blackjack.FullShoeSize)
	mux.HandleFunc("/api/bet", func(w http.ResponseWriter, r *http.Request) {
		rs := blackjack.RoundState{DeckLen: blackjack.FullShoeSize, Bet: 100, BetList: []int64{100}, RoundActive: true}
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/create_deck", func(w http.ResponseWriter, r *http.Request) {
		rs := blackjack.RoundState{DeckLen: blackjack.FullShoeSize, Bet: 100, RoundActive: true}
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/start_game", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(900, turnRound(100, 100)))
	})
	m, rec := newTestMachine(t, mux)
	m.Start()
	waitForPhase(t, m, blackjack.PhaseBetting)

	m.PlaceBet(100)
	m.Deal()

	waitForPhase(t, m, blackjack.PhaseMainTurn)
	assert.Equal(t, 1, rec.count("/api/create_deck"))
	assert.Equal(t, 1, rec.count("/api/start_game"))
}

func TestNaturalOnDealBypassesTurn(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/bet", func(w http.ResponseWriter, r *http.Request) {
		rs := blackjack.RoundState{DeckLen: 80, Bet: 100, BetList: []int64{100}, RoundActive: true}
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/start_game", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(100, 76)
		rs.Player.Hand = []string{"♥A", "♣K"}
		rs.Player.Total = 21
		rs.Natural = blackjack.WinnerBlackjackPlayer
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/rewards", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(0, 76)
		rs.Winner = blackjack.WinnerPlayerWon
		fmt.Fprint(w, envelope(1150, rs))
	})
	mux.HandleFunc("/api/round_end", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(1150, blackjack.RoundState{DeckLen: 76}))
	})
	m, rec := newTestMachine(t, mux)
	m.Start()
	waitForPhase(t, m, blackjack.PhaseBetting)

	m.PlaceBet(100)
	m.Deal()

	// Settlement happens without any turn action.
	waitForPhase(t, m, blackjack.PhaseBetting)
	assert.Equal(t, 1, rec.count("/api/rewards"))
	assert.Equal(t, 0, rec.count("/api/hit"))
	assert.Equal(t, 0, rec.count("/api/stand"))
	assert.Equal(t, int64(1150), m.Snapshot().Tokens)
}

// startIntoTurn drives a machine into the main turn phase.
func startIntoTurn(t *testing.T, mux *http.ServeMux) (*Machine, *callRecorder) {
	t.Helper()
	mux.HandleFunc("/api/bet", func(w http.ResponseWriter, r *http.Request) {
		rs := blackjack.RoundState{DeckLen: 80, Bet: 100, BetList: []int64{100}, RoundActive: true}
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/start_game", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(900, turnRound(100, 76)))
	})
	m, rec := newTestMachine(t, mux)
	m.Start()
	waitForPhase(t, m, blackjack.PhaseBetting)
	m.PlaceBet(100)
	m.Deal()
	waitForPhase(t, m, blackjack.PhaseMainTurn)
	return m, rec
}

func TestHitBustShortCircuitsToSettlement(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/hit", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(100, 75)
		rs.Player.Hand = []string{"♥10", "♣7", "♦9"}
		rs.Player.Total = 26
		rs.Player.State = blackjack.HandBust
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/stand", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(100, 75)
		rs.Player.Total = 26
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/rewards", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(0, 75)
		rs.Winner = blackjack.WinnerPlayerLost
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/round_end", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(900, blackjack.RoundState{DeckLen: 75}))
	})
	m, rec := startIntoTurn(t, mux)

	m.Hit()

	waitForPhase(t, m, blackjack.PhaseMainStand)
	assert.True(t, m.Flags().IsBust)
	assert.Equal(t, 1, rec.count("/api/stand"), "bust must force a stand")
	assert.Equal(t, 1, rec.count("/api/rewards"))
}

func TestDispatchGuardDropsConcurrentSubmission(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/hit", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		rs := turnRound(100, 75)
		rs.Player.Hand = []string{"♥10", "♣7", "♦2"}
		rs.Player.Total = 19
		fmt.Fprint(w, envelope(900, rs))
	})
	m, rec := startIntoTurn(t, mux)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Hit()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rec.count("/api/hit"), "second press during an outstanding request must be a no-op")
}

func TestSplitRejectionIsSilent(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/bet", func(w http.ResponseWriter, r *http.Request) {
		rs := blackjack.RoundState{DeckLen: 80, Bet: 100, BetList: []int64{100}, RoundActive: true}
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/start_game", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(100, 76)
		rs.Player.Hand = []string{"♥8", "♣8"}
		rs.Player.Total = 16
		rs.Player.CanSplit = true
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/split_request", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","error":"Split not possible."}`)
	})
	m, rec := newTestMachine(t, mux)
	m.Start()
	waitForPhase(t, m, blackjack.PhaseBetting)
	m.PlaceBet(100)
	m.Deal()
	waitForPhase(t, m, blackjack.PhaseMainTurn)

	m.Split()

	// The refusal reached the server but the turn continues undisturbed.
	assert.Equal(t, 1, rec.count("/api/split_request"))
	assert.Equal(t, blackjack.PhaseMainTurn, m.Phase())
	assert.False(t, m.Flags().IsSplit)
}

func TestSplitRoundSettlesEachHandOnce(t *testing.T) {
	dealer := blackjack.DealerView{Hand: []string{blackjack.MaskedCard, "♦9"}, Total: 9}
	splitRound := func(active blackjack.PlayerHand, queue []blackjack.PlayerHand, deckLen int) blackjack.RoundState {
		return blackjack.RoundState{
			Player:       active,
			Players:      queue,
			DealerMasked: dealer,
			DeckLen:      deckLen,
			Bet:          100,
			RoundActive:  true,
		}
	}
	hand1 := blackjack.PlayerHand{Hand: []string{"♥8", "♥10"}, Total: 18, State: blackjack.HandUnder21, Bet: 100}
	hand2 := blackjack.PlayerHand{Hand: []string{"♣8", "♦K"}, Total: 18, State: blackjack.HandUnder21, Bet: 100}
	hand1Stood, hand2Stood := hand1, hand2
	hand1Stood.Stood = true
	hand2Stood.Stood = true
	queued := blackjack.PlayerHand{Hand: []string{"♣8"}, Total: 8, State: blackjack.HandUnder21, Bet: 100}

	var mu sync.Mutex
	var standCalls, nextCalls, popCalls, rewardCalls int

	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/bet", func(w http.ResponseWriter, r *http.Request) {
		rs := blackjack.RoundState{DeckLen: 80, Bet: 100, BetList: []int64{100}, RoundActive: true}
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/start_game", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(100, 76)
		rs.Player.Hand = []string{"♥8", "♣8"}
		rs.Player.Total = 16
		rs.Player.CanSplit = true
		fmt.Fprint(w, envelope(900, rs))
	})
	mux.HandleFunc("/api/split_request", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(800, splitRound(hand1, []blackjack.PlayerHand{queued}, 75)))
	})
	mux.HandleFunc("/api/add_to_players_list_by_stand", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		standCalls++
		n := standCalls
		mu.Unlock()
		if n == 1 {
			fmt.Fprint(w, envelope(800, splitRound(hand1Stood, []blackjack.PlayerHand{queued, hand1Stood}, 75)))
			return
		}
		fmt.Fprint(w, envelope(800, splitRound(hand2Stood, []blackjack.PlayerHand{hand2Stood, hand1Stood}, 74)))
	})
	mux.HandleFunc("/api/add_split_player_to_game", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		nextCalls++
		n := nextCalls
		mu.Unlock()
		if n == 1 {
			fmt.Fprint(w, envelope(800, splitRound(hand2, []blackjack.PlayerHand{hand1Stood}, 74)))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","error":"No more split hands.","game_state_hint":"NO_MORE_SPLIT_HANDS"}`)
	})
	mux.HandleFunc("/api/add_player_from_players", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		popCalls++
		n := popCalls
		mu.Unlock()
		switch n {
		case 1:
			fmt.Fprint(w, envelope(800, splitRound(hand2Stood, []blackjack.PlayerHand{hand1Stood}, 74)))
		case 2:
			fmt.Fprint(w, envelope(1000, splitRound(hand1Stood, nil, 74)))
		default:
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":"error","error":"No more split hands.","game_state_hint":"NO_MORE_SPLIT_HANDS"}`)
		}
	})
	mux.HandleFunc("/api/rewards", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		rewardCalls++
		n := rewardCalls
		mu.Unlock()
		// Both hands hold 18 against the dealer's 14: even money each.
		if n == 1 {
			fmt.Fprint(w, envelope(1000, splitRound(hand2Stood, []blackjack.PlayerHand{hand1Stood}, 74)))
			return
		}
		fmt.Fprint(w, envelope(1200, splitRound(hand1Stood, nil, 74)))
	})
	mux.HandleFunc("/api/round_end", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(1200, blackjack.RoundState{DeckLen: 74}))
	})

	m, rec := newTestMachine(t, mux)
	m.Start()
	waitForPhase(t, m, blackjack.PhaseBetting)
	m.PlaceBet(100)
	m.Deal()
	waitForPhase(t, m, blackjack.PhaseMainTurn)

	m.Split()
	waitForPhase(t, m, blackjack.PhaseSplitTurn)
	assert.True(t, m.Flags().IsSplit)

	// Stand the first hand; the queued one activates and takes its turn.
	m.SplitStand()
	waitForPhase(t, m, blackjack.PhaseSplitTurn)
	assert.Equal(t, []string{"♣8", "♦K"}, m.Snapshot().Round.Player.Hand)

	// Stand the second; settlement walks pop-then-reward per hand.
	m.SplitStand()
	waitForPhase(t, m, blackjack.PhaseSplitFinishOutcome)
	waitForPhase(t, m, blackjack.PhaseBetting)

	assert.Equal(t, 2, rec.count("/api/rewards"), "exactly one settlement per hand")
	assert.Equal(t, 3, rec.count("/api/add_player_from_players"))
	assert.Equal(t, 2, rec.count("/api/add_to_players_list_by_stand"))
	assert.Equal(t, 1, rec.count("/api/round_end"))
	assert.Equal(t, int64(1200), m.Snapshot().Tokens)
}

func TestFailedRecoveryDoesNotRetry(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/hit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"status":"error","message":"CRITICAL SERVER ERROR"}`)
	})
	mux.HandleFunc("/api/force_restart", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"status":"error","message":"CRITICAL SERVER ERROR"}`)
	})
	m, rec := startIntoTurn(t, mux)

	m.Hit()
	waitForPhase(t, m, blackjack.PhaseError)

	// Give the machine several recovery intervals; the failed restart must
	// not be reattempted.
	time.Sleep(6 * testTimings().ErrorRecovery)
	assert.Equal(t, 1, rec.count("/api/force_restart"))
	assert.Equal(t, blackjack.PhaseError, m.Phase())
}

func TestServerFaultEntersErrorAndRecovers(t *testing.T) {
	mux := sessionMux(func() int64 { return 1000 }, 80)
	mux.HandleFunc("/api/hit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"status":"error","message":"CRITICAL SERVER ERROR"}`)
	})
	mux.HandleFunc("/api/force_restart", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(1000, blackjack.RoundState{DeckLen: 80}))
	})
	m, rec := startIntoTurn(t, mux)

	m.Hit()

	waitForPhase(t, m, blackjack.PhaseError)
	// Recovery rebuilds the session and returns to betting.
	waitForPhase(t, m, blackjack.PhaseBetting)
	assert.GreaterOrEqual(t, rec.count("/api/force_restart"), 1)
	assert.Equal(t, int64(1000), m.Snapshot().Tokens)
}

func TestRoundDepletingBankrollEntersOutOfTokens(t *testing.T) {
	var mu sync.Mutex
	tokens := int64(1000)
	bank := func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return tokens
	}

	mux := sessionMux(bank, 80)
	mux.HandleFunc("/api/stand", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(1000, 75)
		rs.DealerUnmasked = blackjack.DealerView{
			Hand:  []string{"♦9", "♠K"},
			Total: 19,
		}
		fmt.Fprint(w, envelope(0, rs))
	})
	mux.HandleFunc("/api/rewards", func(w http.ResponseWriter, r *http.Request) {
		rs := turnRound(0, 75)
		rs.Winner = blackjack.WinnerDealerWon
		fmt.Fprint(w, envelope(0, rs))
	})
	mux.HandleFunc("/api/round_end", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelope(0, blackjack.RoundState{DeckLen: 75}))
	})
	mux.HandleFunc("/api/set_restart", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokens = 1000
		mu.Unlock()
		fmt.Fprint(w, envelope(1000, blackjack.RoundState{}))
	})
	m, rec := startIntoTurn(t, mux)

	// Losing the whole bankroll routes through out-of-tokens and the
	// restart flow back to betting with a restored bankroll.
	m.Stand()

	waitForPhase(t, m, blackjack.PhaseBetting)
	assert.GreaterOrEqual(t, rec.count("/api/set_restart"), 1)
	assert.Equal(t, int64(1000), m.Snapshot().Tokens)
}
