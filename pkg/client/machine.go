package client

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/decred/slog"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
	"github.com/BiroNora/BlackJack-01/pkg/statemachine"
)

// SessionFlags are the derived, ephemeral flags the machine keeps next to the
// snapshot. They are reset when a round starts and mutated only by the
// dispatcher whose action they describe.
type SessionFlags struct {
	// InsurancePlaced is set once the insurance side bet was taken.
	InsurancePlaced bool
	// InsuranceLost drives the "insurance lost" notice on the turn screen.
	InsuranceLost bool
	// HasActedThisTurn gates double and split: once any hit happened on the
	// active hand, both stay illegal for the remainder of its turn.
	HasActedThisTurn bool
	// IsBust mirrors the active hand going over 21.
	IsBust bool
	// IsSplit is set for the whole remainder of a round once a split happened.
	IsSplit bool
	// SplitHitCount distinguishes a split hand's first hit (double still
	// offered) from subsequent ones.
	SplitHitCount int
	// AwaitingServer guards against duplicate submissions while a request
	// is outstanding.
	AwaitingServer bool
}

// StateMsg is published to the UI whenever the snapshot or the derived flags
// change.
type StateMsg struct {
	Snap  blackjack.Snapshot
	Flags SessionFlags
}

// ErrorMsg is published when the machine enters the error phase.
type ErrorMsg struct {
	Err error
}

// Machine is the round state machine: the single owner of the canonical
// snapshot and the derived session flags, and the only component allowed to
// request a phase transition. All mutation flows through its dispatchers and
// phase-entry handlers; consumers get value copies.
type Machine struct {
	mu    sync.RWMutex
	snap  blackjack.Snapshot
	flags SessionFlags

	// epoch increments on every transition. Timers and async continuations
	// capture the epoch they started under and no-op once it moved on, so a
	// late timer can never override a newer transition.
	epoch    uint64
	closed   bool
	inFlight bool

	gw       *Gateway
	sm       *statemachine.StateMachine[Machine]
	log      slog.Logger
	timings  Timings
	identity string
	datadir  string

	// UpdatesCh carries StateMsg/ErrorMsg values to the UI.
	UpdatesCh chan tea.Msg

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMachine creates a round machine bound to the given gateway and client
// identity. Call Start to enter the loading phase.
func NewMachine(ctx context.Context, gw *Gateway, identity, datadir string, timings Timings, log slog.Logger) *Machine {
	ctx, cancel := context.WithCancel(ctx)
	m := &Machine{
		snap: blackjack.Snapshot{
			Phase: blackjack.PhaseLoading,
			Round: blackjack.EmptyRound(0),
		},
		gw:        gw,
		log:       log,
		timings:   timings,
		identity:  identity,
		datadir:   datadir,
		UpdatesCh: make(chan tea.Msg, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.sm = statemachine.NewStateMachine[Machine](m, nil)
	return m
}

// Start enters the loading phase. Idempotent only across distinct machines;
// call it once.
func (m *Machine) Start() {
	m.mu.RLock()
	e := m.epoch
	m.mu.RUnlock()
	m.runEntry(e, blackjack.PhaseLoading)
}

// Close tears the machine down, cancelling every pending timer and
// continuation.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
}

// Snapshot returns a copy of the canonical snapshot.
func (m *Machine) Snapshot() blackjack.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Flags returns a copy of the derived session flags.
func (m *Machine) Flags() SessionFlags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags
}

// Phase returns the current phase.
func (m *Machine) Phase() blackjack.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Phase
}

// Identity returns the client identifier the machine runs under.
func (m *Machine) Identity() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// aliveAt reports whether epoch e is still current and the machine is open.
func (m *Machine) aliveAt(e uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.epoch == e
}

// wait sleeps for d and reports whether the epoch survived. It returns early
// on teardown.
func (m *Machine) wait(e uint64, d time.Duration) bool {
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-m.ctx.Done():
			return false
		case <-t.C:
		}
	}
	return m.aliveAt(e)
}

// advance applies a transition if epoch e is still current: it replaces the
// phase, runs apply against the snapshot, publishes the result and returns
// the new epoch. ok=false means the transition was superseded and dropped.
func (m *Machine) advance(e uint64, phase blackjack.Phase, apply func(*blackjack.Snapshot, *SessionFlags)) (uint64, bool) {
	m.mu.Lock()
	if m.closed || m.epoch != e {
		m.mu.Unlock()
		return 0, false
	}
	m.epoch++
	next := m.epoch
	prev := m.snap.Phase
	m.snap.Phase = phase
	if apply != nil {
		apply(&m.snap, &m.flags)
	}
	snap := m.snap
	flags := m.flags
	m.mu.Unlock()

	m.log.Debugf("phase %s -> %s (tokens=%d bet=%d)", prev, phase, snap.Tokens, snap.Round.Bet)
	m.publish(StateMsg{Snap: snap, Flags: flags})
	return next, true
}

// advanceAndRun is advance plus scheduling of the target phase's entry
// handler.
func (m *Machine) advanceAndRun(e uint64, phase blackjack.Phase, apply func(*blackjack.Snapshot, *SessionFlags)) bool {
	next, ok := m.advance(e, phase, apply)
	if !ok {
		return false
	}
	m.runEntry(next, phase)
	return true
}

// runEntry schedules the entry handler of phase under epoch e. Passive
// phases have no handler. The handler chain runs on the adapted state
// machine so each self-driving phase returns the next one's state function.
func (m *Machine) runEntry(e uint64, phase blackjack.Phase) {
	fn := m.entryStateFn(e, phase)
	if fn == nil {
		return
	}
	go m.sm.Run(fn)
}

// entryStateFn maps a phase to its entry state function, or nil for passive
// phases (BETTING, MAIN_TURN, SPLIT_TURN, SPLIT_STAND_DOUBLE).
func (m *Machine) entryStateFn(e uint64, phase blackjack.Phase) statemachine.StateFn[Machine] {
	switch phase {
	case blackjack.PhaseLoading:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterLoading(e) }
	case blackjack.PhaseShuffling:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterShuffling(e) }
	case blackjack.PhaseInitGame:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterInitGame(e) }
	case blackjack.PhaseMainStandRewards:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterMainStandRewards(e) }
	case blackjack.PhaseMainStand:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterMainStand(e) }
	case blackjack.PhaseSplitStand:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterSplitStand(e) }
	case blackjack.PhaseSplitNat21Transit:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterSplitNat21Transit(e) }
	case blackjack.PhaseSplitAceTransit:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterSplitAceTransit(e) }
	case blackjack.PhaseSplitFinish:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterSplitFinish(e) }
	case blackjack.PhaseSplitFinishOutcome:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterSplitFinishOutcome(e) }
	case blackjack.PhaseOutOfTokens:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterOutOfTokens(e) }
	case blackjack.PhaseRestartGame:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterRestartGame(e) }
	case blackjack.PhaseReloading:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterReloading(e) }
	case blackjack.PhaseError:
		return func(mm *Machine) statemachine.StateFn[Machine] { return mm.enterError(e) }
	}
	return nil
}

// chain wraps a phase-entry method into a state function for the next link
// of a self-driving chain.
func (m *Machine) chain(e uint64, phase blackjack.Phase) statemachine.StateFn[Machine] {
	return m.entryStateFn(e, phase)
}

// publish sends a message to the UI channel without blocking; a full channel
// drops the update.
func (m *Machine) publish(msg tea.Msg) {
	select {
	case m.UpdatesCh <- msg:
	default:
		m.log.Warnf("updates channel full, dropping message")
	}
}

// toError transitions to the error phase from any failed remote call.
func (m *Machine) toError(e uint64, err error) statemachine.StateFn[Machine] {
	m.log.Errorf("entering error phase: %v", err)
	m.publish(ErrorMsg{Err: err})
	next, ok := m.advance(e, blackjack.PhaseError, nil)
	if !ok {
		return nil
	}
	return m.chain(next, blackjack.PhaseError)
}

// resetRoundFlags clears the per-round derived flags. Runs inside an apply
// callback, under the machine lock.
func resetRoundFlags(f *SessionFlags) {
	f.InsurancePlaced = false
	f.InsuranceLost = false
	f.HasActedThisTurn = false
	f.IsBust = false
	f.IsSplit = false
	f.SplitHitCount = 0
}

// resetHandFlags clears the per-hand flags when the next split hand becomes
// active.
func resetHandFlags(f *SessionFlags) {
	f.HasActedThisTurn = false
	f.IsBust = false
	f.SplitHitCount = 0
}
