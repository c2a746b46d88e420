package client

import (
	"errors"
	"fmt"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
)

// User action dispatchers. Each one validates eligibility against the current
// snapshot, acquires the in-flight guard so a second press while a request is
// outstanding is a no-op, performs the remote call(s) and transitions.
// Dispatchers never return a user-visible error for an expected rejection;
// fatal faults route the machine into the error phase and return nil to the
// caller, which only observes the phase change.

// beginAction takes the in-flight guard if the machine currently sits in one
// of the allowed phases. It returns the epoch the action runs under and a
// copy of the snapshot it was validated against.
func (m *Machine) beginAction(allowed ...blackjack.Phase) (uint64, blackjack.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.inFlight {
		return 0, blackjack.Snapshot{}, false
	}
	ok := false
	for _, p := range allowed {
		if m.snap.Phase == p {
			ok = true
			break
		}
	}
	if !ok {
		return 0, blackjack.Snapshot{}, false
	}
	m.inFlight = true
	m.flags.AwaitingServer = true
	return m.epoch, m.snap, true
}

// endAction releases the in-flight guard.
func (m *Machine) endAction() {
	m.mu.Lock()
	m.inFlight = false
	m.flags.AwaitingServer = false
	snap := m.snap
	flags := m.flags
	m.mu.Unlock()
	m.publish(StateMsg{Snap: snap, Flags: flags})
}

// failAction routes a fatal fault into the error phase.
func (m *Machine) failAction(e uint64, err error) {
	m.log.Errorf("entering error phase: %v", err)
	m.publish(ErrorMsg{Err: err})
	m.advanceAndRun(e, blackjack.PhaseError, nil)
}

// PlaceBet stakes amount tokens on the coming round. Bets accumulate until
// the deal.
func (m *Machine) PlaceBet(amount int64) {
	e, snap, ok := m.beginAction(blackjack.PhaseBetting)
	if !ok {
		return
	}
	defer m.endAction()

	if amount <= 0 || amount > snap.Tokens {
		m.log.Debugf("bet %d rejected locally (tokens=%d)", amount, snap.Tokens)
		return
	}
	raw, err := m.gw.PlaceBet(m.ctx, amount)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	m.applyInPhase(e, blackjack.PhaseBetting, raw, "place bet")
}

// RetakeBet withdraws the most recent bet increment.
func (m *Machine) RetakeBet() {
	e, snap, ok := m.beginAction(blackjack.PhaseBetting)
	if !ok {
		return
	}
	defer m.endAction()

	if len(snap.Round.BetList) == 0 {
		return
	}
	raw, err := m.gw.RetakeBet(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	m.applyInPhase(e, blackjack.PhaseBetting, raw, "retake bet")
}

// Deal starts the round with the staked bet, routing through the shuffle
// screen when the shoe requires it.
func (m *Machine) Deal() {
	e, snap, ok := m.beginAction(blackjack.PhaseBetting)
	if !ok {
		return
	}
	defer m.endAction()

	if snap.Round.Bet <= 0 {
		return
	}
	if blackjack.NeedsShuffle(snap.Round.DeckLen) {
		m.advanceAndRun(e, blackjack.PhaseShuffling, nil)
		return
	}
	m.advanceAndRun(e, blackjack.PhaseInitGame, nil)
}

// Hit draws a card for the main hand. A hand reaching or passing 21
// immediately stands and settles; the turn phase is never re-entered.
func (m *Machine) Hit() {
	e, _, ok := m.beginAction(blackjack.PhaseMainTurn)
	if !ok {
		return
	}
	defer m.endAction()

	raw, err := m.gw.Hit(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	tokens, rs, okp := ExtractSnapshot(raw)
	if !okp {
		m.failAction(e, fmt.Errorf("hit: malformed server payload"))
		return
	}

	bust := rs.Player.Total > 21
	if rs.Player.Total >= 21 {
		m.standAndSettle(e, tokens, rs, bust)
		return
	}

	m.advance(e, blackjack.PhaseMainTurn, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		f.HasActedThisTurn = true
	})
}

// Stand ends the main hand's turn; the dealer plays out and the round
// settles.
func (m *Machine) Stand() {
	e, _, ok := m.beginAction(blackjack.PhaseMainTurn)
	if !ok {
		return
	}
	defer m.endAction()

	raw, err := m.gw.Stand(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	tokens, rs, okp := ExtractSnapshot(raw)
	if !okp {
		m.failAction(e, fmt.Errorf("stand: malformed server payload"))
		return
	}
	m.advanceAndRun(e, blackjack.PhaseMainStandRewards, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
	})
}

// Double doubles the wager and forces exactly one hit followed by a stand,
// whatever the resulting total.
func (m *Machine) Double() {
	e, snap, ok := m.beginAction(blackjack.PhaseMainTurn)
	if !ok {
		return
	}
	defer m.endAction()

	flags := m.Flags()
	if !blackjack.CanDouble(snap.Tokens, snap.Round.Bet, flags.HasActedThisTurn) {
		return
	}
	if _, err := m.gw.Double(m.ctx); err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	raw, err := m.gw.Hit(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	tokens, rs, okp := ExtractSnapshot(raw)
	if !okp {
		m.failAction(e, fmt.Errorf("double: malformed server payload"))
		return
	}
	m.standAndSettle(e, tokens, rs, rs.Player.Total > 21)
}

// standAndSettle performs the forced stand after a terminal hit and moves to
// settlement.
func (m *Machine) standAndSettle(e uint64, tokens int64, rs blackjack.RoundState, bust bool) {
	raw, err := m.gw.Stand(m.ctx)
	if err != nil && !errors.Is(err, ErrRejected) {
		m.failAction(e, err)
		return
	}
	if err == nil {
		if t2, rs2, ok := ExtractSnapshot(raw); ok {
			tokens, rs = t2, rs2
		}
	}
	m.advanceAndRun(e, blackjack.PhaseMainStandRewards, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		f.HasActedThisTurn = true
		f.IsBust = bust
	})
}

// Insure places the insurance side bet. When the dealer holds a natural the
// round resolves immediately; otherwise play continues with the side bet
// lost.
func (m *Machine) Insure() {
	e, snap, ok := m.beginAction(blackjack.PhaseMainTurn)
	if !ok {
		return
	}
	defer m.endAction()

	flags := m.Flags()
	if !blackjack.CanInsure(snap.Round.DealerUnmasked, snap.Tokens, snap.Round.Bet, flags.InsurancePlaced) {
		return
	}
	raw, err := m.gw.Insurance(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	tokens, rs, okp := ExtractSnapshot(raw)
	if !okp {
		m.failAction(e, fmt.Errorf("insurance: malformed server payload"))
		return
	}

	if blackjack.InsuranceWon(rs.DealerUnmasked.Natural) {
		m.advanceAndRun(e, blackjack.PhaseMainStandRewards, func(s *blackjack.Snapshot, f *SessionFlags) {
			s.Tokens = tokens
			s.Round = rs
			f.InsurancePlaced = true
		})
		return
	}

	m.advance(e, blackjack.PhaseMainTurn, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		f.InsurancePlaced = true
		f.InsuranceLost = true
	})
}

// Split divides the active pair into two hands. A server refusal (split cap
// reached, not a pair anymore) is silent.
func (m *Machine) Split() {
	e, snap, ok := m.beginAction(blackjack.PhaseMainTurn, blackjack.PhaseSplitTurn)
	if !ok {
		return
	}
	defer m.endAction()

	flags := m.Flags()
	hand := snap.Round.Player
	if snap.Phase == blackjack.PhaseMainTurn && snap.Round.Bet > 0 {
		hand.Bet = snap.Round.Bet
	}
	if !blackjack.CanSplit(hand, snap.Tokens, flags.HasActedThisTurn, len(snap.Round.Players)) {
		return
	}
	raw, err := m.gw.Split(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			m.log.Debugf("split rejected by server")
			return
		}
		m.failAction(e, err)
		return
	}
	tokens, rs, okp := ExtractSnapshot(raw)
	if !okp {
		m.failAction(e, fmt.Errorf("split: malformed server payload"))
		return
	}

	apply := func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		f.IsSplit = true
		resetHandFlags(f)
	}
	if splitFromAces(rs.Player.Hand) {
		m.advanceAndRun(e, blackjack.PhaseSplitAceTransit, apply)
		return
	}
	if rs.Player.Natural != blackjack.WinnerNone || rs.Player.State == blackjack.HandBlackjack || rs.Player.Total == 21 {
		m.advanceAndRun(e, blackjack.PhaseSplitNat21Transit, apply)
		return
	}
	m.advance(e, blackjack.PhaseSplitTurn, apply)
}

// SplitHit draws a card for the active split hand. The first hit keeps the
// double affordance open; reaching or passing 21 stands the hand
// automatically.
func (m *Machine) SplitHit() {
	e, _, ok := m.beginAction(blackjack.PhaseSplitTurn, blackjack.PhaseSplitStandDouble)
	if !ok {
		return
	}
	defer m.endAction()

	raw, err := m.gw.SplitHit(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	tokens, rs, okp := ExtractSnapshot(raw)
	if !okp {
		m.failAction(e, fmt.Errorf("split hit: malformed server payload"))
		return
	}

	flags := m.Flags()
	bust := rs.Player.Total > 21

	apply := func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		f.HasActedThisTurn = true
		f.SplitHitCount = flags.SplitHitCount + 1
		f.IsBust = bust
	}
	if rs.Player.Total >= 21 {
		m.advanceAndRun(e, blackjack.PhaseSplitStand, apply)
		return
	}
	if flags.SplitHitCount == 0 {
		// One card in: doubling stays on the table for this hand.
		m.advance(e, blackjack.PhaseSplitStandDouble, apply)
		return
	}
	m.advance(e, blackjack.PhaseSplitTurn, apply)
}

// SplitStand stands the active split hand and activates the next queued one.
func (m *Machine) SplitStand() {
	e, _, ok := m.beginAction(blackjack.PhaseSplitTurn, blackjack.PhaseSplitStandDouble)
	if !ok {
		return
	}
	defer m.endAction()

	m.advanceAndRun(e, blackjack.PhaseSplitStand, nil)
}

// SplitDouble doubles the active split hand's wager, draws its one forced
// card and stands it. Legal until the hand's second hit.
func (m *Machine) SplitDouble() {
	e, snap, ok := m.beginAction(blackjack.PhaseSplitTurn, blackjack.PhaseSplitStandDouble)
	if !ok {
		return
	}
	defer m.endAction()

	flags := m.Flags()
	if flags.SplitHitCount > 1 || snap.Tokens < snap.Round.Player.Bet || snap.Round.Player.Bet <= 0 {
		return
	}
	raw, err := m.gw.SplitDouble(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return
		}
		m.failAction(e, err)
		return
	}
	tokens, rs, okp := ExtractSnapshot(raw)
	if !okp {
		m.failAction(e, fmt.Errorf("split double: malformed server payload"))
		return
	}
	m.advanceAndRun(e, blackjack.PhaseSplitStand, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		f.HasActedThisTurn = true
		f.IsBust = rs.Player.Total > 21
	})
}

// applyInPhase replaces the snapshot from a raw action response without
// changing phase.
func (m *Machine) applyInPhase(e uint64, phase blackjack.Phase, raw []byte, what string) {
	tokens, rs, ok := ExtractSnapshot(raw)
	if !ok {
		m.failAction(e, fmt.Errorf("%s: malformed server payload", what))
		return
	}
	m.advance(e, phase, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
	})
}
