package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
	"github.com/BiroNora/BlackJack-01/pkg/statemachine"
)

// Phase-entry handlers. Each runs under the epoch it was scheduled with and
// returns the next link of a self-driving chain, or nil when the machine
// settles in a passive phase (or the chain was superseded).

// enterLoading establishes the session: it registers or resumes the client
// identity, fetches the bankroll and deck length, and holds the loading
// screen for at least the configured minimum.
func (m *Machine) enterLoading(e uint64) statemachine.StateFn[Machine] {
	if !m.aliveAt(e) {
		return nil
	}
	start := time.Now()

	info, err := m.gw.InitializeSession(m.ctx, m.identity)
	if err != nil {
		return m.toError(e, err)
	}
	if info.ClientID != "" && info.ClientID != m.identity {
		// The server is authoritative over the identity it recognizes.
		m.mu.Lock()
		m.identity = info.ClientID
		m.mu.Unlock()
		if err := SaveIdentity(m.datadir, info.ClientID); err != nil {
			m.log.Warnf("unable to persist client identity: %v", err)
		}
	}

	tokens, err := m.gw.InitTokens(m.ctx)
	if err != nil {
		return m.toError(e, err)
	}
	deckLen, err := m.gw.DeckLen(m.ctx)
	if err != nil {
		return m.toError(e, err)
	}

	if remain := m.timings.MinLoading - time.Since(start); remain > 0 {
		if !m.wait(e, remain) {
			return nil
		}
	} else if !m.aliveAt(e) {
		return nil
	}

	if tokens <= 0 {
		next, ok := m.advance(e, blackjack.PhaseOutOfTokens, func(s *blackjack.Snapshot, f *SessionFlags) {
			s.Tokens = tokens
			s.Round = blackjack.EmptyRound(deckLen)
			resetRoundFlags(f)
		})
		if !ok {
			return nil
		}
		return m.chain(next, blackjack.PhaseOutOfTokens)
	}

	m.advance(e, blackjack.PhaseBetting, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = blackjack.EmptyRound(deckLen)
		resetRoundFlags(f)
	})
	return nil
}

// enterShuffling asks the server for a fresh two-deck shoe, shows the shuffle
// screen for its fixed duration and then deals.
func (m *Machine) enterShuffling(e uint64) statemachine.StateFn[Machine] {
	if !m.aliveAt(e) {
		return nil
	}
	raw, err := m.gw.Shuffle(m.ctx)
	if err != nil {
		return m.toError(e, err)
	}
	tokens, rs, ok := ExtractSnapshot(raw)
	if !ok {
		return m.toError(e, fmt.Errorf("shuffle: malformed server payload"))
	}
	if !m.wait(e, m.timings.Shuffle) {
		return nil
	}
	next, alive := m.advance(e, blackjack.PhaseInitGame, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
	})
	if !alive {
		return nil
	}
	return m.chain(next, blackjack.PhaseInitGame)
}

// enterInitGame deals the opening hands. A natural on the deal bypasses the
// turn phase entirely and goes straight to settlement.
func (m *Machine) enterInitGame(e uint64) statemachine.StateFn[Machine] {
	if !m.aliveAt(e) {
		return nil
	}
	raw, err := m.gw.StartRound(m.ctx)
	if err != nil {
		return m.toError(e, err)
	}
	tokens, rs, ok := ExtractSnapshot(raw)
	if !ok {
		return m.toError(e, fmt.Errorf("start round: malformed server payload"))
	}

	if rs.Natural != blackjack.WinnerNone {
		next, alive := m.advance(e, blackjack.PhaseMainStandRewards, func(s *blackjack.Snapshot, f *SessionFlags) {
			s.Tokens = tokens
			s.Round = rs
			resetRoundFlags(f)
		})
		if !alive {
			return nil
		}
		return m.chain(next, blackjack.PhaseMainStandRewards)
	}

	m.advance(e, blackjack.PhaseMainTurn, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		resetRoundFlags(f)
	})
	return nil
}

// enterMainStandRewards settles the single-hand round and moves to the
// outcome screen.
func (m *Machine) enterMainStandRewards(e uint64) statemachine.StateFn[Machine] {
	if !m.aliveAt(e) {
		return nil
	}
	raw, err := m.gw.Rewards(m.ctx, false)
	if err != nil {
		return m.toError(e, err)
	}
	tokens, rs, ok := ExtractSnapshot(raw)
	if !ok {
		return m.toError(e, fmt.Errorf("rewards: malformed server payload"))
	}
	next, alive := m.advance(e, blackjack.PhaseMainStand, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
	})
	if !alive {
		return nil
	}
	return m.chain(next, blackjack.PhaseMainStand)
}

// enterMainStand shows the round outcome, then returns to betting or, on a
// depleted bankroll, to the out-of-tokens screen.
func (m *Machine) enterMainStand(e uint64) statemachine.StateFn[Machine] {
	if !m.wait(e, m.timings.Result) {
		return nil
	}
	return m.finishRound(e)
}

// finishRound closes the round on the server and routes to betting or
// out-of-tokens depending on the bankroll. Shared by the single-hand and
// split outcome screens.
func (m *Machine) finishRound(e uint64) statemachine.StateFn[Machine] {
	if _, err := m.gw.RoundEnd(m.ctx); err != nil && !errors.Is(err, ErrRejected) {
		return m.toError(e, err)
	}

	m.mu.RLock()
	tokens := m.snap.Tokens
	deckLen := m.snap.Round.DeckLen
	m.mu.RUnlock()

	if tokens <= 0 {
		next, ok := m.advance(e, blackjack.PhaseOutOfTokens, nil)
		if !ok {
			return nil
		}
		return m.chain(next, blackjack.PhaseOutOfTokens)
	}

	m.advance(e, blackjack.PhaseBetting, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Round = blackjack.EmptyRound(deckLen)
		resetRoundFlags(f)
	})
	return nil
}

// enterSplitStand records the active split hand as stood and activates the
// next queued hand, or moves to settlement when the queue is exhausted.
func (m *Machine) enterSplitStand(e uint64) statemachine.StateFn[Machine] {
	if !m.aliveAt(e) {
		return nil
	}
	raw, err := m.gw.SplitStand(m.ctx)
	if err != nil && !errors.Is(err, ErrRejected) {
		return m.toError(e, err)
	}
	if err == nil {
		if tokens, rs, ok := ExtractSnapshot(raw); ok {
			if _, alive := m.advance(e, blackjack.PhaseSplitStand, func(s *blackjack.Snapshot, f *SessionFlags) {
				s.Tokens = tokens
				s.Round = rs
			}); !alive {
				return nil
			}
			m.mu.RLock()
			e = m.epoch
			m.mu.RUnlock()
		}
	}

	raw, err = m.gw.NextSplitHand(m.ctx)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			// No hand left to activate; the round is ready to settle.
			next, ok := m.advance(e, blackjack.PhaseSplitFinish, nil)
			if !ok {
				return nil
			}
			return m.chain(next, blackjack.PhaseSplitFinish)
		}
		return m.toError(e, err)
	}
	tokens, rs, ok := ExtractSnapshot(raw)
	if !ok {
		return m.toError(e, fmt.Errorf("next split hand: malformed server payload"))
	}

	apply := func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		resetHandFlags(f)
	}

	switch {
	case rs.Player.Natural != blackjack.WinnerNone || rs.Player.State == blackjack.HandBlackjack:
		next, alive := m.advance(e, blackjack.PhaseSplitNat21Transit, apply)
		if !alive {
			return nil
		}
		return m.chain(next, blackjack.PhaseSplitNat21Transit)
	case splitFromAces(rs.Player.Hand):
		next, alive := m.advance(e, blackjack.PhaseSplitAceTransit, apply)
		if !alive {
			return nil
		}
		return m.chain(next, blackjack.PhaseSplitAceTransit)
	default:
		m.advance(e, blackjack.PhaseSplitTurn, apply)
		return nil
	}
}

// splitFromAces reports whether the freshly activated hand came from
// splitting aces. The kept card is always first; the second is the one drawn
// on activation.
func splitFromAces(hand []string) bool {
	return len(hand) == 2 && blackjack.CardRank(hand[0]) == "A"
}

// enterSplitNat21Transit briefly shows the twenty-one notice on a split hand
// and then stands it automatically.
func (m *Machine) enterSplitNat21Transit(e uint64) statemachine.StateFn[Machine] {
	if !m.wait(e, m.timings.SplitTransit) {
		return nil
	}
	next, ok := m.advance(e, blackjack.PhaseSplitStand, nil)
	if !ok {
		return nil
	}
	return m.chain(next, blackjack.PhaseSplitStand)
}

// enterSplitAceTransit handles a hand split from aces: it receives exactly
// one card, is shown briefly, then stands automatically.
func (m *Machine) enterSplitAceTransit(e uint64) statemachine.StateFn[Machine] {
	if !m.wait(e, m.timings.SplitTransit) {
		return nil
	}
	next, ok := m.advance(e, blackjack.PhaseSplitStand, nil)
	if !ok {
		return nil
	}
	return m.chain(next, blackjack.PhaseSplitStand)
}

// enterSplitFinish settles the stood split hands one at a time: pop the
// next hand off the queue, reward it, repeat until the server reports the
// queue empty. The hand sitting in the active slot when settlement begins
// is a copy of a queued hand, so only popped hands are ever rewarded; any
// other order would pay that hand twice.
func (m *Machine) enterSplitFinish(e uint64) statemachine.StateFn[Machine] {
	for {
		if !m.aliveAt(e) {
			return nil
		}
		raw, err := m.gw.PopSplitHand(m.ctx)
		if err != nil {
			if errors.Is(err, ErrRejected) {
				break
			}
			return m.toError(e, err)
		}
		if tokens, rs, ok := ExtractSnapshot(raw); ok {
			next, alive := m.advance(e, blackjack.PhaseSplitFinish, func(s *blackjack.Snapshot, f *SessionFlags) {
				s.Tokens = tokens
				s.Round = rs
			})
			if !alive {
				return nil
			}
			e = next
		}

		raw, err = m.gw.Rewards(m.ctx, true)
		if err != nil {
			return m.toError(e, err)
		}
		tokens, rs, ok := ExtractSnapshot(raw)
		if !ok {
			return m.toError(e, fmt.Errorf("split rewards: malformed server payload"))
		}
		next, alive := m.advance(e, blackjack.PhaseSplitFinish, func(s *blackjack.Snapshot, f *SessionFlags) {
			s.Tokens = tokens
			s.Round = rs
		})
		if !alive {
			return nil
		}
		e = next
	}

	next, ok := m.advance(e, blackjack.PhaseSplitFinishOutcome, nil)
	if !ok {
		return nil
	}
	return m.chain(next, blackjack.PhaseSplitFinishOutcome)
}

// enterSplitFinishOutcome shows the aggregate split outcome, then closes the
// round.
func (m *Machine) enterSplitFinishOutcome(e uint64) statemachine.StateFn[Machine] {
	if !m.wait(e, m.timings.Result) {
		return nil
	}
	return m.finishRound(e)
}

// enterOutOfTokens restores the bankroll server-side and shows the depleted
// screen before restarting.
func (m *Machine) enterOutOfTokens(e uint64) statemachine.StateFn[Machine] {
	if !m.aliveAt(e) {
		return nil
	}
	raw, err := m.gw.SetRestart(m.ctx)
	if err != nil && !errors.Is(err, ErrRejected) {
		return m.toError(e, err)
	}
	if err == nil {
		if tokens, rs, ok := ExtractSnapshot(raw); ok {
			if _, alive := m.advance(e, blackjack.PhaseOutOfTokens, func(s *blackjack.Snapshot, f *SessionFlags) {
				s.Tokens = tokens
				s.Round = rs
			}); !alive {
				return nil
			}
			m.mu.RLock()
			e = m.epoch
			m.mu.RUnlock()
		}
	}
	if !m.wait(e, m.timings.OutOfTokens) {
		return nil
	}
	next, ok := m.advance(e, blackjack.PhaseRestartGame, nil)
	if !ok {
		return nil
	}
	return m.chain(next, blackjack.PhaseRestartGame)
}

// enterRestartGame is a short interstitial before the session reloads.
func (m *Machine) enterRestartGame(e uint64) statemachine.StateFn[Machine] {
	if !m.wait(e, m.timings.Restart) {
		return nil
	}
	next, ok := m.advance(e, blackjack.PhaseReloading, func(s *blackjack.Snapshot, f *SessionFlags) {
		resetRoundFlags(f)
	})
	if !ok {
		return nil
	}
	return m.chain(next, blackjack.PhaseReloading)
}

// enterReloading re-runs session establishment after a restart.
func (m *Machine) enterReloading(e uint64) statemachine.StateFn[Machine] {
	if !m.wait(e, m.timings.Reload) {
		return nil
	}
	next, ok := m.advance(e, blackjack.PhaseLoading, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Round = blackjack.EmptyRound(s.Round.DeckLen)
		resetRoundFlags(f)
	})
	if !ok {
		return nil
	}
	return m.chain(next, blackjack.PhaseLoading)
}

// enterError waits out the recovery delay, then forces a single server-side
// restart under the persisted identity. A failed recovery is logged and the
// machine stays in the error phase; there is no automatic retry.
func (m *Machine) enterError(e uint64) statemachine.StateFn[Machine] {
	if !m.wait(e, m.timings.ErrorRecovery) {
		return nil
	}
	m.mu.RLock()
	id := m.identity
	m.mu.RUnlock()

	raw, err := m.gw.ForceRestart(m.ctx, id)
	if err != nil {
		m.log.Errorf("forced restart failed, staying in error phase: %v", err)
		return nil
	}
	tokens, rs, ok := ExtractSnapshot(raw)
	if !ok {
		// Restart succeeded but the payload was unusable; reload cold.
		tokens, rs = 0, blackjack.EmptyRound(0)
	}
	next, alive := m.advance(e, blackjack.PhaseReloading, func(s *blackjack.Snapshot, f *SessionFlags) {
		s.Tokens = tokens
		s.Round = rs
		resetRoundFlags(f)
	})
	if !alive {
		return nil
	}
	return m.chain(next, blackjack.PhaseReloading)
}
