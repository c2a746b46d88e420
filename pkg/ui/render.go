package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
	"github.com/BiroNora/BlackJack-01/pkg/utils"
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.snap.Phase {
	case blackjack.PhaseLoading, blackjack.PhaseReloading:
		b.WriteString(noticeStyle.Render("Connecting to the table..."))
	case blackjack.PhaseShuffling:
		b.WriteString(noticeStyle.Render("Shuffling a fresh shoe..."))
	case blackjack.PhaseInitGame:
		b.WriteString(noticeStyle.Render("Dealing..."))
	case blackjack.PhaseOutOfTokens:
		b.WriteString(m.renderTable())
		b.WriteString(outcomeStyle.Render("Out of tokens! Your bankroll will be restored."))
	case blackjack.PhaseRestartGame:
		b.WriteString(noticeStyle.Render("Restarting the game..."))
	case blackjack.PhaseError:
		b.WriteString(m.renderError())
	case blackjack.PhaseBetting:
		b.WriteString(m.renderBetting())
	case blackjack.PhaseMainStand, blackjack.PhaseSplitFinishOutcome:
		b.WriteString(m.renderTable())
		b.WriteString(m.renderOutcome())
	case blackjack.PhaseMainStandRewards, blackjack.PhaseSplitFinish:
		b.WriteString(m.renderTable())
	case blackjack.PhaseSplitNat21Transit:
		b.WriteString(m.renderTable())
		b.WriteString(noticeStyle.Render("Twenty-one! This hand stands."))
	case blackjack.PhaseSplitAceTransit:
		b.WriteString(m.renderTable())
		b.WriteString(noticeStyle.Render("Split aces take one card each."))
	default:
		b.WriteString(m.renderTable())
		b.WriteString(m.renderActions())
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("♠ Blackjack")
	bank := bankStyle.Render(fmt.Sprintf("Tokens: %s", utils.FormatTokens(m.snap.Tokens)))
	deck := helpStyle.Render(fmt.Sprintf("shoe: %d cards", m.snap.Round.DeckLen))
	return lipgloss.JoinHorizontal(lipgloss.Center, title, bank, deck)
}

func (m Model) renderBetting() string {
	var b strings.Builder
	b.WriteString(noticeStyle.Render("Place your bet"))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("  staked: %s", utils.FormatTokens(m.snap.Round.Bet))))
	if len(m.snap.Round.BetList) > 0 {
		chips := make([]string, len(m.snap.Round.BetList))
		for i, c := range m.snap.Round.BetList {
			chips[i] = utils.FormatTokens(c)
		}
		b.WriteString(helpStyle.Render("  chips: " + strings.Join(chips, " + ")))
	}
	if m.betInput != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(fmt.Sprintf("amount: %s_", m.betInput)))
	}
	b.WriteString("\n")
	b.WriteString(m.renderActions())
	return b.String()
}

// renderTable draws the dealer's hand on top and the player's hand(s) below.
func (m Model) renderTable() string {
	var b strings.Builder

	dealer := m.dealerView()
	b.WriteString(handBoxStyle.Render(
		"Dealer\n" + renderCards(dealer.Hand) + dealerTotal(dealer),
	))
	b.WriteString("\n")

	active := m.snap.Round.Player
	playerBox := activeHandStyle.Render(
		"You" + betSuffix(active.Bet) + "\n" + renderCards(active.Hand) + handTotal(active),
	)
	boxes := []string{playerBox}
	for _, h := range m.snap.Round.Players {
		if h.ID == active.ID && active.ID != "" {
			continue
		}
		boxes = append(boxes, handBoxStyle.Render(
			"Hand"+betSuffix(h.Bet)+"\n"+renderCards(h.Hand)+handTotal(h),
		))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	if m.flags.InsuranceLost {
		b.WriteString(noticeStyle.Render("Insurance lost."))
		b.WriteString("\n")
	}
	return b.String()
}

// dealerView picks the masked hand while the player still acts and the
// revealed one once the round resolves.
func (m Model) dealerView() blackjack.DealerView {
	switch m.snap.Phase {
	case blackjack.PhaseMainTurn, blackjack.PhaseSplitTurn,
		blackjack.PhaseSplitStand, blackjack.PhaseSplitStandDouble,
		blackjack.PhaseSplitNat21Transit, blackjack.PhaseSplitAceTransit:
		return m.snap.Round.DealerMasked
	}
	if len(m.snap.Round.DealerUnmasked.Hand) > 0 {
		return m.snap.Round.DealerUnmasked
	}
	return m.snap.Round.DealerMasked
}

func (m Model) renderOutcome() string {
	w := m.snap.Round.Winner
	if w == blackjack.WinnerNone {
		return ""
	}
	return outcomeStyle.Render(w.OutcomeText())
}

func (m Model) renderError() string {
	msg := "Connection trouble. Recovering..."
	if m.err != nil {
		msg = fmt.Sprintf("Connection trouble: %v\nRecovering...", m.err)
	}
	return errorStyle.Render(msg)
}

func (m Model) renderActions() string {
	if len(m.actions) == 0 {
		return ""
	}
	parts := make([]string, len(m.actions))
	for i, a := range m.actions {
		if i == m.selectedItem {
			parts[i] = selectedActionStyle.Render(string(a))
		} else {
			parts[i] = actionStyle.Render(string(a))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m Model) renderHelp() string {
	switch m.snap.Phase {
	case blackjack.PhaseBetting:
		return helpStyle.Render("z/x/c/v: chip 10/20/50/100 • digits then b: custom bet • ↑/↓ + enter: action • q: quit")
	case blackjack.PhaseMainTurn, blackjack.PhaseSplitTurn, blackjack.PhaseSplitStandDouble:
		return helpStyle.Render("↑/↓ + enter: action • q: quit")
	}
	return helpStyle.Render("q: quit")
}

func renderCards(cards []string) string {
	if len(cards) == 0 {
		return ""
	}
	parts := make([]string, len(cards))
	for i, c := range cards {
		switch {
		case c == blackjack.MaskedCard:
			parts[i] = maskedCardStyle.Render("?")
		case strings.HasPrefix(c, "♥") || strings.HasPrefix(c, "♦"):
			parts[i] = redCardStyle.Render(c)
		default:
			parts[i] = cardStyle.Render(c)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func handTotal(h blackjack.PlayerHand) string {
	if len(h.Hand) == 0 {
		return ""
	}
	suffix := ""
	switch h.State {
	case blackjack.HandBust:
		suffix = " BUST"
	case blackjack.HandBlackjack:
		suffix = " BLACKJACK"
	}
	return fmt.Sprintf("\ntotal: %d%s", h.Total, suffix)
}

func dealerTotal(d blackjack.DealerView) string {
	if len(d.Hand) == 0 {
		return ""
	}
	for _, c := range d.Hand {
		if c == blackjack.MaskedCard {
			return ""
		}
	}
	return fmt.Sprintf("\ntotal: %d", d.Total)
}

func betSuffix(bet int64) string {
	if bet <= 0 {
		return ""
	}
	return fmt.Sprintf(" (bet %s)", utils.FormatTokens(bet))
}
