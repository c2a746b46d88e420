package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
	"github.com/BiroNora/BlackJack-01/pkg/client"
)

// action is one entry of the per-phase action menu.
type action string

const (
	actionDeal      action = "Deal"
	actionRetakeBet action = "Retake Bet"
	actionHit       action = "Hit"
	actionStand     action = "Stand"
	actionDouble    action = "Double"
	actionSplit     action = "Split"
	actionInsure    action = "Insure"
	actionQuit      action = "Quit"
)

// Model contains all the state for the terminal UI. The round machine owns
// the game state; the model only mirrors the latest published snapshot.
type Model struct {
	ctx        context.Context
	dispatcher *CommandDispatcher

	snap  blackjack.Snapshot
	flags client.SessionFlags
	err   error

	actions      []action
	selectedItem int

	// betInput collects typed digits while betting.
	betInput string

	width  int
	height int
}

// NewModel creates the UI model bound to a running round machine.
func NewModel(ctx context.Context, d *CommandDispatcher) Model {
	m := Model{
		ctx:        ctx,
		dispatcher: d,
		snap:       d.machine.Snapshot(),
	}
	m.actions = actionsForPhase(m.snap, m.flags)
	return m
}

func (m Model) Init() tea.Cmd {
	return m.dispatcher.waitForUpdate()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case client.StateMsg:
		m.snap = msg.Snap
		m.flags = msg.Flags
		if m.snap.Phase != blackjack.PhaseBetting {
			m.betInput = ""
		}
		m.actions = actionsForPhase(m.snap, m.flags)
		if m.selectedItem >= len(m.actions) {
			m.selectedItem = 0
		}
		if m.snap.Phase != blackjack.PhaseError {
			m.err = nil
		}
		return m, m.dispatcher.waitForUpdate()

	case client.ErrorMsg:
		m.err = msg.Err
		return m, m.dispatcher.waitForUpdate()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		m.selectedItem = max(0, m.selectedItem-1)
		return m, nil
	case "down", "j":
		m.selectedItem = min(len(m.actions)-1, m.selectedItem+1)
		return m, nil
	case "enter":
		return m.activate()
	}

	if m.snap.Phase == blackjack.PhaseBetting {
		return m.handleBetKey(msg)
	}
	return m, nil
}

// activate runs the selected menu action.
func (m Model) activate() (tea.Model, tea.Cmd) {
	if len(m.actions) == 0 {
		return m, nil
	}
	switch m.actions[m.selectedItem] {
	case actionDeal:
		return m, m.dispatcher.dealCmd()
	case actionRetakeBet:
		return m, m.dispatcher.retakeBetCmd()
	case actionHit:
		if m.snap.Phase == blackjack.PhaseMainTurn {
			return m, m.dispatcher.hitCmd()
		}
		return m, m.dispatcher.splitHitCmd()
	case actionStand:
		if m.snap.Phase == blackjack.PhaseMainTurn {
			return m, m.dispatcher.standCmd()
		}
		return m, m.dispatcher.splitStandCmd()
	case actionDouble:
		if m.snap.Phase == blackjack.PhaseMainTurn {
			return m, m.dispatcher.doubleCmd()
		}
		return m, m.dispatcher.splitDoubleCmd()
	case actionSplit:
		return m, m.dispatcher.splitCmd()
	case actionInsure:
		return m, m.dispatcher.insureCmd()
	case actionQuit:
		return m, tea.Quit
	}
	return m, nil
}

// actionsForPhase builds the menu offered on the current screen. Only legal
// actions are listed; the machine re-validates on dispatch anyway.
func actionsForPhase(snap blackjack.Snapshot, flags client.SessionFlags) []action {
	var out []action
	switch snap.Phase {
	case blackjack.PhaseBetting:
		if snap.Round.Bet > 0 {
			out = append(out, actionDeal, actionRetakeBet)
		}
	case blackjack.PhaseMainTurn:
		out = append(out, actionHit, actionStand)
		if blackjack.CanDouble(snap.Tokens, snap.Round.Bet, flags.HasActedThisTurn) {
			out = append(out, actionDouble)
		}
		hand := snap.Round.Player
		if hand.Bet == 0 {
			hand.Bet = snap.Round.Bet
		}
		if blackjack.CanSplit(hand, snap.Tokens, flags.HasActedThisTurn, len(snap.Round.Players)) {
			out = append(out, actionSplit)
		}
		if blackjack.CanInsure(snap.Round.DealerUnmasked, snap.Tokens, snap.Round.Bet, flags.InsurancePlaced) {
			out = append(out, actionInsure)
		}
	case blackjack.PhaseSplitTurn:
		out = append(out, actionHit, actionStand)
		if blackjack.CanSplit(snap.Round.Player, snap.Tokens, flags.HasActedThisTurn, len(snap.Round.Players)) {
			out = append(out, actionSplit)
		}
		if flags.SplitHitCount == 0 && snap.Tokens >= snap.Round.Player.Bet && snap.Round.Player.Bet > 0 {
			out = append(out, actionDouble)
		}
	case blackjack.PhaseSplitStandDouble:
		out = append(out, actionHit, actionStand, actionDouble)
	}
	return append(out, actionQuit)
}
