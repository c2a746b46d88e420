package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BiroNora/BlackJack-01/pkg/client"
)

// CommandDispatcher dispatches UI commands to the round machine. Machine
// dispatchers block on the network, so every command runs off the bubbletea
// goroutine; the resulting state arrives through the updates channel, not as
// a command return value.
type CommandDispatcher struct {
	machine *client.Machine
}

// NewCommandDispatcher creates a dispatcher for the given machine.
func NewCommandDispatcher(machine *client.Machine) *CommandDispatcher {
	return &CommandDispatcher{machine: machine}
}

// waitForUpdate blocks on the machine's updates channel and forwards the next
// message into the bubbletea loop. Re-armed after every received message.
func (d *CommandDispatcher) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return <-d.machine.UpdatesCh
	}
}

func (d *CommandDispatcher) placeBetCmd(amount int64) tea.Cmd {
	return func() tea.Msg {
		d.machine.PlaceBet(amount)
		return nil
	}
}

func (d *CommandDispatcher) retakeBetCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.RetakeBet()
		return nil
	}
}

func (d *CommandDispatcher) dealCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.Deal()
		return nil
	}
}

func (d *CommandDispatcher) hitCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.Hit()
		return nil
	}
}

func (d *CommandDispatcher) standCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.Stand()
		return nil
	}
}

func (d *CommandDispatcher) doubleCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.Double()
		return nil
	}
}

func (d *CommandDispatcher) insureCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.Insure()
		return nil
	}
}

func (d *CommandDispatcher) splitCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.Split()
		return nil
	}
}

func (d *CommandDispatcher) splitHitCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.SplitHit()
		return nil
	}
}

func (d *CommandDispatcher) splitStandCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.SplitStand()
		return nil
	}
}

func (d *CommandDispatcher) splitDoubleCmd() tea.Cmd {
	return func() tea.Msg {
		d.machine.SplitDouble()
		return nil
	}
}
