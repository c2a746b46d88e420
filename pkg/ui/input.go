package ui

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
)

// Preset chip values offered as single-key shortcuts on the betting screen.
// They avoid the digit keys, which build a custom amount instead.
var chipKeys = map[string]int64{
	"z": 10,
	"x": 20,
	"c": 50,
	"v": 100,
}

// handleBetKey handles typing on the betting screen: digit keys build a
// custom amount, backspace edits it, "b" stakes the typed amount and the
// chip shortcuts stake a preset directly.
func (m Model) handleBetKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "backspace":
		if len(m.betInput) > 0 {
			m.betInput = m.betInput[:len(m.betInput)-1]
		}
		return m, nil
	case "b":
		if m.betInput == "" {
			return m, nil
		}
		amount, err := strconv.ParseInt(m.betInput, 10, 64)
		if err != nil || amount <= 0 {
			m.betInput = ""
			return m, nil
		}
		m.betInput = ""
		return m, m.dispatcher.placeBetCmd(amount)
	}

	if chip, ok := chipKeys[key]; ok {
		return m, m.dispatcher.placeBetCmd(chip)
	}
	if len(key) == 1 && key >= "0" && key <= "9" && len(m.betInput) < 7 {
		m.betInput += key
	}
	return m, nil
}
