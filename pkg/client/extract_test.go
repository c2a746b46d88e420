package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
)

func TestExtractSnapshot(t *testing.T) {
	raw := json.RawMessage(`{
		"status": "success",
		"current_tokens": 900,
		"game_state": {
			"player": {"hand": ["♥10", "♣K"], "total": 20, "state": 10, "bet": 100},
			"dealerMasked": {"hand": ["✪ ", "♥A"], "total": 11, "canInsure": true},
			"deckLen": 96,
			"bet": 100,
			"betList": [50, 50],
			"isRoundActive": true
		}
	}`)

	tokens, rs, ok := ExtractSnapshot(raw)
	require.True(t, ok)
	assert.Equal(t, int64(900), tokens)
	assert.Equal(t, []string{"♥10", "♣K"}, rs.Player.Hand)
	assert.Equal(t, 20, rs.Player.Total)
	assert.Equal(t, int64(100), rs.Player.Bet)
	assert.True(t, rs.DealerMasked.CanInsure)
	assert.Equal(t, 96, rs.DeckLen)
	assert.Equal(t, []int64{50, 50}, rs.BetList)
	assert.True(t, rs.RoundActive)
}

func TestExtractSnapshotRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"missing tokens", `{"game_state": {"deckLen": 10}}`},
		{"null tokens", `{"current_tokens": null, "game_state": {"deckLen": 10}}`},
		{"missing game state", `{"current_tokens": 100}`},
		{"null game state", `{"current_tokens": 100, "game_state": null}`},
		{"non numeric tokens", `{"current_tokens": "lots", "game_state": {"deckLen": 10}}`},
		{"fractional tokens", `{"current_tokens": 1.5, "game_state": {"deckLen": 10}}`},
		{"game state wrong shape", `{"current_tokens": 100, "game_state": [1, 2, 3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, rs, ok := ExtractSnapshot(json.RawMessage(tt.raw))
			assert.False(t, ok)
			assert.Zero(t, tokens)
			assert.Equal(t, blackjack.RoundState{}, rs)
		})
	}
}

func TestExtractSnapshotZeroTokens(t *testing.T) {
	// A depleted bankroll is a valid extraction, not a malformed one.
	tokens, _, ok := ExtractSnapshot(json.RawMessage(
		`{"current_tokens": 0, "game_state": {"deckLen": 42}}`))
	require.True(t, ok)
	assert.Zero(t, tokens)
}
