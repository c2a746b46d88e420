package client

import (
	"encoding/json"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
)

// actionResponse is the envelope every game-action endpoint returns.
type actionResponse struct {
	CurrentTokens *json.Number    `json:"current_tokens"`
	GameState     json.RawMessage `json:"game_state"`
}

// ExtractSnapshot projects a raw action response into the bankroll and round
// sub-state. It returns ok=false when the response lacks a numeric
// current_tokens or a structured game_state; that is a normal return the
// caller must check, never an error.
func ExtractSnapshot(raw json.RawMessage) (tokens int64, rs blackjack.RoundState, ok bool) {
	var resp actionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, blackjack.RoundState{}, false
	}
	if resp.CurrentTokens == nil || len(resp.GameState) == 0 || string(resp.GameState) == "null" {
		return 0, blackjack.RoundState{}, false
	}
	n, err := resp.CurrentTokens.Int64()
	if err != nil {
		return 0, blackjack.RoundState{}, false
	}
	if err := json.Unmarshal(resp.GameState, &rs); err != nil {
		return 0, blackjack.RoundState{}, false
	}
	return n, rs, true
}
