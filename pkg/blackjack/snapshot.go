package blackjack

// Phase names a state of the round state machine. The set mirrors the screens
// the client can show; self-driving phases advance without user input.
type Phase string

const (
	PhaseLoading               Phase = "LOADING"
	PhaseBetting               Phase = "BETTING"
	PhaseShuffling             Phase = "SHUFFLING"
	PhaseInitGame              Phase = "INIT_GAME"
	PhaseMainTurn              Phase = "MAIN_TURN"
	PhaseMainStandRewards      Phase = "MAIN_STAND_REWARDS_TRANSIT"
	PhaseMainStand             Phase = "MAIN_STAND"
	PhaseSplitTurn             Phase = "SPLIT_TURN"
	PhaseSplitStand            Phase = "SPLIT_STAND"
	PhaseSplitStandDouble      Phase = "SPLIT_STAND_DOUBLE"
	PhaseSplitNat21Transit     Phase = "SPLIT_NAT21_TRANSIT"
	PhaseSplitAceTransit       Phase = "SPLIT_ACE_TRANSIT"
	PhaseSplitFinish           Phase = "SPLIT_FINISH"
	PhaseSplitFinishOutcome    Phase = "SPLIT_FINISH_OUTCOME"
	PhaseOutOfTokens           Phase = "OUT_OF_TOKENS"
	PhaseRestartGame           Phase = "RESTART_GAME"
	PhaseReloading             Phase = "RELOADING"
	PhaseError                 Phase = "ERROR"
)

// PlayerHand is one player hand. After a split every queued hand carries its
// own record; Id distinguishes them and slice order is resolution order.
type PlayerHand struct {
	ID       string      `json:"id,omitempty"`
	Hand     []string    `json:"hand"`
	Total    int         `json:"total"`
	State    HandState   `json:"state"`
	CanSplit bool        `json:"canSplit"`
	Stood    bool        `json:"stood"`
	Bet      int64       `json:"bet"`
	Natural  WinnerState `json:"natural21"`
}

// DealerView is one view of the dealer's hand. The masked view hides the hole
// card while the player acts; the unmasked view is authoritative once the
// round resolves.
type DealerView struct {
	Hand      []string    `json:"hand"`
	Total     int         `json:"total"`
	State     HandState   `json:"state"`
	CanInsure bool        `json:"canInsure"`
	Natural   WinnerState `json:"natural21"`
}

// RoundState is the server's round sub-state, decoded from the game_state
// field of every action response.
type RoundState struct {
	Player         PlayerHand   `json:"player"`
	DealerMasked   DealerView   `json:"dealerMasked"`
	DealerUnmasked DealerView   `json:"dealerUnmasked"`
	Players        []PlayerHand `json:"players"`
	DeckLen        int          `json:"deckLen"`
	Bet            int64        `json:"bet"`
	BetList        []int64      `json:"betList"`
	SplitReq       int          `json:"splitReq"`
	Winner         WinnerState  `json:"winner"`
	Natural        WinnerState  `json:"natural21"`
	RoundActive    bool         `json:"isRoundActive"`
}

// Snapshot is the canonical client state: the current phase, the bankroll and
// the round sub-state. It is replaced wholesale on every transition and never
// mutated in place by consumers.
type Snapshot struct {
	Phase  Phase
	Tokens int64
	Round  RoundState
}

// EmptyRound returns a fresh betting-phase round carrying over only the
// deck length.
func EmptyRound(deckLen int) RoundState {
	return RoundState{
		DeckLen: deckLen,
		BetList: []int64{},
		Players: []PlayerHand{},
	}
}
