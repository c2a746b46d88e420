package blackjack

// HandState describes where a single hand stands relative to 21.
type HandState int

const (
	HandNone      HandState = 0
	HandTwentyOne HandState = 8
	HandBust      HandState = 9
	HandUnder21   HandState = 10
	HandBlackjack HandState = 11
)

// StateForTotal classifies a hand total.
func StateForTotal(total int) HandState {
	switch {
	case total == 21:
		return HandTwentyOne
	case total > 21:
		return HandBust
	default:
		return HandUnder21
	}
}

// WinnerState is the server's small integer outcome code for a resolved hand.
type WinnerState int

const (
	WinnerNone            WinnerState = 0
	WinnerBlackjackPlayer WinnerState = 1
	WinnerBlackjackPush   WinnerState = 2
	WinnerBlackjackDealer WinnerState = 3
	WinnerPush            WinnerState = 4
	WinnerPlayerLost      WinnerState = 5
	WinnerPlayerWon       WinnerState = 6
	WinnerDealerWon       WinnerState = 7
)

var outcomeText = map[WinnerState]string{
	WinnerNone:            "",
	WinnerBlackjackPlayer: "Blackjack! You win",
	WinnerBlackjackPush:   "Both blackjack - push",
	WinnerBlackjackDealer: "Dealer blackjack",
	WinnerPush:            "Push",
	WinnerPlayerLost:      "Bust - you lose",
	WinnerPlayerWon:       "You win",
	WinnerDealerWon:       "Dealer wins",
}

// OutcomeText maps an outcome code to its display string. Unknown codes map
// to the empty string.
func (w WinnerState) OutcomeText() string {
	return outcomeText[w]
}

// InsuranceWon reports whether an insurance side bet pays out for the given
// dealer natural-21 code. The dealer holding a natural blackjack is the only
// winning case.
func InsuranceWon(dealerNatural WinnerState) bool {
	return dealerNatural == WinnerBlackjackDealer
}
