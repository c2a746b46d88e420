package blackjack

// MaxSplitHands is the number of additional hands a player may create by
// splitting within one round.
const MaxSplitHands = 3

// NeedsShuffle decides whether the shoe must be reshuffled before a round
// starts: an empty shoe, a full undealt shoe, or fewer cards than the minimum
// playable threshold all trigger a shuffle.
func NeedsShuffle(deckLen int) bool {
	return deckLen == 0 || deckLen == FullShoeSize || deckLen < 60
}

// CanDouble reports whether doubling down is legal: the bankroll must cover a
// second wager and the hand must not have taken a hit yet.
func CanDouble(tokens, bet int64, hasActed bool) bool {
	return !hasActed && bet > 0 && tokens >= bet
}

// CanSplit reports whether splitting is legal. The server confirms the pair
// via the hand's canSplit flag; the client additionally requires an untouched
// two-card hand, a covering bankroll and a free split slot.
func CanSplit(h PlayerHand, tokens int64, hasActed bool, splitHands int) bool {
	return !hasActed &&
		len(h.Hand) == 2 &&
		h.CanSplit &&
		h.Bet > 0 &&
		tokens >= h.Bet &&
		splitHands < MaxSplitHands
}

// InsuranceCost is half the current wager, rounded up.
func InsuranceCost(bet int64) int64 {
	return (bet + 1) / 2
}

// CanInsure reports whether the insurance side bet is offered: the dealer's
// up-card must qualify (server-confirmed), the bankroll must cover half the
// wager, and insurance may be taken at most once per round.
func CanInsure(d DealerView, tokens, bet int64, alreadyPlaced bool) bool {
	return !alreadyPlaced && d.CanInsure && bet > 0 && tokens >= InsuranceCost(bet)
}
