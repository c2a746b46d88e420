package blackjack

import "strings"

// Card codes travel on the wire as "<suit><rank>" strings, e.g. "♥10" or "♣K".
// The shoe holds two 52-card decks.
const (
	FullShoeSize = 104

	// MaskedCard is the placeholder the server substitutes for the dealer's
	// hole card while the player still acts.
	MaskedCard = "✪ "
)

var (
	Suits = []string{"♥", "♦", "♣", "♠"}
	Ranks = []string{"A", "K", "Q", "J", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
)

// CardRank returns the rank portion of a card code.
func CardRank(card string) string {
	for _, s := range Suits {
		if strings.HasPrefix(card, s) {
			return card[len(s):]
		}
	}
	return card
}

// CardValue returns the blackjack value of a single card, counting aces high.
func CardValue(card string) int {
	switch r := CardRank(card); r {
	case "A":
		return 11
	case "K", "Q", "J", "10":
		return 10
	default:
		if len(r) == 1 && r[0] >= '2' && r[0] <= '9' {
			return int(r[0] - '0')
		}
		return 0
	}
}

// HandTotal sums a hand with ace adjustment: each ace counts 11 unless that
// would bust the hand, in which case it counts 1.
func HandTotal(hand []string) int {
	total := 0
	aces := 0
	for _, c := range hand {
		if CardRank(c) == "A" {
			aces++
			continue
		}
		total += CardValue(c)
	}
	for i := 0; i < aces; i++ {
		if total+11 <= 21 {
			total += 11
		} else {
			total++
		}
	}
	return total
}

// IsNatural21 reports whether a hand is a two-card blackjack.
func IsNatural21(hand []string) bool {
	return len(hand) == 2 && HandTotal(hand) == 21
}

// IsSplittablePair reports whether a two-card hand may be split. Ten-valued
// cards pair with each other regardless of rank.
func IsSplittablePair(hand []string) bool {
	if len(hand) != 2 {
		return false
	}
	r0, r1 := CardRank(hand[0]), CardRank(hand[1])
	return r0 == r1 || (isTenValued(r0) && isTenValued(r1))
}

// IsAcePair reports whether both cards of a two-card hand are aces. Split
// aces receive one card each and cannot be played further.
func IsAcePair(hand []string) bool {
	return len(hand) == 2 && CardRank(hand[0]) == "A" && CardRank(hand[1]) == "A"
}

func isTenValued(rank string) bool {
	switch rank {
	case "K", "Q", "J", "10":
		return true
	}
	return false
}
