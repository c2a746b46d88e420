package server

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/BiroNora/BlackJack-01/pkg/blackjack"
)

var (
	// ErrDeckExhausted means the shoe ran out mid-round.
	ErrDeckExhausted = errors.New("deck exhausted")
	// ErrNoSplitHands means no queued split hand remains.
	ErrNoSplitHands = errors.New("no more split hands")
	// ErrSplitNotAllowed means the active hand cannot be split.
	ErrSplitNotAllowed = errors.New("split not possible")
	// ErrRoundInactive means the action needs a dealt round.
	ErrRoundInactive = errors.New("no round in progress")
)

// Game is one user's authoritative blackjack round: the shoe, the active
// hand, the queued split hands and the dealer. It is not safe for concurrent
// use; the session layer serializes access.
type Game struct {
	deck       []string
	player     blackjack.PlayerHand
	players    []blackjack.PlayerHand
	dealerHand []string

	bet     int64
	betList []int64

	splitReq    int
	winner      blackjack.WinnerState
	natural     blackjack.WinnerState
	roundActive bool

	rng *rand.Rand
}

// NewGame creates a game with an empty shoe; the client drives the first
// shuffle.
func NewGame() *Game {
	return NewGameWithRand(rand.New(rand.NewSource(rand.Int63())))
}

// NewGameWithRand creates a game using the given randomness source. Tests
// pass a seeded source for reproducible shoes.
func NewGameWithRand(rng *rand.Rand) *Game {
	return &Game{
		betList: []int64{},
		players: []blackjack.PlayerHand{},
		rng:     rng,
	}
}

// CreateDeck builds and shuffles the two-deck shoe.
func (g *Game) CreateDeck() {
	deck := make([]string, 0, blackjack.FullShoeSize)
	for i := 0; i < 2; i++ {
		for _, s := range blackjack.Suits {
			for _, r := range blackjack.Ranks {
				deck = append(deck, s+r)
			}
		}
	}
	g.rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	g.deck = deck
}

// DeckLen returns the number of undealt cards.
func (g *Game) DeckLen() int { return len(g.deck) }

// Bet returns the staked amount for the coming round.
func (g *Game) Bet() int64 { return g.bet }

// RoundActive reports whether a round has been dealt and not yet ended.
func (g *Game) RoundActive() bool { return g.roundActive }

func (g *Game) draw() (string, error) {
	if len(g.deck) == 0 {
		return "", ErrDeckExhausted
	}
	c := g.deck[0]
	g.deck = g.deck[1:]
	return c, nil
}

// PlaceBet adds amount to the round's stake.
func (g *Game) PlaceBet(amount int64) {
	g.bet += amount
	g.player.Bet += amount
	g.betList = append(g.betList, amount)
}

// RetakeBet removes the most recent stake increment and returns it.
func (g *Game) RetakeBet() int64 {
	if len(g.betList) == 0 {
		return 0
	}
	last := g.betList[len(g.betList)-1]
	g.betList = g.betList[:len(g.betList)-1]
	g.bet -= last
	g.player.Bet -= last
	return last
}

// StartRound deals the opening hands: two cards each, alternating, with the
// dealer's first card masked.
func (g *Game) StartRound() error {
	g.dealerHand = nil
	g.players = []blackjack.PlayerHand{}
	g.splitReq = 0
	g.winner = blackjack.WinnerNone
	g.betList = []int64{}

	c1, err := g.draw()
	if err != nil {
		return err
	}
	c2, err := g.draw()
	if err != nil {
		return err
	}
	c3, err := g.draw()
	if err != nil {
		return err
	}
	c4, err := g.draw()
	if err != nil {
		return err
	}

	playerHand := []string{c1, c3}
	g.dealerHand = []string{c2, c4}

	g.player = g.buildHand(playerHand, g.bet)
	g.natural = g.naturalState(playerHand)
	g.roundActive = true
	return nil
}

// buildHand derives the totals and flags of a hand record.
func (g *Game) buildHand(cards []string, bet int64) blackjack.PlayerHand {
	total := blackjack.HandTotal(cards)
	return blackjack.PlayerHand{
		ID:       uuid.NewString(),
		Hand:     cards,
		Total:    total,
		State:    blackjack.StateForTotal(total),
		CanSplit: blackjack.IsSplittablePair(cards),
		Bet:      bet,
		Natural:  g.naturalState(cards),
	}
}

// naturalState compares a player hand and the dealer's for naturals.
func (g *Game) naturalState(playerHand []string) blackjack.WinnerState {
	playerNat := blackjack.IsNatural21(playerHand)
	dealerNat := blackjack.IsNatural21(g.dealerHand)
	switch {
	case playerNat && dealerNat:
		return blackjack.WinnerBlackjackPush
	case playerNat:
		return blackjack.WinnerBlackjackPlayer
	case dealerNat:
		return blackjack.WinnerBlackjackDealer
	default:
		return blackjack.WinnerNone
	}
}

func (g *Game) refreshPlayer() {
	g.player.Total = blackjack.HandTotal(g.player.Hand)
	g.player.State = blackjack.StateForTotal(g.player.Total)
	g.player.CanSplit = blackjack.IsSplittablePair(g.player.Hand)
}

// Hit draws one card to the active hand.
func (g *Game) Hit() error {
	if !g.roundActive {
		return ErrRoundInactive
	}
	c, err := g.draw()
	if err != nil {
		return err
	}
	g.player.Hand = append(g.player.Hand, c)
	g.refreshPlayer()
	return nil
}

// Stand finishes the player's turn. Unless the player already busted, the
// dealer draws to 17.
func (g *Game) Stand() error {
	if !g.roundActive {
		return ErrRoundInactive
	}
	if blackjack.HandTotal(g.player.Hand) <= 21 {
		for blackjack.HandTotal(g.dealerHand) < 17 {
			c, err := g.draw()
			if err != nil {
				return err
			}
			g.dealerHand = append(g.dealerHand, c)
		}
	}
	return nil
}

// Double doubles the active hand's wager and returns the amount to deduct
// from the bankroll.
func (g *Game) Double() int64 {
	g.player.Bet += g.bet
	return g.bet
}

// SplitDouble doubles the active split hand's wager and deals its one forced
// card. It returns the amount to deduct from the bankroll.
func (g *Game) SplitDouble() (int64, error) {
	cost := g.player.Bet
	c, err := g.draw()
	if err != nil {
		return 0, err
	}
	g.player.Bet += cost
	g.player.Hand = append(g.player.Hand, c)
	g.refreshPlayer()
	return cost, nil
}

// Insurance resolves the insurance side bet: when the dealer holds a natural
// it pays the full wager (and retires the round's stake), otherwise it costs
// half the wager. The returned delta applies to the bankroll.
func (g *Game) Insurance() int64 {
	bet := g.bet
	if g.natural == blackjack.WinnerBlackjackDealer {
		g.bet = 0
		return bet
	}
	return -blackjack.InsuranceCost(bet)
}

// Split divides the active pair into two hands: the first keeps its card and
// draws a new one immediately, the second waits in the queue with one card.
func (g *Game) Split() error {
	if !g.player.CanSplit || len(g.players) > 3 {
		return ErrSplitNotAllowed
	}
	first := g.player.Hand[0]
	second := g.player.Hand[1]

	active := []string{first}
	if c, err := g.draw(); err == nil {
		active = append(active, c)
	} else {
		return err
	}
	g.player = g.buildHand(active, g.bet)

	queued := g.buildHand([]string{second}, g.bet)
	g.players = append([]blackjack.PlayerHand{queued}, g.players...)
	g.splitReq++
	return nil
}

// SplitStand marks the active split hand as stood and returns it to the
// queue. Once the queue head has stood, further hands go to the front so the
// stood hands stay grouped for settlement.
func (g *Game) SplitStand() error {
	if len(g.players) == 0 && g.splitReq == 0 {
		return ErrNoSplitHands
	}
	g.player.Stood = true
	if len(g.players) > 0 && g.players[0].Stood {
		g.players = append([]blackjack.PlayerHand{g.player}, g.players...)
	} else {
		g.players = append(g.players, g.player)
	}
	return nil
}

// ActivateNextSplit pops the next queued hand, deals its second card and
// makes it the active hand.
func (g *Game) ActivateNextSplit() error {
	next := g.nextUnplayed()
	if next < 0 {
		return ErrNoSplitHands
	}
	g.player = g.players[next]
	g.players = append(g.players[:next], g.players[next+1:]...)

	c, err := g.draw()
	if err != nil {
		return err
	}
	g.player.Hand = append(g.player.Hand, c)
	g.refreshPlayer()
	g.player.Natural = g.naturalState(g.player.Hand)
	g.splitReq--
	return nil
}

// nextUnplayed finds the first queued hand that has not stood yet.
func (g *Game) nextUnplayed() int {
	for i, h := range g.players {
		if !h.Stood {
			return i
		}
	}
	return -1
}

// PopFinished moves the next finished hand into the active slot so its
// payout can be computed.
func (g *Game) PopFinished() error {
	if len(g.players) == 0 {
		return ErrNoSplitHands
	}
	g.player = g.players[0]
	g.players = g.players[1:]
	return nil
}

// winnerState resolves the active hand against the dealer.
func (g *Game) winnerState() blackjack.WinnerState {
	player := blackjack.HandTotal(g.player.Hand)
	dealer := blackjack.HandTotal(g.dealerHand)
	switch {
	case player > 21:
		g.winner = blackjack.WinnerPlayerLost
	case player == dealer:
		g.winner = blackjack.WinnerPush
	case dealer > 21 || player > dealer:
		g.winner = blackjack.WinnerPlayerWon
	default:
		g.winner = blackjack.WinnerDealerWon
	}
	return g.winner
}

// Rewards settles the active hand and returns the bankroll credit: a natural
// pays 3:2, a plain win pays even money, a push returns the stake. The
// hand's wager is retired either way.
func (g *Game) Rewards(isSplit bool) int64 {
	bet := g.player.Bet
	winner := g.winnerState()

	scenario := g.natural
	if isSplit {
		scenario = g.player.Natural
	}

	var reward int64
	switch {
	case scenario == blackjack.WinnerBlackjackPlayer:
		reward = bet * 5 / 2
	case winner == blackjack.WinnerPlayerWon && scenario != blackjack.WinnerBlackjackDealer:
		reward = bet * 2
	case (winner == blackjack.WinnerPush && scenario != blackjack.WinnerBlackjackDealer) ||
		scenario == blackjack.WinnerBlackjackPush:
		reward = bet
	}

	g.bet = 0
	g.player.Bet = 0
	return reward
}

// RoundEnd clears the finished round, keeping the shoe.
func (g *Game) RoundEnd() {
	g.bet = 0
	g.betList = []int64{}
	g.player = blackjack.PlayerHand{}
	g.dealerHand = nil
	g.players = []blackjack.PlayerHand{}
	g.splitReq = 0
	g.winner = blackjack.WinnerNone
	g.natural = blackjack.WinnerNone
	g.roundActive = false
}

// Restart resets everything including the shoe.
func (g *Game) Restart() {
	g.RoundEnd()
	g.deck = nil
}

// State builds the wire representation of the round.
func (g *Game) State() blackjack.RoundState {
	masked := blackjack.DealerView{}
	unmasked := blackjack.DealerView{}
	if len(g.dealerHand) >= 2 {
		total := blackjack.HandTotal(g.dealerHand)
		upcard := g.dealerHand[1]
		masked = blackjack.DealerView{
			Hand:      []string{blackjack.MaskedCard, upcard},
			Total:     blackjack.HandTotal([]string{upcard}),
			State:     blackjack.HandUnder21,
			CanInsure: blackjack.CardRank(upcard) == "A",
			Natural:   blackjack.WinnerNone,
		}
		unmasked = blackjack.DealerView{
			Hand:      g.dealerHand,
			Total:     total,
			State:     blackjack.StateForTotal(total),
			CanInsure: blackjack.CardRank(upcard) == "A",
			Natural:   g.natural,
		}
	}

	players := make([]blackjack.PlayerHand, len(g.players))
	copy(players, g.players)

	betList := make([]int64, len(g.betList))
	copy(betList, g.betList)

	return blackjack.RoundState{
		Player:         g.player,
		DealerMasked:   masked,
		DealerUnmasked: unmasked,
		Players:        players,
		DeckLen:        len(g.deck),
		Bet:            g.bet,
		BetList:        betList,
		SplitReq:       g.splitReq,
		Winner:         g.winner,
		Natural:        g.natural,
		RoundActive:    g.roundActive,
	}
}

// String implements a compact debug representation.
func (g *Game) String() string {
	return fmt.Sprintf("game{deck=%d bet=%d hands=%d splitReq=%d active=%v}",
		len(g.deck), g.bet, len(g.players)+1, g.splitReq, g.roundActive)
}
