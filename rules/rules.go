// Package rules holds the per-variant game rules behind the match.Strategy
// interface. The reducer never switches on game type; it dispatches through a
// Strategy resolved here.
package rules

import (
	"github.com/cardtable/tricksync/card"
	"github.com/cardtable/tricksync/match"
)

var strategies = map[match.GameType]match.Strategy{
	match.Hearts:    heartsRules{},
	match.Spades:    spadesRules{},
	match.Callbreak: callbreakRules{},
}

// ForGameType returns the strategy for the given game type. Unknown types get
// the Hearts rules so a malformed snapshot still resolves tricks legally.
func ForGameType(gt match.GameType) match.Strategy {
	if strat, ok := strategies[gt]; ok {
		return strat
	}
	return heartsRules{}
}

// followSuitMoves is the base legality shared by all variants: a seat holding
// cards of the lead suit must follow it; a void seat may play anything.
func followSuitMoves(s *match.Snapshot, seat int) []card.Card {
	hand := s.Hand(seat)
	if len(s.CurrentTrick) == 0 || s.LeadSuit == "" {
		return append([]card.Card(nil), hand...)
	}
	if inSuit := card.OfSuit(hand, s.LeadSuit); len(inSuit) > 0 {
		return inSuit
	}
	return append([]card.Card(nil), hand...)
}

// lowestOf picks the lowest-ranked card of a non-empty set, the default
// timeout move for every variant.
func lowestOf(cards []card.Card) card.Card {
	low := cards[0]
	for _, c := range cards[1:] {
		if c.Rank < low.Rank || (c.Rank == low.Rank && card.Less(c, low)) {
			low = c
		}
	}
	return low
}

// trumpTrickWinner resolves a trick where trump outranks the lead suit: the
// highest trump wins if any trump was played, otherwise the highest card of
// the lead suit. Suit+rank pairs are unique, so there is never a tie.
func trumpTrickWinner(trick []match.TrickPlay, leadSuit card.Suit, trump card.Suit) int {
	winner := trick[0]
	for _, play := range trick[1:] {
		if beats(play.Card, winner.Card, leadSuit, trump) {
			winner = play
		}
	}
	return winner.Seat
}

// beats reports whether c outranks the current winning card.
func beats(c, against card.Card, leadSuit, trump card.Suit) bool {
	cTrump := trump != "" && c.Suit == trump
	aTrump := trump != "" && against.Suit == trump
	switch {
	case cTrump != aTrump:
		return cTrump
	case c.Suit == against.Suit:
		return c.Rank > against.Rank
	default:
		return c.Suit == leadSuit
	}
}
