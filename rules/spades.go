package rules

import (
	"github.com/cardtable/tricksync/card"
	"github.com/cardtable/tricksync/match"
)

// spadesRules: spades are trump. A seat void of the lead suit may play
// anything, spade or not. Round scores settle against the bids: a made bid is
// worth ten points per trick bid plus one per overtrick, a missed bid costs
// ten per trick bid.
type spadesRules struct{}

func (spadesRules) LegalMoves(s *match.Snapshot, seat int) []card.Card {
	return followSuitMoves(s, seat)
}

func (r spadesRules) TimeoutMove(s *match.Snapshot, seat int) card.Card {
	return lowestOf(r.LegalMoves(s, seat))
}

func (spadesRules) TimeoutBid(*match.Snapshot, int) int { return 1 }

func (spadesRules) TrickWinner(trick []match.TrickPlay, leadSuit card.Suit) int {
	return trumpTrickWinner(trick, leadSuit, card.Spades)
}

func (spadesRules) TrickPoints([]match.TrickPlay) int { return 0 }

func (spadesRules) ScoreRound(s *match.Snapshot) [match.NumSeats]int {
	return settleBids(s.TrickWins, s.Bids)
}

func (spadesRules) OpeningCard() (card.Card, bool) {
	return card.Card{}, false
}

func settleBids(trickWins, bids [match.NumSeats]int) [match.NumSeats]int {
	var out [match.NumSeats]int
	for seat := 0; seat < match.NumSeats; seat++ {
		if trickWins[seat] >= bids[seat] {
			out[seat] = bids[seat]*10 + (trickWins[seat] - bids[seat])
		} else {
			out[seat] = -bids[seat] * 10
		}
	}
	return out
}
