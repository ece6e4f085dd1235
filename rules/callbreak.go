package rules

import (
	"github.com/cardtable/tricksync/card"
	"github.com/cardtable/tricksync/match"
)

// callbreakRules: spades are trump, and the trump obligation is strict — a
// seat void of the lead suit that holds spades must play one.
type callbreakRules struct{}

func (callbreakRules) LegalMoves(s *match.Snapshot, seat int) []card.Card {
	moves := followSuitMoves(s, seat)
	if len(s.CurrentTrick) == 0 || s.LeadSuit == "" || s.LeadSuit == card.Spades {
		return moves
	}
	hand := s.Hand(seat)
	if len(card.OfSuit(hand, s.LeadSuit)) > 0 {
		return moves
	}
	if spades := card.OfSuit(hand, card.Spades); len(spades) > 0 {
		return spades
	}
	return moves
}

func (r callbreakRules) TimeoutMove(s *match.Snapshot, seat int) card.Card {
	return lowestOf(r.LegalMoves(s, seat))
}

func (callbreakRules) TimeoutBid(*match.Snapshot, int) int { return 1 }

func (callbreakRules) TrickWinner(trick []match.TrickPlay, leadSuit card.Suit) int {
	return trumpTrickWinner(trick, leadSuit, card.Spades)
}

func (callbreakRules) TrickPoints([]match.TrickPlay) int { return 0 }

func (callbreakRules) ScoreRound(s *match.Snapshot) [match.NumSeats]int {
	return settleBids(s.TrickWins, s.Bids)
}

func (callbreakRules) OpeningCard() (card.Card, bool) {
	return card.Card{}, false
}
