package rules

import (
	"github.com/cardtable/tricksync/card"
	"github.com/cardtable/tricksync/match"
)

// heartsRules: no trump, point cards are every heart (1) and the queen of
// spades (13). Points may not be led or discarded into before hearts are
// broken, and the holder of the 2 of clubs opens the round with it.
type heartsRules struct{}

func (heartsRules) LegalMoves(s *match.Snapshot, seat int) []card.Card {
	moves := followSuitMoves(s, seat)
	hand := s.Hand(seat)
	firstTrick := s.TrickWins == [match.NumSeats]int{} && s.LastCompletedTrick.Plays == nil

	if len(s.CurrentTrick) == 0 {
		if firstTrick && card.Contains(hand, card.TwoOfClubs) {
			return []card.Card{card.TwoOfClubs}
		}
		if !s.HeartsBroken {
			if noHearts := withoutSuit(moves, card.Hearts); len(noHearts) > 0 {
				return noHearts
			}
		}
		return moves
	}

	// Off-suit: no dumping points on the opening trick unless forced.
	if firstTrick && len(card.OfSuit(hand, s.LeadSuit)) == 0 {
		if clean := withoutPoints(moves); len(clean) > 0 {
			return clean
		}
	}
	return moves
}

func (h heartsRules) TimeoutMove(s *match.Snapshot, seat int) card.Card {
	return lowestOf(h.LegalMoves(s, seat))
}

func (heartsRules) TimeoutBid(*match.Snapshot, int) int { return 0 }

func (heartsRules) TrickWinner(trick []match.TrickPlay, leadSuit card.Suit) int {
	return trumpTrickWinner(trick, leadSuit, "")
}

func (heartsRules) TrickPoints(trick []match.TrickPlay) int {
	points := 0
	for _, play := range trick {
		if play.Card.Suit == card.Hearts {
			points++
		}
		if play.Card == card.QueenOfSpades {
			points += 13
		}
	}
	return points
}

func (heartsRules) ScoreRound(*match.Snapshot) [match.NumSeats]int {
	return [match.NumSeats]int{}
}

func (heartsRules) OpeningCard() (card.Card, bool) {
	return card.TwoOfClubs, true
}

func withoutSuit(cards []card.Card, suit card.Suit) []card.Card {
	var out []card.Card
	for _, c := range cards {
		if c.Suit != suit {
			out = append(out, c)
		}
	}
	return out
}

func withoutPoints(cards []card.Card) []card.Card {
	var out []card.Card
	for _, c := range cards {
		if c.Suit == card.Hearts || c == card.QueenOfSpades {
			continue
		}
		out = append(out, c)
	}
	return out
}
