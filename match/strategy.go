package match

import "github.com/cardtable/tricksync/card"

// Strategy is the per-variant rule surface the reducer dispatches through.
// Implementations live in the rules package, one per GameType; the reducer
// itself stays variant-agnostic.
type Strategy interface {
	// LegalMoves returns the cards the seat may play right now. It is never
	// empty for a seat holding cards: when nothing else is legal the whole
	// hand is.
	LegalMoves(s *Snapshot, seat int) []card.Card

	// TimeoutMove picks the forced card for a seat whose turn deadline has
	// passed. It must be a member of LegalMoves.
	TimeoutMove(s *Snapshot, seat int) card.Card

	// TimeoutBid picks the forced bid for a timed-out seat in BIDDING.
	TimeoutBid(s *Snapshot, seat int) int

	// TrickWinner resolves a complete 4-play trick to the winning seat.
	TrickWinner(trick []TrickPlay, leadSuit card.Suit) int

	// TrickPoints returns the points the trick winner accumulates.
	TrickPoints(trick []TrickPlay) int

	// ScoreRound returns per-seat score adjustments applied when the last
	// trick of a round resolves (bid settlement in Spades/Callbreak; zero in
	// Hearts, whose points accrue per trick).
	ScoreRound(s *Snapshot) [NumSeats]int

	// OpeningCard returns the card whose holder opens play after setup
	// (the 2 of Clubs in Hearts), or false when the variant has none.
	OpeningCard() (card.Card, bool)
}
