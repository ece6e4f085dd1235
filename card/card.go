package card

import "github.com/rotisserie/eris"

// Suit is one of the four French suits.
type Suit string

const (
	Clubs    Suit = "C"
	Diamonds Suit = "D"
	Hearts   Suit = "H"
	Spades   Suit = "S"
)

// Rank runs from 2 (deuce) to 14 (ace). Aces are always high.
type Rank int

const (
	Two   Rank = 2
	Three Rank = 3
	Four  Rank = 4
	Five  Rank = 5
	Six   Rank = 6
	Seven Rank = 7
	Eight Rank = 8
	Nine  Rank = 9
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

var rankSymbols = map[Rank]string{
	Two: "2", Three: "3", Four: "4", Five: "5", Six: "6", Seven: "7",
	Eight: "8", Nine: "9", Ten: "10", Jack: "J", Queen: "Q", King: "K", Ace: "A",
}

var symbolRanks = func() map[string]Rank {
	m := make(map[string]Rank, len(rankSymbols))
	for r, s := range rankSymbols {
		m[s] = r
	}
	return m
}()

// Card is a single playing card. A suit+rank pair is unique within a deck, so
// Card is comparable and usable as a map key.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// ID returns the wire identifier of the card, e.g. "QS" or "10H".
func (c Card) ID() string {
	return rankSymbols[c.Rank] + string(c.Suit)
}

// FromID parses a wire identifier produced by ID.
func FromID(id string) (Card, error) {
	if len(id) < 2 {
		return Card{}, eris.Errorf("malformed card id %q", id)
	}
	suit := Suit(id[len(id)-1:])
	switch suit {
	case Clubs, Diamonds, Hearts, Spades:
	default:
		return Card{}, eris.Errorf("unknown suit in card id %q", id)
	}
	rank, ok := symbolRanks[id[:len(id)-1]]
	if !ok {
		return Card{}, eris.Errorf("unknown rank in card id %q", id)
	}
	return Card{Suit: suit, Rank: rank}, nil
}

// TwoOfClubs is the opening card in Hearts.
var TwoOfClubs = Card{Suit: Clubs, Rank: Two}

// QueenOfSpades carries 13 points in Hearts.
var QueenOfSpades = Card{Suit: Spades, Rank: Queen}

// suitOrder fixes the display ordering of suits within a sorted hand.
var suitOrder = map[Suit]int{Clubs: 0, Diamonds: 1, Spades: 2, Hearts: 3}

// Less orders cards by suit then rank, the ordering used for dealt hands so a
// hand renders stably across resyncs.
func Less(a, b Card) bool {
	if a.Suit != b.Suit {
		return suitOrder[a.Suit] < suitOrder[b.Suit]
	}
	return a.Rank < b.Rank
}
