package card

import (
	"math/rand"
	"sort"
)

// NewDeck returns the 52-card deck in a fixed canonical order.
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, suit := range []Suit{Clubs, Diamonds, Hearts, Spades} {
		for rank := Two; rank <= Ace; rank++ {
			deck = append(deck, Card{Suit: suit, Rank: rank})
		}
	}
	return deck
}

// ShuffledDeck returns the deck in the order produced by the given seed. The
// same seed always yields the same order, so a match can be re-dealt from its
// snapshot alone.
func ShuffledDeck(seed int64) []Card {
	deck := NewDeck()
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

// SortHand orders a hand by suit then rank in place.
func SortHand(hand []Card) {
	sort.Slice(hand, func(i, j int) bool { return Less(hand[i], hand[j]) })
}

// Remove returns hand without the given card and reports whether it was held.
func Remove(hand []Card, c Card) ([]Card, bool) {
	for i, h := range hand {
		if h == c {
			out := make([]Card, 0, len(hand)-1)
			out = append(out, hand[:i]...)
			out = append(out, hand[i+1:]...)
			return out, true
		}
	}
	return hand, false
}

// Contains reports whether hand holds the given card.
func Contains(hand []Card, c Card) bool {
	for _, h := range hand {
		if h == c {
			return true
		}
	}
	return false
}

// OfSuit returns the cards of the given suit in hand.
func OfSuit(hand []Card, suit Suit) []Card {
	var out []Card
	for _, h := range hand {
		if h.Suit == suit {
			out = append(out, h)
		}
	}
	return out
}
