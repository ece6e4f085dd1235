package card_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/cardtable/tricksync/card"
)

func TestCardIDRoundTrip(t *testing.T) {
	for _, c := range card.NewDeck() {
		got, err := card.FromID(c.ID())
		assert.NilError(t, err)
		assert.Equal(t, got, c)
	}
}

func TestFromIDRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "Q", "QX", "11H", "H10"} {
		_, err := card.FromID(id)
		assert.Check(t, err != nil, "id %q should not parse", id)
	}
}

func TestShuffledDeckIsDeterministic(t *testing.T) {
	a := card.ShuffledDeck(42)
	b := card.ShuffledDeck(42)
	assert.DeepEqual(t, a, b)

	c := card.ShuffledDeck(43)
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	assert.Check(t, !same, "different seeds should produce different orders")
}

func TestShuffledDeckIsComplete(t *testing.T) {
	seen := map[card.Card]bool{}
	for _, c := range card.ShuffledDeck(7) {
		assert.Check(t, !seen[c], "duplicate card %s", c.ID())
		seen[c] = true
	}
	assert.Equal(t, len(seen), 52)
}

func TestSortHandIsStableAcrossShuffles(t *testing.T) {
	hand := card.ShuffledDeck(1)[:13]
	card.SortHand(hand)
	for i := 1; i < len(hand); i++ {
		assert.Check(t, !card.Less(hand[i], hand[i-1]))
	}
}

func TestRemove(t *testing.T) {
	hand := []card.Card{card.TwoOfClubs, card.QueenOfSpades}
	out, ok := card.Remove(hand, card.QueenOfSpades)
	assert.Check(t, ok)
	assert.Equal(t, len(out), 1)
	assert.Equal(t, out[0], card.TwoOfClubs)

	_, ok = card.Remove(out, card.QueenOfSpades)
	assert.Check(t, !ok)
}
