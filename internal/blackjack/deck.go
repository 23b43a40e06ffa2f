package blackjack

import (
	"math/rand"

	"blackjack-backend/internal/models"
)

// DeckSize is the number of cards in a standard deck.
const DeckSize = 52

// Shuffler permutes n elements by calling swap, like rand.Shuffle.
type Shuffler func(n int, swap func(i, j int))

// DeckFactory returns a fresh, ready to draw deck.
type DeckFactory func() models.Deck

// NewDeck returns the 52 cards in suit-major order.
func NewDeck() models.Deck {
	deck := make(models.Deck, 0, DeckSize)
	for _, suit := range models.Suits {
		for _, rank := range models.Ranks {
			deck = append(deck, models.Card{Suit: suit, Rank: rank})
		}
	}
	return deck
}

// NewShuffledDeck returns a uniformly permuted deck. A nil shuffler uses
// rand.Shuffle, which is Fisher-Yates.
func NewShuffledDeck(shuffle Shuffler) models.Deck {
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	deck := NewDeck()
	shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// ShuffledDecks is the default DeckFactory.
func ShuffledDecks() models.Deck {
	return NewShuffledDeck(nil)
}

// Draw removes and returns the first card. An empty deck is replaced by
// newDeck before drawing, so Draw never fails for lack of cards.
func Draw(deck models.Deck, newDeck DeckFactory) (models.Card, models.Deck) {
	if len(deck) == 0 {
		if newDeck == nil {
			newDeck = ShuffledDecks
		}
		deck = newDeck()
	}
	card := deck[0]
	rest := append(models.Deck(nil), deck[1:]...)
	return card, rest
}
