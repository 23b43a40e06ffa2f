package blackjack

import "blackjack-backend/internal/models"

const (
	Blackjack       = 21
	DealerStandsOn  = 17
	blackjackLength = 2
)

// Score computes the points of a hand. Non-ace cards are summed first; each ace
// is then counted as 11 if that keeps the total at or under 21, otherwise as 1,
// one ace at a time in card order.
func Score(cards []models.Card) (points int, isBlackjack bool, isBusted bool) {
	aces := 0
	for _, c := range cards {
		if c.Rank.IsAce() {
			aces++
			continue
		}
		points += c.Points()
	}

	for i := 0; i < aces; i++ {
		if points+11 <= Blackjack {
			points += 11
		} else {
			points++
		}
	}

	isBlackjack = points == Blackjack && len(cards) == blackjackLength
	isBusted = points > Blackjack
	return points, isBlackjack, isBusted
}

// Rescore writes the derived fields of h from its cards.
func Rescore(h models.Hand) models.Hand {
	h.Score, h.IsBlackjack, h.IsBusted = Score(h.Cards)
	return h
}

// AddCard returns h with card appended and rescored.
func AddCard(h models.Hand, card models.Card) models.Hand {
	h = h.Clone()
	h.Cards = append(h.Cards, card)
	return Rescore(h)
}

// NewHand builds a scored hand from cards.
func NewHand(cards ...models.Card) models.Hand {
	return Rescore(models.Hand{Cards: append([]models.Card{}, cards...)})
}
