package models

import "fmt"

type Suit string

const (
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
	SuitSpades   Suit = "spades"
)

// Suits lists the suits in deck-building order.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

type Rank string

const (
	RankTwo   Rank = "2"
	RankThree Rank = "3"
	RankFour  Rank = "4"
	RankFive  Rank = "5"
	RankSix   Rank = "6"
	RankSeven Rank = "7"
	RankEight Rank = "8"
	RankNine  Rank = "9"
	RankTen   Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
	RankAce   Rank = "A"
)

// Ranks lists the ranks in deck-building order.
var Ranks = []Rank{
	RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven, RankEight,
	RankNine, RankTen, RankJack, RankQueen, RankKing, RankAce,
}

// Card is an immutable playing card.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

func NewCard(suit Suit, rank Rank) (Card, error) {
	if !suit.Valid() || !rank.Valid() {
		return Card{}, fmt.Errorf("invalid card %q, %q", suit, rank)
	}
	return Card{Suit: suit, Rank: rank}, nil
}

func (s Suit) Valid() bool {
	switch s {
	case SuitHearts, SuitDiamonds, SuitClubs, SuitSpades:
		return true
	}
	return false
}

func (r Rank) Valid() bool {
	return r.Points() > 0
}

func (r Rank) IsAce() bool {
	return r == RankAce
}

// Points is the face value of the rank. Aces report 11; scoring decides
// whether they count hard.
func (r Rank) Points() int {
	switch r {
	case RankTwo:
		return 2
	case RankThree:
		return 3
	case RankFour:
		return 4
	case RankFive:
		return 5
	case RankSix:
		return 6
	case RankSeven:
		return 7
	case RankEight:
		return 8
	case RankNine:
		return 9
	case RankTen, RankJack, RankQueen, RankKing:
		return 10
	case RankAce:
		return 11
	default:
		return 0
	}
}

func (c Card) Points() int {
	return c.Rank.Points()
}

func (c Card) String() string {
	var suit string
	switch c.Suit {
	case SuitClubs:
		suit = "♣"
	case SuitDiamonds:
		suit = "♦"
	case SuitHearts:
		suit = "♥"
	case SuitSpades:
		suit = "♠"
	default:
		suit = "?"
	}
	return string(c.Rank) + suit
}
