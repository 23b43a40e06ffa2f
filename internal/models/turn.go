package models

import "time"

type TurnStatus string

const (
	TurnStatusCreated         TurnStatus = "created"
	TurnStatusWaging          TurnStatus = "waging"
	TurnStatusPlaying         TurnStatus = "playing"
	TurnStatusBusted          TurnStatus = "busted"
	TurnStatusDealer          TurnStatus = "dealer"
	TurnStatusDistributeGains TurnStatus = "distributeGains"
	TurnStatusWon             TurnStatus = "won"
	TurnStatusLost            TurnStatus = "lost"
	TurnStatusDraw            TurnStatus = "draw"
)

// IsTerminal reports whether no further transition can leave the status.
func (s TurnStatus) IsTerminal() bool {
	switch s {
	case TurnStatusWon, TurnStatusLost, TurnStatusDraw, TurnStatusBusted:
		return true
	}
	return false
}

// Deck is consumed from the front.
type Deck []Card

// Hand holds the cards of one side. Score and flags are derived from Cards and
// are only ever written by the scoring engine.
type Hand struct {
	Cards       []Card `json:"cards"`
	Score       int    `json:"score"`
	IsBlackjack bool   `json:"is_blackjack"`
	IsBusted    bool   `json:"is_busted"`
}

// Turn is one round of blackjack inside a game, from deal to settlement.
type Turn struct {
	ID         string     `json:"id"`
	GameID     string     `json:"game_id"`
	UserID     string     `json:"user_id"`
	Status     TurnStatus `json:"status"`
	Wager      int64      `json:"wager"`
	Payout     int64      `json:"payout"`
	Deck       Deck       `json:"deck"`
	PlayerHand Hand       `json:"player_hand"`
	DealerHand Hand       `json:"dealer_hand"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so transitions never share slices with their input.
func (t Turn) Clone() Turn {
	t.Deck = append(Deck(nil), t.Deck...)
	t.PlayerHand = t.PlayerHand.Clone()
	t.DealerHand = t.DealerHand.Clone()
	return t
}

func (h Hand) Clone() Hand {
	h.Cards = append([]Card(nil), h.Cards...)
	return h
}
