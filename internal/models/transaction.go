package models

import "time"

type TransactionType string

const (
	TransactionTypeWager  TransactionType = "wager"
	TransactionTypePayout TransactionType = "payout"
	TransactionTypeRefund TransactionType = "refund"
)

// Transaction is one wallet movement. It is committed together with the turn
// transition that caused it.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	GameID        string          `json:"game_id,omitempty"`
	TurnID        string          `json:"turn_id,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
}
