package services

import "blackjack-backend/internal/models"

// Broadcaster pushes state changes to connected clients of a user.
type Broadcaster interface {
	BroadcastTurnUpdate(userID string, turn *models.Turn)
	BroadcastBalance(userID string, wallet int64)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastTurnUpdate(string, *models.Turn) {}
func (nopBroadcaster) BroadcastBalance(string, int64) {}
