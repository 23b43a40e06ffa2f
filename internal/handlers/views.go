package handlers

import (
	"github.com/gin-gonic/gin"

	"blackjack-backend/internal/models"
	"blackjack-backend/internal/services"
)

// Views never expose the remaining deck or password hashes.

func cardView(card models.Card) gin.H {
	return gin.H{
		"suit":  card.Suit,
		"rank":  card.Rank,
		"label": card.String(),
	}
}

func handView(hand models.Hand) gin.H {
	cards := make([]gin.H, 0, len(hand.Cards))
	for _, card := range hand.Cards {
		cards = append(cards, cardView(card))
	}
	return gin.H{
		"cards":        cards,
		"score":        hand.Score,
		"is_blackjack": hand.IsBlackjack,
		"is_busted":    hand.IsBusted,
	}
}

func turnView(turn *models.Turn) gin.H {
	return gin.H{
		"id":              turn.ID,
		"game_id":         turn.GameID,
		"status":          turn.Status,
		"wager":           turn.Wager,
		"payout":          turn.Payout,
		"player_hand":     handView(turn.PlayerHand),
		"dealer_hand":     handView(turn.DealerHand),
		"cards_remaining": len(turn.Deck),
		"created_at":      turn.CreatedAt,
		"updated_at":      turn.UpdatedAt,
	}
}

func gameView(game *models.Game) gin.H {
	return gin.H{
		"id":         game.ID,
		"status":     game.Status,
		"turn_ids":   game.TurnIDs,
		"created_at": game.CreatedAt,
		"updated_at": game.UpdatedAt,
	}
}

func gameStateView(state *services.GameState) gin.H {
	view := gameView(state.Game)
	turns := make([]gin.H, 0, len(state.Turns))
	for _, turn := range state.Turns {
		turns = append(turns, turnView(turn))
	}
	view["turns"] = turns
	return view
}

func userView(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"wallet":     user.Wallet,
		"created_at": user.CreatedAt,
	}
}

// playerView is what other players may see of an account.
func playerView(user *models.User) gin.H {
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	}
}

func transactionView(tx *models.Transaction) gin.H {
	return gin.H{
		"id":             tx.ID,
		"type":           tx.Type,
		"amount":         tx.Amount,
		"balance_before": tx.BalanceBefore,
		"balance_after":  tx.BalanceAfter,
		"game_id":        tx.GameID,
		"turn_id":        tx.TurnID,
		"description":    tx.Description,
		"created_at":     tx.CreatedAt,
	}
}
