package blackjack

import "blackjack-backend/internal/models"

// Outcome is the result of settling a turn.
type Outcome struct {
	Status models.TurnStatus
	Credit int64
}

// Payout applies the settlement rules in a fixed order: player bust first,
// then dealer bust, then the score comparison. A blackjack pays double gains;
// a push returns the stake.
func Payout(wager int64, player, dealer models.Hand) Outcome {
	if player.IsBusted {
		return Outcome{Status: models.TurnStatusLost}
	}

	gains := wager
	if player.IsBlackjack {
		gains = wager * 2
	}

	if dealer.IsBusted {
		return Outcome{Status: models.TurnStatusWon, Credit: gains + wager}
	}
	if dealer.Score > player.Score {
		return Outcome{Status: models.TurnStatusLost}
	}
	if dealer.IsBlackjack && player.IsBlackjack {
		return Outcome{Status: models.TurnStatusDraw, Credit: wager}
	}
	if dealer.Score == player.Score {
		return Outcome{Status: models.TurnStatusDraw, Credit: wager}
	}
	return Outcome{Status: models.TurnStatusWon, Credit: gains + wager}
}
