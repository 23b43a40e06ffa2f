package blackjack

import (
	"time"

	apperrors "blackjack-backend/internal/errors"
	"blackjack-backend/internal/models"
)

// Table runs the turn state machine. Every transition takes a turn by value and
// returns the next turn; when it fails the input is left as it was.
type Table struct {
	NewDeck DeckFactory
	Now     func() time.Time
}

// NewTable returns a table dealing from uniformly shuffled decks.
func NewTable() *Table {
	return &Table{NewDeck: ShuffledDecks, Now: time.Now}
}

func (tb *Table) now() time.Time {
	if tb.Now == nil {
		return time.Now().UTC()
	}
	return tb.Now().UTC()
}

func (tb *Table) deckFactory() DeckFactory {
	if tb.NewDeck == nil {
		return ShuffledDecks
	}
	return tb.NewDeck
}

// CanCreateTurn checks that game accepts a new turn given its latest turn,
// which is nil when the game has none yet.
func CanCreateTurn(game *models.Game, last *models.Turn) error {
	if game.Status != models.GameStatusCreated && game.Status != models.GameStatusPlaying {
		return apperrors.New(apperrors.CodeGameNotStarted, "The game has not started")
	}
	if last != nil && !last.Status.IsTerminal() {
		return apperrors.New(apperrors.CodeTurnAlreadyPlaying, "A turn is already playing")
	}
	return nil
}

// NewTurn returns a turn in status created with a fresh deck and empty hands.
func (tb *Table) NewTurn(id string, game *models.Game) models.Turn {
	now := tb.now()
	return models.Turn{
		ID:         id,
		GameID:     game.ID,
		UserID:     game.UserID,
		Status:     models.TurnStatusCreated,
		Deck:       tb.deckFactory()(),
		PlayerHand: NewHand(),
		DealerHand: NewHand(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// OpenWagering moves a created turn to waging.
func (tb *Table) OpenWagering(t models.Turn) (models.Turn, error) {
	if t.Status != models.TurnStatusCreated {
		return t, apperrors.New(apperrors.CodeTurnNotCreated, "The turn is already open")
	}
	next := t.Clone()
	next.Status = models.TurnStatusWaging
	next.UpdatedAt = tb.now()
	return next, nil
}

// Wage fixes the stake, deals two cards to the player and one to the dealer,
// and moves the turn to playing. The caller debits amount from the wallet in
// the same commit.
func (tb *Table) Wage(t models.Turn, amount, wallet int64) (models.Turn, error) {
	if t.Status != models.TurnStatusWaging {
		return t, apperrors.New(apperrors.CodeTurnNotWaging, "You cannot wage this turn")
	}
	if amount <= 0 {
		return t, apperrors.New(apperrors.CodeWagerNotPositive, "Wager must be positive")
	}
	if amount > wallet {
		return t, apperrors.New(apperrors.CodeInsufficientFunds, "Not enough funds")
	}

	next := t.Clone()
	next.Wager = amount

	var card models.Card
	next.PlayerHand = NewHand()
	for i := 0; i < 2; i++ {
		card, next.Deck = Draw(next.Deck, tb.deckFactory())
		next.PlayerHand = AddCard(next.PlayerHand, card)
	}
	next.DealerHand = NewHand()
	card, next.Deck = Draw(next.Deck, tb.deckFactory())
	next.DealerHand = AddCard(next.DealerHand, card)

	next.Status = models.TurnStatusPlaying
	next.UpdatedAt = tb.now()
	return next, nil
}

// Hit draws one card for the player. A bust ends the turn.
func (tb *Table) Hit(t models.Turn) (models.Turn, error) {
	if t.Status != models.TurnStatusPlaying {
		return t, apperrors.New(apperrors.CodeTurnNotPlaying, "You can not draw a card")
	}

	next := t.Clone()
	var card models.Card
	card, next.Deck = Draw(next.Deck, tb.deckFactory())
	next.PlayerHand = AddCard(next.PlayerHand, card)
	if next.PlayerHand.IsBusted {
		next.Status = models.TurnStatusBusted
	}
	next.UpdatedAt = tb.now()
	return next, nil
}

// Stand hands the turn over to the dealer.
func (tb *Table) Stand(t models.Turn) (models.Turn, error) {
	if t.Status != models.TurnStatusPlaying {
		return t, apperrors.New(apperrors.CodeTurnNotPlaying, "You can not stand")
	}
	next := t.Clone()
	next.Status = models.TurnStatusDealer
	next.UpdatedAt = tb.now()
	return next, nil
}

// DealerAutoDraw draws for the dealer until the score reaches 17, then moves
// the turn to distributeGains. The loop ends because every draw adds at least
// one point and Draw never runs dry.
func (tb *Table) DealerAutoDraw(t models.Turn) (models.Turn, error) {
	if t.Status != models.TurnStatusDealer {
		return t, apperrors.New(apperrors.CodeTurnNotDealer, "You cannot draw a card at this time")
	}

	next := t.Clone()
	next.DealerHand = Rescore(next.DealerHand)
	var card models.Card
	for next.DealerHand.Score < DealerStandsOn {
		card, next.Deck = Draw(next.Deck, tb.deckFactory())
		next.DealerHand = AddCard(next.DealerHand, card)
	}
	next.Status = models.TurnStatusDistributeGains
	next.UpdatedAt = tb.now()
	return next, nil
}

// Settle resolves a turn in distributeGains. The returned turn carries the
// final status and the payout the caller must credit to the wallet.
func (tb *Table) Settle(t models.Turn) (models.Turn, error) {
	if t.Status != models.TurnStatusDistributeGains {
		return t, apperrors.New(apperrors.CodeTurnNotSettleable, "You can not distribute gains")
	}
	outcome := Payout(t.Wager, t.PlayerHand, t.DealerHand)

	next := t.Clone()
	next.Status = outcome.Status
	next.Payout = outcome.Credit
	next.UpdatedAt = tb.now()
	return next, nil
}

// Finish runs a stood turn through the dealer draw and settlement.
func (tb *Table) Finish(t models.Turn) (models.Turn, error) {
	var err error
	if t.Status == models.TurnStatusDealer {
		if t, err = tb.DealerAutoDraw(t); err != nil {
			return t, err
		}
	}
	return tb.Settle(t)
}
