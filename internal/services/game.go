package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"blackjack-backend/internal/blackjack"
	apperrors "blackjack-backend/internal/errors"
	"blackjack-backend/internal/models"
)

const (
	DefaultMinWallet = 10
	DefaultPageSize  = 20
	MaxPageSize      = 100
)

// GameEngine runs games and turns for authenticated users. Every state
// transition is committed together with the wallet movement it causes.
type GameEngine struct {
	store       Store
	table       *blackjack.Table
	broadcaster Broadcaster
	log         *zap.SugaredLogger
	minWallet   int64
	now         func() time.Time
}

type EngineOption func(*GameEngine)

func WithTable(table *blackjack.Table) EngineOption {
	return func(ge *GameEngine) { ge.table = table }
}

func WithLogger(log *zap.SugaredLogger) EngineOption {
	return func(ge *GameEngine) { ge.log = log }
}

func WithMinWallet(amount int64) EngineOption {
	return func(ge *GameEngine) { ge.minWallet = amount }
}

func WithClock(now func() time.Time) EngineOption {
	return func(ge *GameEngine) { ge.now = now }
}

func NewGameEngine(store Store, opts ...EngineOption) *GameEngine {
	ge := &GameEngine{
		store:       store,
		table:       blackjack.NewTable(),
		broadcaster: nopBroadcaster{},
		log:         zap.NewNop().Sugar(),
		minWallet:   DefaultMinWallet,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(ge)
	}
	return ge
}

// SetBroadcaster wires the push channel once the websocket hub exists.
func (ge *GameEngine) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	ge.broadcaster = b
}

// GameState is a game together with its turns in play order.
type GameState struct {
	Game  *models.Game
	Turns []*models.Turn
}

// TurnResult is a turn after an action and the wallet it left behind.
type TurnResult struct {
	Turn   *models.Turn
	Wallet int64
}

// CreateGame opens a game for a user who can afford at least the minimum wager.
func (ge *GameEngine) CreateGame(ctx context.Context, userID string) (*models.Game, error) {
	user, err := ge.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.Wallet < ge.minWallet {
		return nil, apperrors.New(apperrors.CodeNotEnoughMoney, "Not enough money to create a game")
	}

	now := ge.now().UTC()
	game := &models.Game{
		ID:        models.GenerateID(),
		UserID:    user.ID,
		Status:    models.GameStatusCreated,
		TurnIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := ge.commit(ctx, (&Changeset{}).SaveGame(game)); err != nil {
		return nil, err
	}

	ge.log.Infow("game created", "game_id", game.ID, "user_id", user.ID)
	return game, nil
}

// InitializeGame deals the first turn of game. Errors from turn creation are
// returned as they are.
func (ge *GameEngine) InitializeGame(ctx context.Context, game *models.Game) (*GameState, error) {
	next, turn, err := ge.createTurn(ctx, game)
	if err != nil {
		return nil, err
	}
	return &GameState{Game: next, Turns: []*models.Turn{turn}}, nil
}

// StartGame creates a game and deals its first turn.
func (ge *GameEngine) StartGame(ctx context.Context, userID string) (*GameState, error) {
	game, err := ge.CreateGame(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ge.InitializeGame(ctx, game)
}

func (ge *GameEngine) CreateTurn(ctx context.Context, userID, gameID string) (*models.Turn, error) {
	game, err := ge.GetGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	_, turn, err := ge.createTurn(ctx, game)
	if err != nil {
		return nil, err
	}
	return turn, nil
}

func (ge *GameEngine) createTurn(ctx context.Context, game *models.Game) (*models.Game, *models.Turn, error) {
	var last *models.Turn
	if id, ok := game.LastTurnID(); ok {
		t, err := ge.store.GetTurn(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, nil, storeError(err, apperrors.CodeTurnNotFound, "Turn not found")
		}
		last = t
	}

	if err := blackjack.CanCreateTurn(game, last); err != nil {
		return nil, nil, err
	}

	created := ge.table.NewTurn(models.GenerateID(), game)
	turn, err := ge.table.OpenWagering(created)
	if err != nil {
		return nil, nil, err
	}

	next := game.Clone()
	next.TurnIDs = append(next.TurnIDs, turn.ID)
	next.Status = models.GameStatusPlaying
	next.UpdatedAt = turn.CreatedAt

	if err := ge.commit(ctx, (&Changeset{}).SaveGame(&next).SaveTurn(&turn)); err != nil {
		return nil, nil, err
	}

	ge.log.Infow("turn created", "game_id", game.ID, "turn_id", turn.ID, "turn_number", len(next.TurnIDs))
	ge.broadcaster.BroadcastTurnUpdate(game.UserID, &turn)
	return &next, &turn, nil
}

// GetGame loads a game owned by userID.
func (ge *GameEngine) GetGame(ctx context.Context, userID, gameID string) (*models.Game, error) {
	game, err := ge.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, storeError(err, apperrors.CodeGameNotFound, "Game not found")
	}
	if game.UserID != userID {
		return nil, apperrors.New(apperrors.CodeGameForbidden, "You are not allowed to access this game")
	}
	return game, nil
}

func (ge *GameEngine) GetGameState(ctx context.Context, userID, gameID string) (*GameState, error) {
	game, err := ge.GetGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}

	turns, err := ge.store.GetTurns(ctx, game.TurnIDs)
	if err != nil {
		return nil, apperrors.Internal("failed to load turns", err)
	}
	return &GameState{Game: game, Turns: turns}, nil
}

// ListGames pages through the user's games, newest first. Pages start at 1.
func (ge *GameEngine) ListGames(ctx context.Context, userID string, limit, page int) ([]*models.Game, error) {
	limit, offset, ok := pageWindow(limit, page)
	if !ok {
		return []*models.Game{}, nil
	}

	games, err := ge.store.ListGames(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal("failed to list games", err)
	}
	return games, nil
}

// pageWindow clamps limit and converts a 1-based page into an offset. ok is
// false when the offset would not fit in an int; no store holds that many rows.
func pageWindow(limit, page int) (int, int, bool) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	if page-1 > math.MaxInt/limit {
		return limit, 0, false
	}
	return limit, (page - 1) * limit, true
}

// DeleteGame removes a game and all of its turns.
func (ge *GameEngine) DeleteGame(ctx context.Context, userID, gameID string) error {
	game, err := ge.GetGame(ctx, userID, gameID)
	if err != nil {
		return err
	}

	cs := &Changeset{
		DeleteGames: []string{game.ID},
		DeleteTurns: append([]string(nil), game.TurnIDs...),
	}
	if err := ge.commit(ctx, cs); err != nil {
		return err
	}

	ge.log.Infow("game deleted", "game_id", game.ID, "turns", len(game.TurnIDs))
	return nil
}

// FinishGame closes a game whose last turn is settled.
func (ge *GameEngine) FinishGame(ctx context.Context, userID, gameID string) (*models.Game, error) {
	game, err := ge.GetGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status == models.GameStatusFinished {
		return nil, apperrors.New(apperrors.CodeGameFinished, "The game is already finished")
	}

	if id, ok := game.LastTurnID(); ok {
		last, err := ge.store.GetTurn(ctx, id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, storeError(err, apperrors.CodeTurnNotFound, "Turn not found")
		}
		if last != nil && !last.Status.IsTerminal() {
			return nil, apperrors.New(apperrors.CodeGameHasActiveTurn, "The game has a turn in progress")
		}
	}

	next := game.Clone()
	next.Status = models.GameStatusFinished
	next.UpdatedAt = ge.now().UTC()
	if err := ge.commit(ctx, (&Changeset{}).SaveGame(&next)); err != nil {
		return nil, err
	}

	ge.log.Infow("game finished", "game_id", game.ID)
	return &next, nil
}

// GetTurn loads a turn whose game belongs to userID.
func (ge *GameEngine) GetTurn(ctx context.Context, userID, turnID string) (*models.Turn, error) {
	turn, err := ge.store.GetTurn(ctx, turnID)
	if err != nil {
		return nil, storeError(err, apperrors.CodeTurnNotFound, "Turn not found")
	}

	game, err := ge.store.GetGame(ctx, turn.GameID)
	if err != nil {
		return nil, storeError(err, apperrors.CodeTurnNotFound, "Turn not found")
	}
	if game.UserID != userID {
		return nil, apperrors.New(apperrors.CodeTurnForbidden, "You are not allowed to access this turn")
	}
	return turn, nil
}

// WageTurn stakes amount on a waging turn and deals the opening cards. The
// wallet is debited in the same commit.
func (ge *GameEngine) WageTurn(ctx context.Context, userID, turnID string, amount int64) (*TurnResult, error) {
	turn, user, err := ge.loadTurn(ctx, userID, turnID)
	if err != nil {
		return nil, err
	}

	next, err := ge.table.Wage(*turn, amount, user.Wallet)
	if err != nil {
		return nil, err
	}

	rec := ge.move(user, &next, models.TransactionTypeWager, -amount,
		fmt.Sprintf("Wager of %s", models.FormatChips(amount)))

	cs := (&Changeset{}).SaveUser(user).SaveTurn(&next).Record(rec)
	if err := ge.commit(ctx, cs); err != nil {
		return nil, err
	}

	ge.log.Infow("turn waged",
		"turn_id", next.ID,
		"wager", amount,
		"player_score", next.PlayerHand.Score,
		"dealer_score", next.DealerHand.Score,
	)
	ge.publish(user, &next)
	return &TurnResult{Turn: &next, Wallet: user.Wallet}, nil
}

// HitTurn draws a card for the player. A busted turn keeps the wager.
func (ge *GameEngine) HitTurn(ctx context.Context, userID, turnID string) (*TurnResult, error) {
	turn, user, err := ge.loadTurn(ctx, userID, turnID)
	if err != nil {
		return nil, err
	}

	next, err := ge.table.Hit(*turn)
	if err != nil {
		return nil, err
	}

	if err := ge.commit(ctx, (&Changeset{}).SaveTurn(&next)); err != nil {
		return nil, err
	}

	ge.log.Debugw("turn hit", "turn_id", next.ID, "player_score", next.PlayerHand.Score, "status", next.Status)
	ge.broadcaster.BroadcastTurnUpdate(user.ID, &next)
	return &TurnResult{Turn: &next, Wallet: user.Wallet}, nil
}

// StandTurn ends the player's actions, lets the dealer draw and settles the
// turn, all in one commit.
func (ge *GameEngine) StandTurn(ctx context.Context, userID, turnID string) (*TurnResult, error) {
	turn, user, err := ge.loadTurn(ctx, userID, turnID)
	if err != nil {
		return nil, err
	}

	stood, err := ge.table.Stand(*turn)
	if err != nil {
		return nil, err
	}
	return ge.settle(ctx, user, stood)
}

// SettleTurn finishes a turn left with the dealer or awaiting settlement.
func (ge *GameEngine) SettleTurn(ctx context.Context, userID, turnID string) (*TurnResult, error) {
	turn, user, err := ge.loadTurn(ctx, userID, turnID)
	if err != nil {
		return nil, err
	}
	return ge.settle(ctx, user, *turn)
}

func (ge *GameEngine) settle(ctx context.Context, user *models.User, turn models.Turn) (*TurnResult, error) {
	next, err := ge.table.Finish(turn)
	if err != nil {
		return nil, err
	}

	cs := (&Changeset{}).SaveTurn(&next)
	if next.Payout > 0 {
		typ := models.TransactionTypePayout
		desc := fmt.Sprintf("Won %s", models.FormatChips(next.Payout))
		if next.Status == models.TurnStatusDraw {
			typ = models.TransactionTypeRefund
			desc = fmt.Sprintf("Push, %s returned", models.FormatChips(next.Payout))
		}
		cs.SaveUser(user).Record(ge.move(user, &next, typ, next.Payout, desc))
	}

	if err := ge.commit(ctx, cs); err != nil {
		return nil, err
	}

	ge.log.Infow("turn settled",
		"turn_id", next.ID,
		"status", next.Status,
		"wager", next.Wager,
		"payout", next.Payout,
		"player_score", next.PlayerHand.Score,
		"dealer_score", next.DealerHand.Score,
	)
	ge.publish(user, &next)
	return &TurnResult{Turn: &next, Wallet: user.Wallet}, nil
}

// move applies amount to the wallet and returns the ledger entry for it.
func (ge *GameEngine) move(user *models.User, turn *models.Turn, typ models.TransactionType, amount int64, desc string) *models.Transaction {
	now := ge.now().UTC()
	before := user.Wallet
	user.Wallet += amount
	user.UpdatedAt = now

	return &models.Transaction{
		ID:            models.GenerateID(),
		UserID:        user.ID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  user.Wallet,
		GameID:        turn.GameID,
		TurnID:        turn.ID,
		Description:   desc,
		CreatedAt:     now,
	}
}

func (ge *GameEngine) publish(user *models.User, turn *models.Turn) {
	ge.broadcaster.BroadcastTurnUpdate(user.ID, turn)
	ge.broadcaster.BroadcastBalance(user.ID, user.Wallet)
}

func (ge *GameEngine) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := ge.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, apperrors.CodeUserNotFound, "User not found")
	}
	return user, nil
}

func (ge *GameEngine) loadTurn(ctx context.Context, userID, turnID string) (*models.Turn, *models.User, error) {
	turn, err := ge.GetTurn(ctx, userID, turnID)
	if err != nil {
		return nil, nil, err
	}
	user, err := ge.loadUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return turn, user, nil
}

func (ge *GameEngine) commit(ctx context.Context, cs *Changeset) error {
	if err := ge.store.Commit(ctx, cs); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			ge.log.Warnw("concurrent update rejected", "error", err)
		}
		return storeError(err, apperrors.CodeInternal, "")
	}
	return nil
}

// storeError translates store sentinels into the error taxonomy.
func storeError(err error, notFound apperrors.Code, message string) error {
	switch {
	case errors.Is(err, ErrNotFound) && notFound != apperrors.CodeInternal:
		return apperrors.New(notFound, message)
	case errors.Is(err, ErrVersionConflict):
		return apperrors.Wrap(apperrors.CodeConcurrentUpdate, "The resource was modified by another request, retry", err)
	default:
		return apperrors.Internal("store failure", err)
	}
}
