package services_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"blackjack-backend/internal/blackjack"
	apperrors "blackjack-backend/internal/errors"
	"blackjack-backend/internal/models"
	"blackjack-backend/internal/services"
)

// stackedTable deals ranks in order from the first deck, then ordered decks.
func stackedTable(ranks ...models.Rank) *blackjack.Table {
	first := true
	return &blackjack.Table{
		NewDeck: func() models.Deck {
			if !first || len(ranks) == 0 {
				return blackjack.NewDeck()
			}
			first = false
			deck := make(models.Deck, 0, len(ranks))
			for _, r := range ranks {
				deck = append(deck, models.Card{Suit: models.SuitSpades, Rank: r})
			}
			return deck
		},
	}
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	turns    []models.TurnStatus
	balances []int64
}

func (b *recordingBroadcaster) BroadcastTurnUpdate(_ string, turn *models.Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, turn.Status)
}

func (b *recordingBroadcaster) BroadcastBalance(_ string, wallet int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = append(b.balances, wallet)
}

type GameEngineTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *services.MemoryStore
	user  *models.User
	other *models.User
}

func TestGameEngineSuite(t *testing.T) {
	suite.Run(t, new(GameEngineTestSuite))
}

func (s *GameEngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = services.NewMemoryStore()
	s.user = seedUser(s.T(), s.store, 1000)
	s.other = seedUser(s.T(), s.store, 1000)
}

func (s *GameEngineTestSuite) engine(ranks ...models.Rank) *services.GameEngine {
	return services.NewGameEngine(s.store, services.WithTable(stackedTable(ranks...)))
}

func (s *GameEngineTestSuite) requireCode(err error, code apperrors.Code) {
	s.Require().Error(err)
	s.Require().Equal(code, apperrors.CodeOf(err), err.Error())
}

func (s *GameEngineTestSuite) wallet() int64 {
	u, err := s.store.GetUser(s.ctx, s.user.ID)
	s.Require().NoError(err)
	return u.Wallet
}

func (s *GameEngineTestSuite) start(ge *services.GameEngine) *models.Turn {
	state, err := ge.StartGame(s.ctx, s.user.ID)
	s.Require().NoError(err)
	s.Require().Len(state.Turns, 1)
	return state.Turns[0]
}

func (s *GameEngineTestSuite) TestCreateGameRequiresMinimumWallet() {
	poor := seedUser(s.T(), s.store, 9)

	_, err := s.engine().CreateGame(s.ctx, poor.ID)
	s.requireCode(err, apperrors.CodeNotEnoughMoney)
	s.Equal("Not enough money to create a game", apperrors.PublicMessage(err))

	game, err := services.NewGameEngine(s.store, services.WithMinWallet(5)).CreateGame(s.ctx, poor.ID)
	s.Require().NoError(err)
	s.Equal(models.GameStatusCreated, game.Status)
}

func (s *GameEngineTestSuite) TestStartGameDealsWagingTurn() {
	ge := s.engine()
	state, err := ge.StartGame(s.ctx, s.user.ID)
	s.Require().NoError(err)

	s.Equal(models.GameStatusPlaying, state.Game.Status)
	s.Require().Len(state.Turns, 1)
	turn := state.Turns[0]
	s.Equal(models.TurnStatusWaging, turn.Status)
	s.Equal([]string{turn.ID}, state.Game.TurnIDs)
	s.Len(turn.Deck, blackjack.DeckSize)
	s.Empty(turn.PlayerHand.Cards)

	stored, err := ge.GetGameState(s.ctx, s.user.ID, state.Game.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.Turns, 1)
	s.Equal(turn.ID, stored.Turns[0].ID)
}

func (s *GameEngineTestSuite) TestEndToEnd() {
	// deal 2, 3 against 10, hit a 4, dealer draws a 7
	ge := s.engine(models.RankTwo, models.RankThree, models.RankTen, models.RankFour, models.RankSeven)
	turn := s.start(ge)

	res, err := ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
	s.Require().NoError(err)
	s.Equal(int64(900), res.Wallet)
	s.Equal(int64(900), s.wallet())
	s.Equal(models.TurnStatusPlaying, res.Turn.Status)
	s.Len(res.Turn.PlayerHand.Cards, 2)
	s.Len(res.Turn.DealerHand.Cards, 1)
	s.Equal(5, res.Turn.PlayerHand.Score)

	res, err = ge.HitTurn(s.ctx, s.user.ID, turn.ID)
	s.Require().NoError(err)
	s.Len(res.Turn.PlayerHand.Cards, 3)
	s.Equal(9, res.Turn.PlayerHand.Score)

	res, err = ge.StandTurn(s.ctx, s.user.ID, turn.ID)
	s.Require().NoError(err)
	s.Equal(models.TurnStatusLost, res.Turn.Status)
	s.Equal(17, res.Turn.DealerHand.Score)
	s.Equal(int64(900), s.wallet())

	txs, err := s.store.ListTransactions(s.ctx, s.user.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.Equal(models.TransactionTypeWager, txs[0].Type)
	s.Equal(int64(-100), txs[0].Amount)
	s.Equal(int64(1000), txs[0].BalanceBefore)
	s.Equal(int64(900), txs[0].BalanceAfter)
}

func (s *GameEngineTestSuite) TestOutcomes() {
	tests := []struct {
		name   string
		deck   []models.Rank
		hit    bool
		status models.TurnStatus
		wallet int64
		ledger models.TransactionType
	}{
		{
			name:   "player busted",
			deck:   []models.Rank{models.RankKing, models.RankQueen, models.RankFive, models.RankNine},
			hit:    true,
			status: models.TurnStatusBusted,
			wallet: 900,
		},
		{
			name:   "dealer busted",
			deck:   []models.Rank{models.RankTen, models.RankEight, models.RankSix, models.RankKing, models.RankNine},
			status: models.TurnStatusWon,
			wallet: 1100,
			ledger: models.TransactionTypePayout,
		},
		{
			name:   "dealer busted against blackjack",
			deck:   []models.Rank{models.RankAce, models.RankKing, models.RankSix, models.RankKing, models.RankNine},
			status: models.TurnStatusWon,
			wallet: 1200,
			ledger: models.TransactionTypePayout,
		},
		{
			name:   "dealer higher",
			deck:   []models.Rank{models.RankTen, models.RankSeven, models.RankTen, models.RankNine},
			status: models.TurnStatusLost,
			wallet: 900,
		},
		{
			name:   "both blackjack",
			deck:   []models.Rank{models.RankAce, models.RankKing, models.RankAce, models.RankQueen},
			status: models.TurnStatusDraw,
			wallet: 1000,
			ledger: models.TransactionTypeRefund,
		},
		{
			name:   "equal scores",
			deck:   []models.Rank{models.RankTen, models.RankEight, models.RankNine, models.RankNine},
			status: models.TurnStatusDraw,
			wallet: 1000,
			ledger: models.TransactionTypeRefund,
		},
		{
			name:   "player higher",
			deck:   []models.Rank{models.RankTen, models.RankNine, models.RankTen, models.RankSeven},
			status: models.TurnStatusWon,
			wallet: 1100,
			ledger: models.TransactionTypePayout,
		},
		{
			name:   "blackjack beats twenty",
			deck:   []models.Rank{models.RankAce, models.RankJack, models.RankTen, models.RankQueen},
			status: models.TurnStatusWon,
			wallet: 1200,
			ledger: models.TransactionTypePayout,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			ge := s.engine(tt.deck...)
			turn := s.start(ge)

			_, err := ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
			s.Require().NoError(err)

			var res *services.TurnResult
			if tt.hit {
				res, err = ge.HitTurn(s.ctx, s.user.ID, turn.ID)
			} else {
				res, err = ge.StandTurn(s.ctx, s.user.ID, turn.ID)
			}
			s.Require().NoError(err)

			s.Equal(tt.status, res.Turn.Status)
			s.Equal(tt.wallet, res.Wallet)
			s.Equal(tt.wallet, s.wallet())

			txs, err := s.store.ListTransactions(s.ctx, s.user.ID, 10)
			s.Require().NoError(err)
			if tt.ledger == "" {
				s.Len(txs, 1)
				return
			}
			s.Require().Len(txs, 2)
			s.Equal(tt.ledger, txs[0].Type)
			s.Equal(int64(900), txs[0].BalanceBefore)
			s.Equal(tt.wallet, txs[0].BalanceAfter)
			s.Equal(res.Turn.Payout, txs[0].Amount)
		})
	}
}

func (s *GameEngineTestSuite) TestWageGuards() {
	ge := s.engine()
	turn := s.start(ge)

	_, err := ge.WageTurn(s.ctx, s.user.ID, turn.ID, 0)
	s.requireCode(err, apperrors.CodeWagerNotPositive)

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, -5)
	s.requireCode(err, apperrors.CodeWagerNotPositive)

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, 1001)
	s.requireCode(err, apperrors.CodeInsufficientFunds)
	s.Equal(apperrors.KindInvalidInput, apperrors.KindOf(err))
	s.Equal(int64(1000), s.wallet())

	_, err = ge.HitTurn(s.ctx, s.user.ID, turn.ID)
	s.requireCode(err, apperrors.CodeTurnNotPlaying)

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, 1000)
	s.Require().NoError(err)
	s.Equal(int64(0), s.wallet())

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, 10)
	s.requireCode(err, apperrors.CodeTurnNotWaging)
	s.Equal(int64(0), s.wallet())
}

func (s *GameEngineTestSuite) TestOneActiveTurnPerGame() {
	ge := s.engine(models.RankTen, models.RankNine, models.RankTen, models.RankSeven)
	turn := s.start(ge)

	_, err := ge.CreateTurn(s.ctx, s.user.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeTurnAlreadyPlaying)

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
	s.Require().NoError(err)
	_, err = ge.CreateTurn(s.ctx, s.user.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeTurnAlreadyPlaying)

	_, err = ge.StandTurn(s.ctx, s.user.ID, turn.ID)
	s.Require().NoError(err)

	second, err := ge.CreateTurn(s.ctx, s.user.ID, turn.GameID)
	s.Require().NoError(err)
	s.Equal(models.TurnStatusWaging, second.Status)

	game, err := ge.GetGame(s.ctx, s.user.ID, turn.GameID)
	s.Require().NoError(err)
	s.Equal([]string{turn.ID, second.ID}, game.TurnIDs)
}

func (s *GameEngineTestSuite) TestOwnership() {
	ge := s.engine()
	turn := s.start(ge)

	_, err := ge.GetGame(s.ctx, s.other.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeGameForbidden)
	s.Equal("You are not allowed to access this game", apperrors.PublicMessage(err))

	_, err = ge.WageTurn(s.ctx, s.other.ID, turn.ID, 100)
	s.requireCode(err, apperrors.CodeTurnForbidden)

	err = ge.DeleteGame(s.ctx, s.other.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeGameForbidden)

	_, err = ge.GetGame(s.ctx, s.user.ID, "missing")
	s.requireCode(err, apperrors.CodeGameNotFound)
	s.Equal("Game not found", apperrors.PublicMessage(err))

	_, err = ge.GetTurn(s.ctx, s.user.ID, "missing")
	s.requireCode(err, apperrors.CodeTurnNotFound)
}

func (s *GameEngineTestSuite) TestSettleResumesDealerTurn() {
	ge := s.engine(models.RankTen, models.RankNine, models.RankTen, models.RankSeven)
	turn := s.start(ge)

	_, err := ge.SettleTurn(s.ctx, s.user.ID, turn.ID)
	s.requireCode(err, apperrors.CodeTurnNotSettleable)

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
	s.Require().NoError(err)

	// leave the turn with the dealer, as an interrupted stand would
	stuck, err := s.store.GetTurn(s.ctx, turn.ID)
	s.Require().NoError(err)
	stuck.Status = models.TurnStatusDealer
	s.Require().NoError(s.store.Commit(s.ctx, (&services.Changeset{}).SaveTurn(stuck)))

	res, err := ge.SettleTurn(s.ctx, s.user.ID, turn.ID)
	s.Require().NoError(err)
	s.Equal(models.TurnStatusWon, res.Turn.Status)
	s.Equal(int64(1100), s.wallet())

	_, err = ge.SettleTurn(s.ctx, s.user.ID, turn.ID)
	s.requireCode(err, apperrors.CodeTurnNotSettleable)
	s.Equal(int64(1100), s.wallet())
}

func (s *GameEngineTestSuite) TestFinishGame() {
	ge := s.engine(models.RankTen, models.RankNine, models.RankTen, models.RankSeven)
	turn := s.start(ge)

	_, err := ge.FinishGame(s.ctx, s.user.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeGameHasActiveTurn)

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
	s.Require().NoError(err)
	_, err = ge.StandTurn(s.ctx, s.user.ID, turn.ID)
	s.Require().NoError(err)

	game, err := ge.FinishGame(s.ctx, s.user.ID, turn.GameID)
	s.Require().NoError(err)
	s.Equal(models.GameStatusFinished, game.Status)

	_, err = ge.CreateTurn(s.ctx, s.user.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeGameNotStarted)

	_, err = ge.FinishGame(s.ctx, s.user.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeGameFinished)
}

func (s *GameEngineTestSuite) TestDeleteGameRemovesTurns() {
	ge := s.engine()
	turn := s.start(ge)

	s.Require().NoError(ge.DeleteGame(s.ctx, s.user.ID, turn.GameID))

	_, err := ge.GetGame(s.ctx, s.user.ID, turn.GameID)
	s.requireCode(err, apperrors.CodeGameNotFound)
	_, err = s.store.GetTurn(s.ctx, turn.ID)
	s.ErrorIs(err, services.ErrNotFound)
}

func (s *GameEngineTestSuite) TestListGamesPages() {
	ge := s.engine()
	for i := 0; i < 3; i++ {
		_, err := ge.CreateGame(s.ctx, s.user.ID)
		s.Require().NoError(err)
	}
	_, err := ge.CreateGame(s.ctx, s.other.ID)
	s.Require().NoError(err)

	page, err := ge.ListGames(s.ctx, s.user.ID, 2, 1)
	s.Require().NoError(err)
	s.Len(page, 2)

	page, err = ge.ListGames(s.ctx, s.user.ID, 2, 2)
	s.Require().NoError(err)
	s.Len(page, 1)
}

func (s *GameEngineTestSuite) TestListGamesPageBeyondRange() {
	ge := s.engine()
	_, err := ge.CreateGame(s.ctx, s.user.ID)
	s.Require().NoError(err)

	for _, page := range []int{math.MaxInt / 10, math.MaxInt, math.MaxInt/20 + 2} {
		var games []*models.Game
		s.Require().NotPanics(func() {
			games, err = ge.ListGames(s.ctx, s.user.ID, 20, page)
		})
		s.Require().NoError(err)
		s.Empty(games, "page %d", page)
	}

	games, err := s.store.ListGames(s.ctx, s.user.ID, 20, -36)
	s.Require().NoError(err)
	s.Len(games, 1)
}

func (s *GameEngineTestSuite) TestTurnOwnershipFollowsGame() {
	ge := s.engine()
	turn := s.start(ge)

	// the owner copied onto the turn is not what grants access
	stored, err := s.store.GetTurn(s.ctx, turn.ID)
	s.Require().NoError(err)
	stored.UserID = s.other.ID
	s.Require().NoError(s.store.Commit(s.ctx, (&services.Changeset{}).SaveTurn(stored)))

	got, err := ge.GetTurn(s.ctx, s.user.ID, turn.ID)
	s.Require().NoError(err)
	s.Equal(turn.ID, got.ID)

	_, err = ge.GetTurn(s.ctx, s.other.ID, turn.ID)
	s.requireCode(err, apperrors.CodeTurnForbidden)
}

func (s *GameEngineTestSuite) TestBroadcastsBalance() {
	rec := &recordingBroadcaster{}
	ge := s.engine(models.RankTen, models.RankNine, models.RankTen, models.RankSeven)
	ge.SetBroadcaster(rec)
	turn := s.start(ge)

	_, err := ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
	s.Require().NoError(err)
	_, err = ge.StandTurn(s.ctx, s.user.ID, turn.ID)
	s.Require().NoError(err)

	s.Equal([]int64{900, 1100}, rec.balances)
	s.Equal([]models.TurnStatus{models.TurnStatusWaging, models.TurnStatusPlaying, models.TurnStatusWon}, rec.turns)
}

// racingStore lets another writer commit right before the engine does.
type racingStore struct {
	*services.MemoryStore
	race func()
}

func (r *racingStore) Commit(ctx context.Context, cs *services.Changeset) error {
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return r.MemoryStore.Commit(ctx, cs)
}

func (s *GameEngineTestSuite) TestConcurrentUpdateRejected() {
	store := &racingStore{MemoryStore: s.store}
	ge := services.NewGameEngine(store, services.WithTable(stackedTable()))
	state, err := ge.StartGame(s.ctx, s.user.ID)
	s.Require().NoError(err)
	turn := state.Turns[0]

	store.race = func() {
		u, err := s.store.GetUser(s.ctx, s.user.ID)
		s.Require().NoError(err)
		u.Wallet = 500
		s.Require().NoError(s.store.Commit(s.ctx, (&services.Changeset{}).SaveUser(u)))
	}

	_, err = ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
	s.requireCode(err, apperrors.CodeConcurrentUpdate)
	s.Equal(apperrors.KindConflict, apperrors.KindOf(err))

	// nothing of the rejected wage was applied
	s.Equal(int64(500), s.wallet())
	stored, err := s.store.GetTurn(s.ctx, turn.ID)
	s.Require().NoError(err)
	s.Equal(models.TurnStatusWaging, stored.Status)
	txs, err := s.store.ListTransactions(s.ctx, s.user.ID, 10)
	s.Require().NoError(err)
	s.Empty(txs)

	res, err := ge.WageTurn(s.ctx, s.user.ID, turn.ID, 100)
	s.Require().NoError(err)
	s.Equal(int64(400), res.Wallet)
}
