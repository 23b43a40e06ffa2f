package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"blackjack-backend/internal/models"
)

type userRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Wallet       int64  `gorm:"not null"`
	Version      int64  `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type gameRow struct {
	ID        string         `gorm:"primaryKey;size:36"`
	UserID    string         `gorm:"index;not null"`
	Status    string         `gorm:"not null"`
	TurnIDs   datatypes.JSON `gorm:"not null"`
	Version   int64          `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
	UpdatedAt time.Time
}

func (gameRow) TableName() string { return "games" }

type turnRow struct {
	ID         string         `gorm:"primaryKey;size:36"`
	GameID     string         `gorm:"index;not null"`
	UserID     string         `gorm:"index;not null"`
	Status     string         `gorm:"not null"`
	Wager      int64          `gorm:"not null"`
	Payout     int64          `gorm:"not null"`
	Deck       datatypes.JSON `gorm:"not null"`
	PlayerHand datatypes.JSON `gorm:"not null"`
	DealerHand datatypes.JSON `gorm:"not null"`
	Version    int64          `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (turnRow) TableName() string { return "turns" }

type transactionRow struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"index;not null"`
	Type          string `gorm:"not null"`
	Amount        int64  `gorm:"not null"`
	BalanceBefore int64  `gorm:"not null"`
	BalanceAfter  int64  `gorm:"not null"`
	GameID        string
	TurnID        string
	Description   string
	CreatedAt     time.Time `gorm:"index"`
}

func (transactionRow) TableName() string { return "transactions" }

// GormStore persists the aggregates in postgres. Hands, decks and turn ids are
// JSON columns; every update is guarded by the version the caller loaded.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStoreFromDB(db)
}

// NewGormStoreFromDB migrates the schema on db and wraps it.
func NewGormStoreFromDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&userRow{}, &gameRow{}, &turnRow{}, &transactionRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate failed: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func first[R any](ctx context.Context, db *gorm.DB, query string, arg any) (*R, error) {
	var row R
	err := db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row, err := first[userRow](ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row, err := first[userRow](ctx, s.db, "email = ?", email)
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row, err := first[userRow](ctx, s.db, "username = ?", username)
	if err != nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *GormStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	row, err := first[gameRow](ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.model()
}

// ListUsers returns users in registration order.
func (s *GormStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	q := s.db.WithContext(ctx).Order("created_at").Order("id").Offset(max(offset, 0))
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []userRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].model())
	}
	return users, nil
}

func (s *GormStore) ListGames(ctx context.Context, userID string, limit, offset int) ([]*models.Game, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").Offset(max(offset, 0))
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []gameRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	games := make([]*models.Game, 0, len(rows))
	for i := range rows {
		g, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

func (s *GormStore) ListGameIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&gameRow{}).
		Where("user_id = ?", userID).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) GetTurn(ctx context.Context, id string) (*models.Turn, error) {
	row, err := first[turnRow](ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return row.model()
}

// GetTurns returns the turns found, in the order of ids.
func (s *GormStore) GetTurns(ctx context.Context, ids []string) ([]*models.Turn, error) {
	if len(ids) == 0 {
		return []*models.Turn{}, nil
	}

	var rows []turnRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Turn, len(rows))
	for i := range rows {
		t, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		byID[t.ID] = t
	}

	turns := make([]*models.Turn, 0, len(rows))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			turns = append(turns, t)
		}
	}
	return turns, nil
}

func (s *GormStore) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > MaxTransactionsPerUser {
		limit = 50
	}

	var rows []transactionRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*models.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// Commit applies the changeset in one database transaction.
func (s *GormStore) Commit(ctx context.Context, cs *Changeset) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range cs.Users {
			row := newUserRow(u)
			if err := save(tx, &row, u.Version, map[string]any{
				"username":      row.Username,
				"email":         row.Email,
				"password_hash": row.PasswordHash,
				"wallet":        row.Wallet,
				"updated_at":    row.UpdatedAt,
			}); err != nil {
				return fmt.Errorf("user %s: %w", u.ID, err)
			}
		}

		for _, g := range cs.Games {
			row, err := newGameRow(g)
			if err != nil {
				return err
			}
			if err := save(tx, &row, g.Version, map[string]any{
				"status":     row.Status,
				"turn_ids":   row.TurnIDs,
				"updated_at": row.UpdatedAt,
			}); err != nil {
				return fmt.Errorf("game %s: %w", g.ID, err)
			}
		}

		for _, t := range cs.Turns {
			row, err := newTurnRow(t)
			if err != nil {
				return err
			}
			if err := save(tx, &row, t.Version, map[string]any{
				"status":      row.Status,
				"wager":       row.Wager,
				"payout":      row.Payout,
				"deck":        row.Deck,
				"player_hand": row.PlayerHand,
				"dealer_hand": row.DealerHand,
				"updated_at":  row.UpdatedAt,
			}); err != nil {
				return fmt.Errorf("turn %s: %w", t.ID, err)
			}
		}

		for _, rec := range cs.Transactions {
			row := newTransactionRow(rec)
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to record transaction: %w", err)
			}
		}

		if len(cs.DeleteTurns) > 0 {
			if err := tx.Where("id IN ?", cs.DeleteTurns).Delete(&turnRow{}).Error; err != nil {
				return err
			}
		}
		if len(cs.DeleteGames) > 0 {
			if err := tx.Where("id IN ?", cs.DeleteGames).Delete(&gameRow{}).Error; err != nil {
				return err
			}
		}
		if len(cs.DeleteUsers) > 0 {
			if err := tx.Where("user_id IN ?", cs.DeleteUsers).Delete(&transactionRow{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", cs.DeleteUsers).Delete(&userRow{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cs.bumpVersions()
	return nil
}

// versionedRow is implemented by the row types that carry a version column.
type versionedRow interface {
	primaryKey() string
	setVersion(v int64)
}

// save inserts row when version is 0 and otherwise updates it only where the
// stored version still equals version. Unique index violations surface as
// ErrDuplicate.
func save(tx *gorm.DB, row versionedRow, version int64, updates map[string]any) error {
	if version == 0 {
		row.setVersion(1)
		err := tx.Create(row).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}

	updates["version"] = version + 1
	res := tx.Model(row).Where("id = ? AND version = ?", row.primaryKey(), version).Updates(updates)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *userRow) primaryKey() string { return r.ID }
func (r *userRow) setVersion(v int64) { r.Version = v }
func (r *gameRow) primaryKey() string { return r.ID }
func (r *gameRow) setVersion(v int64) { r.Version = v }
func (r *turnRow) primaryKey() string { return r.ID }
func (r *turnRow) setVersion(v int64) { r.Version = v }

func newUserRow(u *models.User) userRow {
	return userRow{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Wallet:       u.Wallet,
		Version:      u.Version,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r *userRow) model() *models.User {
	return &models.User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Wallet:       r.Wallet,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func newGameRow(g *models.Game) (gameRow, error) {
	ids := g.TurnIDs
	if ids == nil {
		ids = []string{}
	}
	turnIDs, err := json.Marshal(ids)
	if err != nil {
		return gameRow{}, fmt.Errorf("failed to marshal turn ids: %w", err)
	}
	return gameRow{
		ID:        g.ID,
		UserID:    g.UserID,
		Status:    string(g.Status),
		TurnIDs:   datatypes.JSON(turnIDs),
		Version:   g.Version,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}, nil
}

func (r *gameRow) model() (*models.Game, error) {
	g := &models.Game{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    models.GameStatus(r.Status),
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.TurnIDs, &g.TurnIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turn ids: %w", err)
	}
	return g, nil
}

func newTurnRow(t *models.Turn) (turnRow, error) {
	deck, err := json.Marshal(t.Deck)
	if err != nil {
		return turnRow{}, fmt.Errorf("failed to marshal deck: %w", err)
	}
	player, err := json.Marshal(t.PlayerHand)
	if err != nil {
		return turnRow{}, fmt.Errorf("failed to marshal player hand: %w", err)
	}
	dealer, err := json.Marshal(t.DealerHand)
	if err != nil {
		return turnRow{}, fmt.Errorf("failed to marshal dealer hand: %w", err)
	}
	return turnRow{
		ID:         t.ID,
		GameID:     t.GameID,
		UserID:     t.UserID,
		Status:     string(t.Status),
		Wager:      t.Wager,
		Payout:     t.Payout,
		Deck:       datatypes.JSON(deck),
		PlayerHand: datatypes.JSON(player),
		DealerHand: datatypes.JSON(dealer),
		Version:    t.Version,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}, nil
}

func (r *turnRow) model() (*models.Turn, error) {
	t := &models.Turn{
		ID:        r.ID,
		GameID:    r.GameID,
		UserID:    r.UserID,
		Status:    models.TurnStatus(r.Status),
		Wager:     r.Wager,
		Payout:    r.Payout,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Deck, &t.Deck); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deck: %w", err)
	}
	if err := json.Unmarshal(r.PlayerHand, &t.PlayerHand); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player hand: %w", err)
	}
	if err := json.Unmarshal(r.DealerHand, &t.DealerHand); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dealer hand: %w", err)
	}
	return t, nil
}

func newTransactionRow(rec *models.Transaction) transactionRow {
	return transactionRow{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Type:          string(rec.Type),
		Amount:        rec.Amount,
		BalanceBefore: rec.BalanceBefore,
		BalanceAfter:  rec.BalanceAfter,
		GameID:        rec.GameID,
		TurnID:        rec.TurnID,
		Description:   rec.Description,
		CreatedAt:     rec.CreatedAt,
	}
}

func (r *transactionRow) model() *models.Transaction {
	return &models.Transaction{
		ID:            r.ID,
		UserID:        r.UserID,
		Type:          models.TransactionType(r.Type),
		Amount:        r.Amount,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		GameID:        r.GameID,
		TurnID:        r.TurnID,
		Description:   r.Description,
		CreatedAt:     r.CreatedAt,
	}
}
