package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blackjack-backend/internal/models"
)

var (
	// ErrNotFound is returned by stores when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by Commit when a stored version moved
	// since the caller loaded it.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate is returned by Commit when a user's email or username is
	// already held by another user. It is a kind of ErrVersionConflict.
	ErrDuplicate = fmt.Errorf("duplicate key: %w", ErrVersionConflict)
)

// Changeset is one unit of work. Commit applies all of it or none of it.
// Entities with Version 0 are inserted; others must match the stored version.
// Versions are bumped on the passed pointers after a successful commit.
type Changeset struct {
	Users        []*models.User
	Games        []*models.Game
	Turns        []*models.Turn
	Transactions []*models.Transaction

	DeleteUsers []string
	DeleteGames []string
	DeleteTurns []string
}

func (c *Changeset) SaveUser(u *models.User) *Changeset {
	c.Users = append(c.Users, u)
	return c
}

func (c *Changeset) SaveGame(g *models.Game) *Changeset {
	c.Games = append(c.Games, g)
	return c
}

func (c *Changeset) SaveTurn(t *models.Turn) *Changeset {
	c.Turns = append(c.Turns, t)
	return c
}

func (c *Changeset) Record(tx *models.Transaction) *Changeset {
	c.Transactions = append(c.Transactions, tx)
	return c
}

func (c *Changeset) Empty() bool {
	return len(c.Users)+len(c.Games)+len(c.Turns)+len(c.Transactions)+
		len(c.DeleteUsers)+len(c.DeleteGames)+len(c.DeleteTurns) == 0
}

// bumpVersions is called by stores once a commit has been applied.
func (c *Changeset) bumpVersions() {
	for _, u := range c.Users {
		u.Version++
	}
	for _, g := range c.Games {
		g.Version++
	}
	for _, t := range c.Turns {
		t.Version++
	}
}

// Store is the persistence collaborator of the game engine.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)

	GetGame(ctx context.Context, id string) (*models.Game, error)
	ListGames(ctx context.Context, userID string, limit, offset int) ([]*models.Game, error)
	ListGameIDs(ctx context.Context, userID string) ([]string, error)

	GetTurn(ctx context.Context, id string) (*models.Turn, error)
	GetTurns(ctx context.Context, ids []string) ([]*models.Turn, error)

	ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error)

	Commit(ctx context.Context, cs *Changeset) error
	Close() error
}

// RateLimiter counts actions per user in a fixed window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error)
}
