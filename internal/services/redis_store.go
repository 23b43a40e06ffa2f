package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"blackjack-backend/internal/config"
	"blackjack-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps entities as JSON documents and indexes them with sorted
// sets. Commits run under WATCH so a concurrent writer aborts the transaction.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c getter, key string) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return &v, nil
}

func (s *RedisStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getJSON[models.User](ctx, s.client, fmt.Sprintf(KeyUser, id))
}

func (s *RedisStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUserByIndex(ctx, fmt.Sprintf(KeyUserByEmail, email))
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUserByIndex(ctx, fmt.Sprintf(KeyUserByUsername, username))
}

func (s *RedisStore) getUserByIndex(ctx context.Context, key string) (*models.User, error) {
	id, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user index: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *RedisStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	return getJSON[models.Game](ctx, s.client, fmt.Sprintf(KeyGame, id))
}

// ListUsers returns users in registration order.
func (s *RedisStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	start, stop := rangeBounds(limit, offset)
	ids, err := s.client.ZRange(ctx, KeyUsers, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user IDs: %w", err)
	}
	return bulkGet[models.User](ctx, s.client, KeyUser, ids)
}

// ListGames returns the user's games, newest first.
func (s *RedisStore) ListGames(ctx context.Context, userID string, limit, offset int) ([]*models.Game, error) {
	start, stop := rangeBounds(limit, offset)
	ids, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserGames, userID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game IDs: %w", err)
	}
	return bulkGet[models.Game](ctx, s.client, KeyGame, ids)
}

// rangeBounds turns limit and offset into inclusive ZRANGE indexes. Redis
// reads negative indexes from the end of the set, so offset is never negative.
func rangeBounds(limit, offset int) (start, stop int64) {
	start = int64(max(offset, 0))
	if limit <= 0 || start > math.MaxInt64-int64(limit) {
		return start, -1
	}
	return start, start + int64(limit) - 1
}

func (s *RedisStore) ListGameIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.ZRange(ctx, fmt.Sprintf(KeyUserGames, userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game IDs: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) GetTurn(ctx context.Context, id string) (*models.Turn, error) {
	return getJSON[models.Turn](ctx, s.client, fmt.Sprintf(KeyTurn, id))
}

func (s *RedisStore) GetTurns(ctx context.Context, ids []string) ([]*models.Turn, error) {
	return bulkGet[models.Turn](ctx, s.client, KeyTurn, ids)
}

// bulkGet fetches documents in one pipeline, skipping ids that vanished.
func bulkGet[T any](ctx context.Context, client *redis.Client, keyFormat string, ids []string) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}

	pipe := client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(keyFormat, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	out := make([]*T, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}

		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", cmd.Args()[1], err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func (s *RedisStore) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > MaxTransactionsPerUser {
		limit = 50
	}

	ids, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserTransactions, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction IDs: %w", err)
	}
	return bulkGet[models.Transaction](ctx, s.client, KeyTransaction, ids)
}

type versioned struct {
	Version int64 `json:"version"`
}

func checkVersion(ctx context.Context, tx *redis.Tx, key string, want int64) error {
	cur, err := getJSON[versioned](ctx, tx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		if want != 0 {
			return fmt.Errorf("%s: %w", key, ErrVersionConflict)
		}
		return nil
	case err != nil:
		return err
	case cur.Version != want:
		return fmt.Errorf("%s: %w", key, ErrVersionConflict)
	}
	return nil
}

// checkIndexOwner fails when key already points at a different user.
func checkIndexOwner(ctx context.Context, tx *redis.Tx, key, userID string) error {
	owner, err := tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if owner != userID {
		return fmt.Errorf("%s: %w", key, ErrDuplicate)
	}
	return nil
}

// Commit writes the changeset in one MULTI/EXEC guarded by WATCH on every
// touched key. Versions are re-checked after WATCH, so a writer that slipped in
// between load and commit is reported as ErrVersionConflict. The email and
// username index keys are watched too; one held by another user fails the
// commit with ErrDuplicate.
func (s *RedisStore) Commit(ctx context.Context, cs *Changeset) error {
	var keys []string
	for _, u := range cs.Users {
		keys = append(keys,
			fmt.Sprintf(KeyUser, u.ID),
			fmt.Sprintf(KeyUserByEmail, u.Email),
			fmt.Sprintf(KeyUserByUsername, u.Username),
		)
	}
	for _, id := range cs.DeleteUsers {
		keys = append(keys, fmt.Sprintf(KeyUser, id))
	}
	for _, g := range cs.Games {
		keys = append(keys, fmt.Sprintf(KeyGame, g.ID))
	}
	for _, id := range cs.DeleteGames {
		keys = append(keys, fmt.Sprintf(KeyGame, id))
	}
	for _, t := range cs.Turns {
		keys = append(keys, fmt.Sprintf(KeyTurn, t.ID))
	}

	txf := func(tx *redis.Tx) error {
		previous := make(map[string]*models.User, len(cs.Users))
		for _, u := range cs.Users {
			key := fmt.Sprintf(KeyUser, u.ID)
			prev, err := getJSON[models.User](ctx, tx, key)
			switch {
			case errors.Is(err, ErrNotFound):
				if u.Version != 0 {
					return fmt.Errorf("%s: %w", key, ErrVersionConflict)
				}
			case err != nil:
				return err
			case prev.Version != u.Version:
				return fmt.Errorf("%s: %w", key, ErrVersionConflict)
			default:
				previous[u.ID] = prev
			}

			if err := checkIndexOwner(ctx, tx, fmt.Sprintf(KeyUserByEmail, u.Email), u.ID); err != nil {
				return err
			}
			if err := checkIndexOwner(ctx, tx, fmt.Sprintf(KeyUserByUsername, u.Username), u.ID); err != nil {
				return err
			}
		}
		for _, g := range cs.Games {
			if err := checkVersion(ctx, tx, fmt.Sprintf(KeyGame, g.ID), g.Version); err != nil {
				return err
			}
		}
		for _, t := range cs.Turns {
			if err := checkVersion(ctx, tx, fmt.Sprintf(KeyTurn, t.ID), t.Version); err != nil {
				return err
			}
		}

		deletedUsers := make([]*models.User, 0, len(cs.DeleteUsers))
		for _, id := range cs.DeleteUsers {
			u, err := getJSON[models.User](ctx, tx, fmt.Sprintf(KeyUser, id))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			deletedUsers = append(deletedUsers, u)
		}
		deletedGames := make([]*models.Game, 0, len(cs.DeleteGames))
		for _, id := range cs.DeleteGames {
			g, err := getJSON[models.Game](ctx, tx, fmt.Sprintf(KeyGame, id))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			deletedGames = append(deletedGames, g)
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, u := range cs.Users {
				next := *u
				next.Version++
				data, err := json.Marshal(next)
				if err != nil {
					return fmt.Errorf("failed to marshal user: %w", err)
				}
				pipe.Set(ctx, fmt.Sprintf(KeyUser, u.ID), data, 0)
				pipe.Set(ctx, fmt.Sprintf(KeyUserByEmail, u.Email), u.ID, 0)
				pipe.Set(ctx, fmt.Sprintf(KeyUserByUsername, u.Username), u.ID, 0)
				pipe.ZAdd(ctx, KeyUsers, redis.Z{
					Score:  float64(u.CreatedAt.UnixNano()),
					Member: u.ID,
				})

				if prev, ok := previous[u.ID]; ok {
					if prev.Email != u.Email {
						pipe.Del(ctx, fmt.Sprintf(KeyUserByEmail, prev.Email))
					}
					if prev.Username != u.Username {
						pipe.Del(ctx, fmt.Sprintf(KeyUserByUsername, prev.Username))
					}
				}
			}
			for _, g := range cs.Games {
				next := g.Clone()
				next.Version++
				data, err := json.Marshal(next)
				if err != nil {
					return fmt.Errorf("failed to marshal game: %w", err)
				}
				pipe.Set(ctx, fmt.Sprintf(KeyGame, g.ID), data, 0)
				pipe.ZAdd(ctx, fmt.Sprintf(KeyUserGames, g.UserID), redis.Z{
					Score:  float64(g.CreatedAt.UnixNano()),
					Member: g.ID,
				})
			}
			for _, t := range cs.Turns {
				next := t.Clone()
				next.Version++
				data, err := json.Marshal(next)
				if err != nil {
					return fmt.Errorf("failed to marshal turn: %w", err)
				}
				pipe.Set(ctx, fmt.Sprintf(KeyTurn, t.ID), data, 0)
			}
			for _, rec := range cs.Transactions {
				data, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("failed to marshal transaction: %w", err)
				}
				userTxKey := fmt.Sprintf(KeyUserTransactions, rec.UserID)
				pipe.Set(ctx, fmt.Sprintf(KeyTransaction, rec.ID), data, TTLTransaction)
				pipe.ZAdd(ctx, userTxKey, redis.Z{
					Score:  float64(rec.CreatedAt.UnixNano()),
					Member: rec.ID,
				})
				// Keep only the most recent transactions
				pipe.ZRemRangeByRank(ctx, userTxKey, 0, -(MaxTransactionsPerUser + 1))
			}

			for _, id := range cs.DeleteTurns {
				pipe.Del(ctx, fmt.Sprintf(KeyTurn, id))
			}
			for _, g := range deletedGames {
				pipe.Del(ctx, fmt.Sprintf(KeyGame, g.ID))
				pipe.ZRem(ctx, fmt.Sprintf(KeyUserGames, g.UserID), g.ID)
			}
			for _, u := range deletedUsers {
				pipe.Del(ctx,
					fmt.Sprintf(KeyUser, u.ID),
					fmt.Sprintf(KeyUserByEmail, u.Email),
					fmt.Sprintf(KeyUserByUsername, u.Username),
					fmt.Sprintf(KeyUserGames, u.ID),
					fmt.Sprintf(KeyUserTransactions, u.ID),
				)
				pipe.ZRem(ctx, KeyUsers, u.ID)
			}
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("commit aborted: %w", ErrVersionConflict)
	}
	if err != nil {
		return err
	}

	cs.bumpVersions()
	return nil
}

func (s *RedisStore) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (s *RedisStore) ClearRateLimit(ctx context.Context, userID, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, userID, action)).Err()
}
