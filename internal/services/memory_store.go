package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"blackjack-backend/internal/models"
)

// MemoryStore keeps everything in process. It serialises all access behind
// one mutex and hands out copies, so callers never alias stored state.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[string]models.User
	games        map[string]models.Game
	turns        map[string]models.Turn
	transactions map[string][]models.Transaction
	rates        map[string]rateWindow
	now          func() time.Time
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]models.User),
		games:        make(map[string]models.Game),
		turns:        make(map[string]models.Turn),
		transactions: make(map[string][]models.Transaction),
		rates:        make(map[string]rateWindow),
		now:          time.Now,
	}
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Email == email })
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(func(u models.User) bool { return u.Username == username })
}

func (s *MemoryStore) findUser(match func(models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := g.Clone()
	return &cp, nil
}

// ListGames returns the user's games, newest first.
func (s *MemoryStore) ListGames(ctx context.Context, userID string, limit, offset int) ([]*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var games []*models.Game
	for _, g := range s.games {
		if g.UserID == userID {
			cp := g.Clone()
			games = append(games, &cp)
		}
	}
	sort.Slice(games, func(i, j int) bool {
		if games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].ID > games[j].ID
		}
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})

	return paginate(games, limit, offset), nil
}

// ListUsers returns users in registration order.
func (s *MemoryStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		cp := u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	return paginate(users, limit, offset), nil
}

// paginate slices items to one page. A non-positive limit means no limit.
func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	rest := items[offset:]
	if limit > 0 && limit < len(rest) {
		rest = rest[:limit]
	}
	return rest
}

func (s *MemoryStore) ListGameIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, g := range s.games {
		if g.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) GetTurn(ctx context.Context, id string) (*models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := t.Clone()
	return &cp, nil
}

func (s *MemoryStore) GetTurns(ctx context.Context, ids []string) ([]*models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]*models.Turn, 0, len(ids))
	for _, id := range ids {
		t, ok := s.turns[id]
		if !ok {
			continue
		}
		cp := t.Clone()
		turns = append(turns, &cp)
	}
	return turns, nil
}

// ListTransactions returns the user's ledger, newest first.
func (s *MemoryStore) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.transactions[userID]
	out := make([]*models.Transaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		tx := all[i]
		out = append(out, &tx)
	}
	return out, nil
}

func (s *MemoryStore) Commit(ctx context.Context, cs *Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range cs.Users {
		if cur, ok := s.users[u.ID]; ok != (u.Version > 0) || (ok && cur.Version != u.Version) {
			return fmt.Errorf("user %s: %w", u.ID, ErrVersionConflict)
		}
	}
	for _, u := range cs.Users {
		for id, other := range s.users {
			if id != u.ID && (other.Email == u.Email || other.Username == u.Username) {
				return fmt.Errorf("user %s: %w", u.ID, ErrDuplicate)
			}
		}
	}
	for _, g := range cs.Games {
		if cur, ok := s.games[g.ID]; ok != (g.Version > 0) || (ok && cur.Version != g.Version) {
			return fmt.Errorf("game %s: %w", g.ID, ErrVersionConflict)
		}
	}
	for _, t := range cs.Turns {
		if cur, ok := s.turns[t.ID]; ok != (t.Version > 0) || (ok && cur.Version != t.Version) {
			return fmt.Errorf("turn %s: %w", t.ID, ErrVersionConflict)
		}
	}

	cs.bumpVersions()
	for _, u := range cs.Users {
		s.users[u.ID] = *u
	}
	for _, g := range cs.Games {
		s.games[g.ID] = g.Clone()
	}
	for _, t := range cs.Turns {
		s.turns[t.ID] = t.Clone()
	}
	for _, tx := range cs.Transactions {
		s.transactions[tx.UserID] = append(s.transactions[tx.UserID], *tx)
	}

	for _, id := range cs.DeleteTurns {
		delete(s.turns, id)
	}
	for _, id := range cs.DeleteGames {
		delete(s.games, id)
	}
	for _, id := range cs.DeleteUsers {
		delete(s.users, id)
		delete(s.transactions, id)
	}
	return nil
}

func (s *MemoryStore) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf(KeyRateLimit, userID, action)
	now := s.now()
	w := s.rates[key]
	if now.After(w.resetAt) {
		w = rateWindow{resetAt: now.Add(window)}
	}
	w.count++
	s.rates[key] = w
	return w.count <= limit, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
