package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "blackjack-backend/internal/errors"
	"blackjack-backend/internal/models"
)

const DefaultStartingWallet = 1000

type UserService struct {
	store          Store
	jwt            *JWTService
	log            *zap.SugaredLogger
	startingWallet int64
	now            func() time.Time
}

func NewUserService(store Store, jwt *JWTService, startingWallet int64, log *zap.SugaredLogger) *UserService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &UserService{
		store:          store,
		jwt:            jwt,
		log:            log,
		startingWallet: startingWallet,
		now:            time.Now,
	}
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	req.Normalize()

	if err := s.checkAvailable(ctx, "", req.Email, req.Username); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           models.GenerateID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Wallet:       s.startingWallet,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Commit(ctx, (&Changeset{}).SaveUser(user)); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, apperrors.New(apperrors.CodeUserExists, "User already exists")
		}
		return nil, apperrors.Internal("failed to create user", err)
	}

	s.log.Infow("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	badCredentials := apperrors.New(apperrors.CodeBadCredentials, "Invalid email or password")

	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, badCredentials
	}
	if err != nil {
		return nil, apperrors.Internal("failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Debugw("login rejected", "user_id", user.ID)
		return nil, badCredentials
	}

	token, expiresAt, err := s.jwt.GenerateToken(user.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to issue token", err)
	}

	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, apperrors.CodeUserNotFound, "User not found")
	}
	return user, nil
}

// UpdateUser changes the username, email or password of a user. Fields left
// nil in req keep their value.
func (s *UserService) UpdateUser(ctx context.Context, userID string, req models.UpdateUserRequest) (*models.User, error) {
	req.Normalize()

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Empty() {
		return user, nil
	}

	next := *user
	if req.Username != nil {
		next.Username = *req.Username
	}
	if req.Email != nil {
		next.Email = *req.Email
	}
	if err := s.checkAvailable(ctx, user.ID, next.Email, next.Username); err != nil {
		return nil, err
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperrors.Internal("failed to hash password", err)
		}
		next.PasswordHash = string(hash)
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.store.Commit(ctx, (&Changeset{}).SaveUser(&next)); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, apperrors.New(apperrors.CodeUserExists, "Email or username is already taken")
		}
		return nil, storeError(err, apperrors.CodeUserNotFound, "User not found")
	}

	s.log.Infow("user updated", "user_id", next.ID)
	return &next, nil
}

// ListUsers pages through users in registration order. Pages start at 1.
func (s *UserService) ListUsers(ctx context.Context, limit, page int) ([]*models.User, error) {
	limit, offset, ok := pageWindow(limit, page)
	if !ok {
		return []*models.User{}, nil
	}

	users, err := s.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Internal("failed to list users", err)
	}
	return users, nil
}

// checkAvailable fails when email or username belongs to a user other than
// userID.
func (s *UserService) checkAvailable(ctx context.Context, userID, email, username string) error {
	if other, err := s.store.GetUserByEmail(ctx, email); err == nil && other.ID != userID {
		return apperrors.New(apperrors.CodeUserExists, "Email is already registered")
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return apperrors.Internal("failed to look up user", err)
	}
	if other, err := s.store.GetUserByUsername(ctx, username); err == nil && other.ID != userID {
		return apperrors.New(apperrors.CodeUserExists, "Username is already taken")
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return apperrors.Internal("failed to look up user", err)
	}
	return nil
}

// DeleteUser removes the account with its games, turns and ledger.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	gameIDs, err := s.store.ListGameIDs(ctx, user.ID)
	if err != nil {
		return apperrors.Internal("failed to list games", err)
	}

	cs := &Changeset{DeleteUsers: []string{user.ID}}
	for _, id := range gameIDs {
		game, err := s.store.GetGame(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return apperrors.Internal("failed to load game", err)
		}
		cs.DeleteGames = append(cs.DeleteGames, game.ID)
		cs.DeleteTurns = append(cs.DeleteTurns, game.TurnIDs...)
	}

	if err := s.store.Commit(ctx, cs); err != nil {
		return storeError(err, apperrors.CodeInternal, "")
	}

	s.log.Infow("user deleted", "user_id", user.ID, "games", len(cs.DeleteGames))
	return nil
}

func (s *UserService) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list transactions", err)
	}
	return txs, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
