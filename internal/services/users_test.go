package services_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackjack-backend/internal/config"
	apperrors "blackjack-backend/internal/errors"
	"blackjack-backend/internal/models"
	"blackjack-backend/internal/services"
)

func newUserService(store services.Store) *services.UserService {
	jwt := services.NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour})
	return services.NewUserService(store, jwt, services.DefaultStartingWallet, nil)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()
	users := newUserService(store)

	user, err := users.Register(ctx, models.RegisterRequest{
		Username: " alice ",
		Email:    "Alice@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, int64(1000), user.Wallet)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	_, err = users.Register(ctx, models.RegisterRequest{Username: "alice2", Email: "alice@example.com", Password: "whatever1"})
	assert.Equal(t, apperrors.CodeUserExists, apperrors.CodeOf(err))
	_, err = users.Register(ctx, models.RegisterRequest{Username: "alice", Email: "other@example.com", Password: "whatever1"})
	assert.Equal(t, apperrors.CodeUserExists, apperrors.CodeOf(err))

	session, err := users.Authenticate(ctx, "ALICE@example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.NotEmpty(t, session.Token)

	_, err = users.Authenticate(ctx, "alice@example.com", "wrong password")
	assert.Equal(t, apperrors.CodeBadCredentials, apperrors.CodeOf(err))
	_, err = users.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.Equal(t, apperrors.CodeBadCredentials, apperrors.CodeOf(err))
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()
	users := newUserService(store)

	alice, err := users.Register(ctx, models.RegisterRequest{Username: "alice", Email: "alice@example.com", Password: "correct horse"})
	require.NoError(t, err)
	bob, err := users.Register(ctx, models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "battery staple"})
	require.NoError(t, err)

	name := " Alicia "
	email := "Alicia@Example.com"
	updated, err := users.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Username: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Username)
	assert.Equal(t, "alicia@example.com", updated.Email)
	assert.Equal(t, alice.Wallet, updated.Wallet)
	assert.Equal(t, alice.Version+1, updated.Version)

	_, err = store.GetUserByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, services.ErrNotFound)

	password := "new password"
	_, err = users.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Password: &password})
	require.NoError(t, err)
	_, err = users.Authenticate(ctx, "alicia@example.com", "correct horse")
	assert.Equal(t, apperrors.CodeBadCredentials, apperrors.CodeOf(err))
	_, err = users.Authenticate(ctx, "alicia@example.com", "new password")
	require.NoError(t, err)

	taken := bob.Email
	_, err = users.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Email: &taken})
	assert.Equal(t, apperrors.CodeUserExists, apperrors.CodeOf(err))
	takenName := "bob "
	_, err = users.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Username: &takenName})
	assert.Equal(t, apperrors.CodeUserExists, apperrors.CodeOf(err))

	// keeping one's own email is not a conflict
	own := "alicia@example.com"
	_, err = users.UpdateUser(ctx, alice.ID, models.UpdateUserRequest{Email: &own})
	require.NoError(t, err)

	unchanged, err := users.UpdateUser(ctx, bob.ID, models.UpdateUserRequest{})
	require.NoError(t, err)
	assert.Equal(t, bob.Version, unchanged.Version)

	_, err = users.UpdateUser(ctx, "missing", models.UpdateUserRequest{Username: &name})
	assert.Equal(t, apperrors.CodeUserNotFound, apperrors.CodeOf(err))
}

func TestListUsersPages(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()
	users := newUserService(store)

	for i := 0; i < 3; i++ {
		seedUser(t, store, 1000)
	}

	page, err := users.ListUsers(ctx, 2, 1)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, err = users.ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = users.ListUsers(ctx, 2, math.MaxInt)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryStoreRejectsTakenEmail(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()

	first := seedUser(t, store, 1000)
	second := &models.User{ID: models.GenerateID(), Username: "someone-else", Email: first.Email}
	err := store.Commit(ctx, (&services.Changeset{}).SaveUser(second))
	assert.ErrorIs(t, err, services.ErrDuplicate)
	assert.ErrorIs(t, err, services.ErrVersionConflict)

	owner, err := store.GetUserByEmail(ctx, first.Email)
	require.NoError(t, err)
	assert.Equal(t, first.ID, owner.ID)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()
	users := newUserService(store)
	engine := services.NewGameEngine(store)

	user := seedUser(t, store, 1000)
	state, err := engine.StartGame(ctx, user.ID)
	require.NoError(t, err)
	turn := state.Turns[0]
	_, err = engine.WageTurn(ctx, user.ID, turn.ID, 50)
	require.NoError(t, err)

	txs, err := users.ListTransactions(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	require.NoError(t, users.DeleteUser(ctx, user.ID))

	_, err = users.GetUser(ctx, user.ID)
	assert.Equal(t, apperrors.CodeUserNotFound, apperrors.CodeOf(err))
	_, err = store.GetGame(ctx, state.Game.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = store.GetTurn(ctx, turn.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	txs, err = store.ListTransactions(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestJWTRoundTrip(t *testing.T) {
	jwt := services.NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour})

	token, expiresAt, err := jwt.GenerateToken("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := jwt.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.NotEmpty(t, claims.SessionID)

	other := services.NewJWTService(&config.Config{JWTSecret: "another-secret", JWTTTL: time.Hour})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	_, err = jwt.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestJWTExpired(t *testing.T) {
	jwt := services.NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Nanosecond})

	token, _, err := jwt.GenerateToken("user-1")
	require.NoError(t, err)
	time.Sleep(time.Second)

	_, err = jwt.ValidateToken(token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestMemoryStoreVersioning(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()

	u := seedUser(t, store, 1000)
	stale := *u

	u.Wallet = 10
	require.NoError(t, store.Commit(ctx, (&services.Changeset{}).SaveUser(u)))
	assert.Equal(t, int64(2), u.Version)

	game := &models.Game{ID: "g1", UserID: u.ID, Status: models.GameStatusCreated}
	err := store.Commit(ctx, (&services.Changeset{}).SaveGame(game).SaveUser(&stale))
	assert.ErrorIs(t, err, services.ErrVersionConflict)
	assert.Equal(t, int64(0), game.Version)

	_, err = store.GetGame(ctx, "g1")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestMemoryStoreRateLimit(t *testing.T) {
	ctx := context.Background()
	store := services.NewMemoryStore()

	allowed, err := store.CheckRateLimit(ctx, "u1", "wage", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, _ = store.CheckRateLimit(ctx, "u1", "wage", 2, time.Minute)
	assert.True(t, allowed)
	allowed, _ = store.CheckRateLimit(ctx, "u1", "wage", 2, time.Minute)
	assert.False(t, allowed)

	allowed, _ = store.CheckRateLimit(ctx, "u2", "wage", 2, time.Minute)
	assert.True(t, allowed)
}
