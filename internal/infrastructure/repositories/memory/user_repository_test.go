package memory

import (
	"context"
	"testing"
	"time"

	"chatnet/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(id, name string) *domain.User {
	return &domain.User{
		ID:        domain.UserID(id),
		Username:  name,
		PassHash:  "$2a$10$fakefakefakefakefakefake",
		CreatedAt: time.Now(),
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("u1", "alice")))

	byID, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), byName.ID)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("u1", "alice")))

	err := repo.Create(ctx, newUser("u2", "alice"))
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	// The losing insert must not shadow the original.
	existing, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), existing.ID)
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepository_ListOrderedByUsername(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("u3", "carol")))
	require.NoError(t, repo.Create(ctx, newUser("u1", "alice")))
	require.NoError(t, repo.Create(ctx, newUser("u2", "bob")))

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
	assert.Equal(t, "carol", users[2].Username)
}

func TestUserRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("u1", "alice")))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	got.Username = "mutated"

	again, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)
}
