package ports

import (
	"context"

	"chatnet/internal/core/domain"
)

type UserRepository interface {
	// Create atomically checks username uniqueness and inserts.
	// Returns domain.ErrUsernameTaken on conflict.
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// List returns all users ordered by username.
	List(ctx context.Context) ([]*domain.User, error)
}

type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) error
	// History returns every message whose participant set equals {a, b},
	// ascending by Ts with ties broken by message ID.
	History(ctx context.Context, a, b domain.UserID) ([]*domain.Message, error)
}
