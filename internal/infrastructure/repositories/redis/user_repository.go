package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const usernameIndexKey = "chatnet:users:byname"

type RedisUserRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisUserRepository(client *redis.Client) ports.UserRepository {
	return &RedisUserRepository{
		client: client,
		prefix: "chatnet:user:",
	}
}

func (r *RedisUserRepository) userKey(id domain.UserID) string {
	return r.prefix + string(id)
}

func (r *RedisUserRepository) Create(ctx context.Context, user *domain.User) error {
	// HSETNX on the username index is the atomic uniqueness check.
	ok, err := r.client.HSetNX(ctx, usernameIndexKey, user.Username, string(user.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve username in Redis: %w", err)
	}
	if !ok {
		return domain.ErrUsernameTaken
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := r.client.Set(ctx, r.userKey(user.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set user in Redis: %w", err)
	}
	return nil
}

func (r *RedisUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	data, err := r.client.Get(ctx, r.userKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

func (r *RedisUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	id, err := r.client.HGet(ctx, usernameIndexKey, username).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up username in Redis: %w", err)
	}
	return r.GetByID(ctx, domain.UserID(id))
}

func (r *RedisUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	index, err := r.client.HGetAll(ctx, usernameIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users from Redis: %w", err)
	}

	usernames := make([]string, 0, len(index))
	for username := range index {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	users := make([]*domain.User, 0, len(usernames))
	for _, username := range usernames {
		user, err := r.GetByID(ctx, domain.UserID(index[username]))
		if err != nil {
			// Skip index entries whose user record is gone
			continue
		}
		users = append(users, user)
	}
	return users, nil
}
