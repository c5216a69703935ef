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

type RedisMessageRepository struct {
	client *redis.Client
}

func NewRedisMessageRepository(client *redis.Client) ports.MessageRepository {
	return &RedisMessageRepository{client: client}
}

func (r *RedisMessageRepository) convoKey(a, b domain.UserID) string {
	return fmt.Sprintf("chatnet:convo:%s:messages", domain.ConversationKey(a, b))
}

func (r *RedisMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := r.convoKey(msg.From, msg.To)
	if err := r.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Ts),
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to append message in Redis: %w", err)
	}
	return nil
}

func (r *RedisMessageRepository) History(ctx context.Context, a, b domain.UserID) ([]*domain.Message, error) {
	key := r.convoKey(a, b)
	members, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation from Redis: %w", err)
	}

	msgs := make([]*domain.Message, 0, len(members))
	for _, member := range members {
		var msg domain.Message
		if err := json.Unmarshal([]byte(member), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, &msg)
	}

	// ZRANGE orders by score; equal-score ties are lexical on the raw
	// member, so re-sort ties on message id for a total order.
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Ts != msgs[j].Ts {
			return msgs[i].Ts < msgs[j].Ts
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}
