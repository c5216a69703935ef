package memory

import (
	"context"
	"sort"
	"sync"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/ports"
)

type MemoryMessageRepository struct {
	convos map[string][]*domain.Message
	mu     sync.RWMutex
}

func NewMemoryMessageRepository() ports.MessageRepository {
	return &MemoryMessageRepository{
		convos: make(map[string][]*domain.Message),
	}
}

func (r *MemoryMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.ConversationKey(msg.From, msg.To)
	m := *msg
	r.convos[key] = append(r.convos[key], &m)
	return nil
}

func (r *MemoryMessageRepository) History(ctx context.Context, a, b domain.UserID) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := domain.ConversationKey(a, b)
	stored := r.convos[key]

	msgs := make([]*domain.Message, 0, len(stored))
	for _, msg := range stored {
		m := *msg
		msgs = append(msgs, &m)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Ts != msgs[j].Ts {
			return msgs[i].Ts < msgs[j].Ts
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}
