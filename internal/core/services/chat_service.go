package services

import (
	"context"
	"errors"
	"time"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/ports"
	"chatnet/pkg/validation"

	"github.com/google/uuid"
)

var (
	ErrSelfMessage      = errors.New("recipient must differ from sender")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrInvalidText      = errors.New("invalid message text")
)

type ChatService interface {
	// SaveDM validates and persists a direct message, assigning the
	// message id and timestamp. The returned record is the canonical,
	// delivered copy.
	SaveDM(ctx context.Context, from, to domain.UserID, text string) (*domain.Message, error)
	// History returns the conversation between a and b, ascending by
	// timestamp with ties broken by message id.
	History(ctx context.Context, a, b domain.UserID) ([]*domain.Message, error)
	// Presence composes a snapshot of all known users joined with the
	// given set of online ids.
	Presence(ctx context.Context, online map[domain.UserID]bool) ([]domain.PresenceEntry, error)
}

type chatService struct {
	users    ports.UserRepository
	messages ports.MessageRepository
}

func NewChatService(users ports.UserRepository, messages ports.MessageRepository) ChatService {
	return &chatService{users: users, messages: messages}
}

func (s *chatService) SaveDM(ctx context.Context, from, to domain.UserID, text string) (*domain.Message, error) {
	if err := validation.ValidateUserID(string(to)); err != nil {
		return nil, ErrInvalidRecipient
	}
	if to == from {
		return nil, ErrSelfMessage
	}
	if err := validation.ValidateMessageText(text); err != nil {
		return nil, ErrInvalidText
	}

	msg := &domain.Message{
		ID:   domain.MessageID(uuid.New().String()),
		From: from,
		To:   to,
		Text: text,
		Ts:   time.Now().UnixMilli(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *chatService) History(ctx context.Context, a, b domain.UserID) ([]*domain.Message, error) {
	return s.messages.History(ctx, a, b)
}

func (s *chatService) Presence(ctx context.Context, online map[domain.UserID]bool) ([]domain.PresenceEntry, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.PresenceEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, domain.PresenceEntry{
			ID:       u.ID,
			Username: u.Username,
			Online:   online[u.ID],
		})
	}
	return entries, nil
}
