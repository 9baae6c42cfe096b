package service

import (
	"context"

	"github.com/novachat/novachat/internal/domain"
)

// MessageStore is the persistence surface for conversation history.
type MessageStore interface {
	Append(ctx context.Context, userID int64, role, content string) (domain.Message, error)
	History(ctx context.Context, userID int64, limit int) ([]domain.Message, error)
	Clear(ctx context.Context, userID int64) error
	Count(ctx context.Context, userID int64) (int64, error)
}

// ConversationService owns a user's ordered, append-only message history.
// Per-user serialization of appends is provided by the store's transaction.
type ConversationService struct {
	store MessageStore
}

func NewConversationService(store MessageStore) *ConversationService {
	return &ConversationService{store: store}
}

func (s *ConversationService) Append(ctx context.Context, userID int64, role, content string) (domain.Message, error) {
	return s.store.Append(ctx, userID, role, content)
}

// History returns messages in ascending seq order; limit <= 0 means all.
func (s *ConversationService) History(ctx context.Context, userID int64, limit int) ([]domain.Message, error) {
	return s.store.History(ctx, userID, limit)
}

func (s *ConversationService) Clear(ctx context.Context, userID int64) error {
	return s.store.Clear(ctx, userID)
}

func (s *ConversationService) Count(ctx context.Context, userID int64) (int64, error) {
	return s.store.Count(ctx, userID)
}
