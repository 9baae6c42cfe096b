package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/novachat/novachat/internal/domain"
	"github.com/novachat/novachat/internal/journal"
)

// Completer produces an assistant reply for an ordered conversation context.
type Completer interface {
	Complete(ctx context.Context, history []domain.Message) (domain.Message, error)
}

// TurnJournal records completed turns; the broker treats it as best-effort.
type TurnJournal interface {
	Append(rec journal.Record) error
}

// Broker executes one conversational turn end-to-end: persist the input,
// gather context, ask the backend, persist the reply. The input append always
// comes first so no user text is ever lost to an unavailable assistant.
type Broker struct {
	store   MessageStore
	backend Completer
	journal TurnJournal // may be nil
	window  int
}

func NewBroker(store MessageStore, backend Completer, jnl TurnJournal, window int) *Broker {
	return &Broker{store: store, backend: backend, journal: jnl, window: window}
}

// Turn runs a single turn for an authenticated user and returns the
// assistant's reply. On *domain.PartialTurnError the reply was produced and
// the input persisted, but the reply append failed.
func (b *Broker) Turn(ctx context.Context, userID int64, username, input string) (domain.Message, error) {
	userMsg, err := b.store.Append(ctx, userID, domain.RoleUser, input)
	if err != nil {
		// The backend is never contacted when the input could not be saved.
		return domain.Message{}, err
	}

	history, err := b.store.History(ctx, userID, b.window)
	if err != nil {
		return domain.Message{}, err
	}

	reply, err := b.backend.Complete(ctx, history)
	if err != nil {
		// The user message stands; it is not rolled back.
		return domain.Message{}, err
	}

	saved, err := b.store.Append(ctx, userID, domain.RoleAssistant, reply.Content)
	if err != nil {
		return domain.Message{}, &domain.PartialTurnError{Reply: reply, Err: err}
	}

	if b.journal != nil {
		rec := journal.Record{
			UserID:   userID,
			Username: username,
			InputSeq: userMsg.Seq,
			ReplySeq: saved.Seq,
			Input:    input,
			Reply:    saved.Content,
			At:       time.Now().UTC(),
		}
		if err := b.journal.Append(rec); err != nil {
			slog.Error("journal append failed", "error", err, "user_id", userID)
		}
	}

	return saved, nil
}
