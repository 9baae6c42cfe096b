package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novachat/novachat/internal/domain"
)

// Conversations persists per-user message history. Append runs in a single
// transaction: the conversation row's seq counter is bumped with a row lock,
// which serializes concurrent appends for one user while leaving other users'
// appends fully parallel. A message is either durable with its assigned seq or
// not written at all.
type Conversations struct {
	db *pgxpool.Pool
}

func NewConversations(db *pgxpool.Pool) *Conversations {
	return &Conversations{db: db}
}

func (r *Conversations) Append(ctx context.Context, userID int64, role, content string) (domain.Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Message{}, fmt.Errorf("begin append: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	// Conversations are created lazily on the first message.
	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return domain.Message{}, fmt.Errorf("ensure conversation: %w: %w", domain.ErrStorageUnavailable, err)
	}

	msg := domain.Message{Role: role, Content: content}
	if err := tx.QueryRow(ctx,
		`UPDATE conversations SET last_seq = last_seq + 1, updated_at = now()
		 WHERE user_id = $1
		 RETURNING id, last_seq`,
		userID,
	).Scan(&msg.ConversationID, &msg.Seq); err != nil {
		return domain.Message{}, fmt.Errorf("assign seq: %w: %w", domain.ErrStorageUnavailable, err)
	}

	if err := tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, seq, role, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		msg.ConversationID, msg.Seq, role, content,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return domain.Message{}, fmt.Errorf("insert message: %w: %w", domain.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Message{}, fmt.Errorf("commit append: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return msg, nil
}

// History returns the user's messages in ascending seq order. A positive limit
// returns only the most recent limit messages, still ascending.
func (r *Conversations) History(ctx context.Context, userID int64, limit int) ([]domain.Message, error) {
	query := `SELECT m.id, m.conversation_id, m.seq, m.role, m.content, m.created_at
		  FROM messages m
		  JOIN conversations c ON c.id = m.conversation_id
		  WHERE c.user_id = $1
		  ORDER BY m.seq`
	args := []any{userID}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT m.id, m.conversation_id, m.seq, m.role, m.content, m.created_at
			FROM messages m
			JOIN conversations c ON c.id = m.conversation_id
			WHERE c.user_id = $1
			ORDER BY m.seq DESC
			LIMIT $2
		) recent ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load history: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	msgs := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w: %w", domain.ErrStorageUnavailable, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return msgs, nil
}

// Clear deletes the user's messages but keeps the conversation row and its
// seq counter, so later appends continue the sequence instead of reusing it.
func (r *Conversations) Clear(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM messages
		 WHERE conversation_id = (SELECT id FROM conversations WHERE user_id = $1)`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("clear conversation: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Conversations) Count(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.user_id = $1`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return n, nil
}
