package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a user's conversation. Messages are immutable once
// written; Seq is strictly increasing within a conversation.
type Message struct {
	ID             int64
	ConversationID int64
	Seq            int64
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Conversation is the append-only history owned by exactly one user. LastSeq
// is the highest sequence number ever assigned; it survives a clear so
// sequence numbers never repeat.
type Conversation struct {
	ID        int64
	UserID    int64
	LastSeq   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
