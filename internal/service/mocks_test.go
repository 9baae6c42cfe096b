package service

import (
	"context"
	"sync"

	"github.com/novachat/novachat/internal/domain"
	"github.com/novachat/novachat/internal/journal"
)

// memStore is an in-memory MessageStore with the same serialization contract
// as the real one: per-user seqs are assigned under a lock, so concurrent
// appends never collide.
type memStore struct {
	mu       sync.Mutex
	lastSeq  map[int64]int64
	messages map[int64][]domain.Message
	nextID   int64

	failAppend  error // returned by Append when set
	failAfter   int   // fail appends after this many successes (0 = always apply failAppend)
	appendCount int
	failHistory error
}

func newMemStore() *memStore {
	return &memStore{
		lastSeq:  make(map[int64]int64),
		messages: make(map[int64][]domain.Message),
	}
}

func (s *memStore) Append(_ context.Context, userID int64, role, content string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil && s.appendCount >= s.failAfter {
		return domain.Message{}, s.failAppend
	}
	s.appendCount++
	s.nextID++
	s.lastSeq[userID]++
	msg := domain.Message{
		ID:             s.nextID,
		ConversationID: userID,
		Seq:            s.lastSeq[userID],
		Role:           role,
		Content:        content,
	}
	s.messages[userID] = append(s.messages[userID], msg)
	return msg, nil
}

func (s *memStore) History(_ context.Context, userID int64, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failHistory != nil {
		return nil, s.failHistory
	}
	msgs := s.messages[userID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *memStore) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[userID] = nil
	return nil
}

func (s *memStore) Count(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages[userID])), nil
}

// stubCompleter answers with a fixed reply or error and records the context
// it was handed.
type stubCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastSeen []domain.Message
}

func (c *stubCompleter) Complete(_ context.Context, history []domain.Message) (domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastSeen = append([]domain.Message(nil), history...)
	if c.err != nil {
		return domain.Message{}, c.err
	}
	return domain.Message{Role: domain.RoleAssistant, Content: c.reply}, nil
}

func (c *stubCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// memUsers is an in-memory UserStore.
type memUsers struct {
	mu      sync.Mutex
	byName  map[string]domain.User
	nextID  int64
	failErr error
	writes  int
}

func newMemUsers() *memUsers {
	return &memUsers{byName: make(map[string]domain.User)}
}

func (s *memUsers) Create(_ context.Context, username, passwordHash string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return domain.User{}, s.failErr
	}
	if _, ok := s.byName[username]; ok {
		return domain.User{}, domain.ErrDuplicateUser
	}
	s.nextID++
	s.writes++
	u := domain.User{ID: s.nextID, Username: username, PasswordHash: passwordHash}
	s.byName[username] = u
	return u, nil
}

func (s *memUsers) GetByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byName[username]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

// memJournal collects journal records in memory.
type memJournal struct {
	mu      sync.Mutex
	records []journal.Record
	err     error
}

func (j *memJournal) Append(rec journal.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, rec)
	return nil
}
