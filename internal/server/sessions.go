package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/novachat/novachat/internal/domain"
)

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticated
	stateClosed
)

// Session binds one live connection to an authenticated user. It moves
// Unauthenticated -> Authenticated -> Closed and never reopens; a new
// connection must authenticate again.
type Session struct {
	ID string

	mu       sync.Mutex
	state    sessionState
	userID   int64
	username string
}

// Bind transitions the session to Authenticated. It fails on a closed
// session and is a no-op error on one that already carries a user.
func (s *Session) Bind(userID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return domain.ErrSessionClosed
	}
	s.state = stateAuthenticated
	s.userID = userID
	s.username = username
	return nil
}

// Close invalidates the binding. In-flight turns finish on their own; no new
// turns are accepted afterwards. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
}

// User returns the bound identity, or ErrSessionClosed once the session is no
// longer authenticated.
func (s *Session) User() (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateAuthenticated {
		return 0, "", domain.ErrSessionClosed
	}
	return s.userID, s.username, nil
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAuthenticated
}

// Sessions is the server-owned registry of live sessions, safe for concurrent
// connects and disconnects.
type Sessions struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*Session)}
}

func (r *Sessions) Add() *Session {
	s := &Session{ID: uuid.NewString()}
	r.mu.Lock()
	r.byID[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Sessions) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Remove closes the session and drops it from the registry.
func (r *Sessions) Remove(id string) {
	r.mu.Lock()
	s := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
