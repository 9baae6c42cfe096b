package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novachat/novachat/internal/domain"
)

func TestSessionLifecycle(t *testing.T) {
	reg := NewSessions()
	s := reg.Add()
	require.NotEmpty(t, s.ID)
	assert.False(t, s.Authenticated())

	_, _, err := s.User()
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	require.NoError(t, s.Bind(42, "alice"))
	assert.True(t, s.Authenticated())

	userID, username, err := s.User()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "alice", username)

	s.Close()
	assert.False(t, s.Authenticated())
	_, _, err = s.User()
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	// Closed sessions never reopen.
	assert.ErrorIs(t, s.Bind(42, "alice"), domain.ErrSessionClosed)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := NewSessions().Add()
	require.NoError(t, s.Bind(1, "a"))
	s.Close()
	s.Close()
	assert.False(t, s.Authenticated())
}

func TestSessionsRemove(t *testing.T) {
	reg := NewSessions()
	s := reg.Add()
	require.NoError(t, s.Bind(1, "a"))

	reg.Remove(s.ID)
	assert.Nil(t, reg.Get(s.ID))
	assert.False(t, s.Authenticated(), "removal must close the session")
	assert.Zero(t, reg.Len())

	// Removing twice is harmless.
	reg.Remove(s.ID)
}

func TestSessionsConcurrentAddRemove(t *testing.T) {
	reg := NewSessions()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := reg.Add()
			if err := s.Bind(1, "user"); err != nil {
				t.Error(err)
			}
			reg.Remove(s.ID)
		}()
	}
	wg.Wait()
	assert.Zero(t, reg.Len())
}
