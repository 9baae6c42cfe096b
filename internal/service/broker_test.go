package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novachat/novachat/internal/domain"
)

func TestBroker_TurnPersistsBothMessagesInOrder(t *testing.T) {
	store := newMemStore()
	backend := &stubCompleter{reply: "hi there"}
	broker := NewBroker(store, backend, nil, 0)

	reply, err := broker.Turn(context.Background(), 1, "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, reply.Role)
	assert.Equal(t, "hi there", reply.Content)

	history, err := store.History(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Greater(t, history[1].Seq, history[0].Seq)
}

func TestBroker_BackendFailureKeepsUserMessage(t *testing.T) {
	store := newMemStore()
	backend := &stubCompleter{err: fmt.Errorf("%w: connection refused", domain.ErrBackendUnreachable)}
	broker := NewBroker(store, backend, nil, 0)

	_, err := broker.Turn(context.Background(), 1, "alice", "hello")
	require.ErrorIs(t, err, domain.ErrBackendUnreachable)

	history, herr := store.History(context.Background(), 1, 0)
	require.NoError(t, herr)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
}

func TestBroker_StorageFailureSkipsBackend(t *testing.T) {
	store := newMemStore()
	store.failAppend = fmt.Errorf("append: %w", domain.ErrStorageUnavailable)
	backend := &stubCompleter{reply: "never"}
	broker := NewBroker(store, backend, nil, 0)

	_, err := broker.Turn(context.Background(), 1, "alice", "hello")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Zero(t, backend.callCount(), "backend must not be contacted when the input append fails")
}

func TestBroker_HistoryFailureAbortsBeforeBackend(t *testing.T) {
	store := newMemStore()
	store.failHistory = fmt.Errorf("load history: %w", domain.ErrStorageUnavailable)
	backend := &stubCompleter{reply: "never"}
	broker := NewBroker(store, backend, nil, 0)

	_, err := broker.Turn(context.Background(), 1, "alice", "hello")
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Zero(t, backend.callCount())
}

func TestBroker_ReplyAppendFailureIsPartial(t *testing.T) {
	store := newMemStore()
	// First append (user input) succeeds, second (reply) fails.
	store.failAppend = fmt.Errorf("append: %w", domain.ErrStorageUnavailable)
	store.failAfter = 1
	backend := &stubCompleter{reply: "hi there"}
	broker := NewBroker(store, backend, nil, 0)

	_, err := broker.Turn(context.Background(), 1, "alice", "hello")
	var partial *domain.PartialTurnError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "hi there", partial.Reply.Content)
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	history, herr := store.History(context.Background(), 1, 0)
	require.NoError(t, herr)
	require.Len(t, history, 1, "user input stays persisted")
}

func TestBroker_WindowBoundsContext(t *testing.T) {
	store := newMemStore()
	backend := &stubCompleter{reply: "ok"}
	broker := NewBroker(store, backend, nil, 4)

	for i := 0; i < 5; i++ {
		_, err := broker.Turn(context.Background(), 1, "alice", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	require.Len(t, backend.lastSeen, 4, "context window must be bounded")
	// Last element of the window is the just-appended user message.
	assert.Equal(t, "msg 4", backend.lastSeen[3].Content)
}

func TestBroker_JournalRecordsCompletedTurn(t *testing.T) {
	store := newMemStore()
	backend := &stubCompleter{reply: "pong"}
	jnl := &memJournal{}
	broker := NewBroker(store, backend, jnl, 0)

	_, err := broker.Turn(context.Background(), 7, "bob", "ping")
	require.NoError(t, err)

	require.Len(t, jnl.records, 1)
	rec := jnl.records[0]
	assert.Equal(t, int64(7), rec.UserID)
	assert.Equal(t, "bob", rec.Username)
	assert.Equal(t, "ping", rec.Input)
	assert.Equal(t, "pong", rec.Reply)
	assert.Greater(t, rec.ReplySeq, rec.InputSeq)
}

func TestBroker_JournalFailureDoesNotFailTurn(t *testing.T) {
	store := newMemStore()
	backend := &stubCompleter{reply: "pong"}
	jnl := &memJournal{err: errors.New("disk full")}
	broker := NewBroker(store, backend, jnl, 0)

	_, err := broker.Turn(context.Background(), 7, "bob", "ping")
	require.NoError(t, err)
}

func TestBroker_ConcurrentUsersDoNotInterleaveSeqs(t *testing.T) {
	store := newMemStore()
	backend := &stubCompleter{reply: "ok"}
	broker := NewBroker(store, backend, nil, 0)

	const turns = 25
	var wg sync.WaitGroup
	for _, userID := range []int64{1, 2} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < turns; i++ {
				_, err := broker.Turn(context.Background(), id, "user", "hello")
				assert.NoError(t, err)
			}
		}(userID)
	}
	wg.Wait()

	for _, userID := range []int64{1, 2} {
		history, err := store.History(context.Background(), userID, 0)
		require.NoError(t, err)
		require.Len(t, history, turns*2)
		for i := 1; i < len(history); i++ {
			assert.Equal(t, history[i-1].Seq+1, history[i].Seq,
				"seqs must be strictly increasing with no gaps or duplicates")
		}
	}
}
