package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ domain.MessageStore = (*MemoryStore)(nil)
var _ domain.MessageStore = (*PostgresStore)(nil)

func TestMemoryStore_IncreasingIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var last int64
	for _, text := range []string{"a", "b", "c"} {
		msg, err := s.Append(ctx, 7, "alice", text)
		require.NoError(t, err)
		assert.Greater(t, msg.ID, last)
		assert.Equal(t, text, msg.Content)
		assert.False(t, msg.CreatedAt.IsZero())
		last = msg.ID
	}

	_, err := s.Append(ctx, 8, "bob", "elsewhere")
	require.NoError(t, err)

	msgs := s.Messages(7)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[2].Content)
}

func TestMemoryStore_ConcurrentAppendsUnique(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(context.Background(), 1, "alice", "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, m := range s.Messages(1) {
		assert.False(t, seen[m.ID])
		seen[m.ID] = true
	}
	assert.Len(t, seen, 50)
}

func TestMemoryStore_UnknownUser(t *testing.T) {
	s := NewMemoryStore("alice")

	_, err := s.Append(context.Background(), 7, "mallory", "hi")
	assert.ErrorIs(t, err, domain.ErrUnknownUser)

	_, err = s.Append(context.Background(), 7, "alice", "hi")
	assert.NoError(t, err)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Append(ctx, 7, "alice", "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schemaDDL)
	require.Len(t, stmts, 5)
	assert.Contains(t, stmts[3], "CREATE TABLE IF NOT EXISTS messages")
}

func TestPostgresStore_NotConnected(t *testing.T) {
	s := NewPostgresStore(&DB{})
	_, err := s.Append(context.Background(), 7, "alice", "hi")
	assert.ErrorIs(t, err, errNotConnected)
	assert.ErrorIs(t, s.Ping(context.Background()), errNotConnected)
}
