package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real PostgreSQL when ROOMCHAT_TEST_DATABASE_URL is set.
func TestPostgresStore_Append(t *testing.T) {
	dsn := os.Getenv("ROOMCHAT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ROOMCHAT_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := InitDB(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitializeSchema(ctx))

	var roomID int64
	require.NoError(t, db.Pool.QueryRow(ctx,
		`INSERT INTO chats (name) VALUES ('test') RETURNING id`).Scan(&roomID))
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO users (username) VALUES ('pg-alice') ON CONFLICT (username) DO NOTHING`)
	require.NoError(t, err)

	store := NewPostgresStore(db)

	first, err := store.Append(ctx, roomID, "pg-alice", "hello")
	require.NoError(t, err)
	second, err := store.Append(ctx, roomID, "pg-alice", "again")
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = store.Append(ctx, roomID, "pg-nobody", "hi")
	assert.ErrorIs(t, err, domain.ErrUnknownUser)

	_, err = store.Append(ctx, 2147483000, "pg-alice", "nowhere")
	assert.ErrorIs(t, err, domain.ErrUnknownRoom)

	stats := db.Stats()
	assert.Equal(t, int32(4), stats.MaxConns)
}

func TestClassifyAppendError(t *testing.T) {
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "messages_chat_id_fkey"}
	unique := &pgconn.PgError{Code: "23505"}
	other := errors.New("connection reset")

	assert.ErrorIs(t, classifyAppendError(pgx.ErrNoRows), domain.ErrUnknownUser)
	assert.ErrorIs(t, classifyAppendError(fmt.Errorf("insert: %w", fk)), domain.ErrUnknownRoom)
	assert.Same(t, unique, classifyAppendError(unique))
	assert.NotErrorIs(t, classifyAppendError(unique), domain.ErrUnknownRoom)
	assert.Same(t, other, classifyAppendError(other))
}
