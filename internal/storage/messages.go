package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shugur-Network/roomchat/internal/domain"
	"github.com/Shugur-Network/roomchat/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

const insertMessage = `
INSERT INTO messages (user_id, chat_id, content)
SELECT id, $2, $3 FROM users WHERE username = $1
RETURNING id, created_at`

// PostgresStore is the pgx-backed MessageStore.
type PostgresStore struct {
	db *DB
}

// NewPostgresStore returns a store over an open DB.
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts the message and returns once the row is committed. It
// fails with domain.ErrUnknownUser when senderID has no users row and with
// domain.ErrUnknownRoom when roomID has no chats row.
func (s *PostgresStore) Append(ctx context.Context, roomID int64, senderID, content string) (domain.StoredMessage, error) {
	start := time.Now()
	msg, err := s.append(ctx, roomID, senderID, content)
	metrics.StoreDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreOperations.WithLabelValues("error").Inc()
		return domain.StoredMessage{}, err
	}
	metrics.StoreOperations.WithLabelValues("ok").Inc()
	return msg, nil
}

func (s *PostgresStore) append(ctx context.Context, roomID int64, senderID, content string) (domain.StoredMessage, error) {
	if !s.db.isConnected() {
		return domain.StoredMessage{}, errNotConnected
	}

	msg := domain.StoredMessage{RoomID: roomID, SenderID: senderID, Content: content}
	err := s.db.Pool.QueryRow(ctx, insertMessage, senderID, roomID, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return domain.StoredMessage{}, classifyAppendError(err)
	}
	return msg, nil
}

// classifyAppendError maps insert failures onto the domain errors. The user
// lookup is a join, so a foreign key failure can only be the chat_id.
func classifyAppendError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUnknownUser
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRoom, pgErr.ConstraintName)
	}
	return err
}

// Ping checks the underlying pool.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

// Close releases the pool.
func (s *PostgresStore) Close() { s.db.Close() }

// DB exposes the pool wrapper for health checks.
func (s *PostgresStore) DB() *DB { return s.db }
