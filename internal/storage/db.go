package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shugur-Network/roomchat/internal/constants"
	"github.com/Shugur-Network/roomchat/internal/logger"
	"github.com/Shugur-Network/roomchat/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBState represents the current state of the database connection
type DBState int

const (
	DBStateInitial DBState = iota
	DBStateConnecting
	DBStateConnected
	DBStateClosed
)

var errNotConnected = errors.New("database is not connected")

// DB wraps the pgx pool shared by the message store and health checks.
type DB struct {
	Pool *pgxpool.Pool

	stateMu sync.RWMutex
	state   DBState
}

// DatabaseStats is a snapshot of the pool, reported by /health.
type DatabaseStats struct {
	TotalConns    int32
	AcquiredConns int32
	IdleConns     int32
	MaxConns      int32
}

func newPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = min(int32(constants.DBMinConns), maxConns)
	cfg.MaxConnLifetime = constants.DBMaxConnLifetime
	cfg.MaxConnIdleTime = constants.DBMaxConnIdleTime
	cfg.HealthCheckPeriod = constants.DBHealthCheckPeriod
	return pgxpool.NewWithConfig(ctx, cfg)
}

// InitDB connects to PostgreSQL, retrying with exponential backoff until the
// attempt budget or ctx runs out.
func InitDB(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	if maxConns <= 0 {
		maxConns = constants.DBMaxConns
	}
	db := &DB{state: DBStateConnecting}
	backoff := constants.DBConnectBackoff

	var err error
	for attempt := 1; attempt <= constants.DBConnectAttempts; attempt++ {
		var pool *pgxpool.Pool
		pool, err = newPool(ctx, dsn, maxConns)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				db.Pool = pool
				db.setState(DBStateConnected)
				logger.Info("Database connected",
					zap.Int("attempt", attempt),
					zap.Int32("max_conns", maxConns))
				metrics.DBConnections.WithLabelValues("success").Inc()
				return db, nil
			}
			pool.Close()
		}

		metrics.DBConnections.WithLabelValues("failure").Inc()
		if attempt == constants.DBConnectAttempts {
			break
		}
		logger.Warn("Failed to connect to DB, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			db.setState(DBStateClosed)
			return nil, fmt.Errorf("connect to DB: %w", ctx.Err())
		}
		backoff *= 2
	}

	db.setState(DBStateClosed)
	return nil, fmt.Errorf("failed to connect to DB after %d attempts: %w", constants.DBConnectAttempts, err)
}

func (db *DB) setState(s DBState) {
	db.stateMu.Lock()
	db.state = s
	db.stateMu.Unlock()
}

func (db *DB) isConnected() bool {
	db.stateMu.RLock()
	defer db.stateMu.RUnlock()
	return db.state == DBStateConnected && db.Pool != nil
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if !db.isConnected() {
		return errNotConnected
	}
	return db.Pool.Ping(ctx)
}

// Stats reports pool usage.
func (db *DB) Stats() DatabaseStats {
	if !db.isConnected() {
		return DatabaseStats{}
	}
	s := db.Pool.Stat()
	return DatabaseStats{
		TotalConns:    s.TotalConns(),
		AcquiredConns: s.AcquiredConns(),
		IdleConns:     s.IdleConns(),
		MaxConns:      s.MaxConns(),
	}
}

// Close releases the pool. Safe to call more than once.
func (db *DB) Close() {
	db.stateMu.Lock()
	defer db.stateMu.Unlock()
	if db.state == DBStateClosed || db.Pool == nil {
		return
	}
	db.Pool.Close()
	db.state = DBStateClosed
	metrics.DBConnections.WithLabelValues("closed").Inc()
	logger.Debug("Database connection closed")
}
