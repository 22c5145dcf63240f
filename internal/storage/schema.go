package storage

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/Shugur-Network/roomchat/internal/logger"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaDDL string

// InitializeSchema creates the chat tables when they are missing. Every
// statement is idempotent.
func (db *DB) InitializeSchema(ctx context.Context) error {
	if !db.isConnected() {
		return errNotConnected
	}

	statements := splitStatements(schemaDDL)
	logger.Info("Initializing database schema...", zap.Int("statements", len(statements)))

	for i, stmt := range statements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	logger.Info("Database schema ready")
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, part := range strings.Split(ddl, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
