package gojob

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlqueue "github.com/goliatone/go-job/queue/adapters/postgres"
)

const DefaultVisibilityTimeout = 5 * time.Minute

// NewSQLQueue stores retention runs in the queue_messages tables of db so every
// replica sharing the database drains one queue. dialect is "postgres" or
// "sqlite"; sqlite has no SKIP LOCKED and uses the compatible dequeue path.
// The tables are created when missing.
func NewSQLQueue(ctx context.Context, db *sql.DB, dialect string) (*sqlqueue.Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("gojob: database handle is required")
	}
	var queueDialect sqlqueue.Dialect
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "pg", "postgresql":
		queueDialect = sqlqueue.DialectPostgres
	case "sqlite", "sqlite3":
		queueDialect = sqlqueue.DialectSQLite
	default:
		return nil, fmt.Errorf("gojob: unsupported queue dialect %q", dialect)
	}
	storage := sqlqueue.NewStorage(db,
		sqlqueue.WithDialect(queueDialect),
		sqlqueue.WithUseSkipLocked(queueDialect == sqlqueue.DialectPostgres),
		sqlqueue.WithVisibilityTimeout(DefaultVisibilityTimeout),
	)
	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("gojob: migrate queue tables: %w", err)
	}
	return sqlqueue.NewAdapter(storage), nil
}
