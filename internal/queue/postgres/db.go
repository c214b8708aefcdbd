// Package postgres implements the queue contract over a PostgreSQL table.
//
// Rows are claimed with FOR UPDATE SKIP LOCKED and hidden for a visibility
// timeout, so concurrent workers never receive the same row at once and a
// row whose worker died becomes visible again.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dos-queue/internal/config"
)

// dbtx is the subset of *pgxpool.Pool used by the queue.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB wraps a PostgreSQL connection pool shared by all queue sessions.
type DB struct {
	pool     dbtx
	table    string
	rawTable string

	mu       sync.Mutex
	migrated bool
}

// NewDB creates a connection pool. Connections are established on first use,
// so a database that is down at startup only fails the sessions that need it.
func NewDB(ctx context.Context, cfg *config.PostgresConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	return newDB(pool, cfg.Table), nil
}

func newDB(pool dbtx, table string) *DB {
	return &DB{
		pool:     pool,
		table:    pgx.Identifier{table}.Sanitize(),
		rawTable: table,
	}
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the queue table once per process. A failed attempt is
// retried by the next caller.
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.migrated {
		return nil
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			body BYTEA NOT NULL,
			receipt TEXT,
			visible_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			delivery_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s(visible_at, id);
		CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s(receipt);
	`, db.table, db.indexName("visible"), db.indexName("receipt"))

	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	db.migrated = true
	return nil
}

func (db *DB) indexName(suffix string) string {
	return pgx.Identifier{"idx_" + db.rawTable + "_" + suffix}.Sanitize()
}
