package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the state table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS formscribe_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL key/value table.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on the given connection or pool. The
// caller is responsible for calling [PostgresStore.Migrate].
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the state table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Save upserts all three keys in one statement.
func (s *PostgresStore) Save(ctx context.Context, c Confirmation) error {
	const query = `
		INSERT INTO formscribe_state (key, value)
		VALUES ($1, $2), ($3, $4), ($5, $6)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	kv := encode(c)
	args := make([]any, 0, 2*len(Keys))
	for _, k := range Keys {
		args = append(args, k, kv[k])
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// Load implements [Store].
func (s *PostgresStore) Load(ctx context.Context) (Confirmation, bool, error) {
	const query = `SELECT key, value FROM formscribe_state WHERE key = ANY($1)`

	rows, err := s.db.Query(ctx, query, Keys)
	if err != nil {
		return Confirmation{}, false, fmt.Errorf("store: load: %w", err)
	}
	defer rows.Close()

	kv := make(map[string]string, len(Keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Confirmation{}, false, fmt.Errorf("store: load: scan: %w", err)
		}
		kv[k] = v
	}
	if err := rows.Err(); err != nil {
		return Confirmation{}, false, fmt.Errorf("store: load: %w", err)
	}
	return decode(kv)
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
