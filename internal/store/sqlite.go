package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/alm/internal/logging"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements KV using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One connection: a single-user store, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma wal: %w", err)
		}
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.Component(logger, "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the kv table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.logger.Debug("sql", "op", "select", "table", "kv", "key", key)

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

const upsertKV = `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	s.logger.Debug("sql", "op", "upsert", "table", "kv", "key", key)

	if _, err := s.db.ExecContext(ctx, upsertKV, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetMulti upserts values in one transaction.
func (s *SQLiteStore) SetMulti(ctx context.Context, values map[string]string) error {
	s.logger.Debug("sql", "op", "upsert", "table", "kv", "keys", len(values))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for k, v := range values {
		if _, err := tx.ExecContext(ctx, upsertKV, k, v, now); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "delete", "table", "kv", "keys", keys)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}
