package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// KV is the persistent key-value mechanism behind the session.
// Implementations must be safe for concurrent use; the last writer wins.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set creates or replaces key.
	Set(ctx context.Context, key, value string) error
	// SetMulti writes all values or none of them.
	SetMulti(ctx context.Context, values map[string]string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	Close() error
}

// Open returns the KV named by location:
//   - "redis://..." or "rediss://...": RedisStore
//   - "memory": MemoryStore (nothing survives the process)
//   - anything else: SQLiteStore at that path (":memory:" for an in-memory database)
func Open(ctx context.Context, location string, logger *slog.Logger) (KV, error) {
	switch {
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		return NewRedisStore(ctx, location, logger)
	case location == "memory":
		return NewMemoryStore(), nil
	}

	if location != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(location), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	st, err := NewSQLiteStore(location, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}
