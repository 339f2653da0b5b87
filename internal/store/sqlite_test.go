package store

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:", testLogger())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

// exerciseKV runs the KV contract against any implementation.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "a", "1"))
	require.NoError(t, kv.Set(ctx, "b", "2"))
	require.NoError(t, kv.Set(ctx, "a", "3"))

	v, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", v, "last writer wins")

	require.NoError(t, kv.Delete(ctx, "a", "b", "never-set"))
	_, ok, _ = kv.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = kv.Get(ctx, "b")
	assert.False(t, ok)

	require.NoError(t, kv.Delete(ctx))

	require.NoError(t, kv.Set(ctx, "a", "old"))
	require.NoError(t, kv.SetMulti(ctx, map[string]string{"a": "4", "b": "5"}))
	v, _, _ = kv.Get(ctx, "a")
	assert.Equal(t, "4", v)
	v, _, _ = kv.Get(ctx, "b")
	assert.Equal(t, "5", v)
	require.NoError(t, kv.SetMulti(ctx, nil))
	require.NoError(t, kv.Delete(ctx, "a", "b"))
}

func TestSQLiteStore_KV(t *testing.T) {
	exerciseKV(t, testStore(t))
}

func TestMemoryStore_KV(t *testing.T) {
	exerciseKV(t, NewMemoryStore())
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.db")

	kv, err := Open(ctx, path, testLogger())
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, TokenKey, "tok-1"))
	require.NoError(t, kv.Close())

	kv, err = Open(ctx, path, testLogger())
	require.NoError(t, err)
	defer kv.Close()

	v, ok, err := kv.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)
}

func TestOpen_SelectsImplementation(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, "memory", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, kv)

	kv, err = Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, kv)
	kv.Close()

	_, err = Open(ctx, "redis://%zz", nil)
	assert.ErrorContains(t, err, "parse redis url")
}
