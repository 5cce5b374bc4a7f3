package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runBackendContract exercises the behaviour every backend must share.
func runBackendContract(t *testing.T, b Backend) {
	ctx := context.Background()

	_, err := b.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Set(ctx, "image-generator-settings", []byte(`{"provider":"gemini"}`)))
	got, err := b.Get(ctx, "image-generator-settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"gemini"}`, string(got))

	require.NoError(t, b.Set(ctx, "image-generator-settings", []byte(`{"provider":"pollinations"}`)))
	got, err = b.Get(ctx, "image-generator-settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"pollinations"}`, string(got))

	require.NoError(t, b.Delete(ctx, "image-generator-settings"))
	_, err = b.Get(ctx, "image-generator-settings")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting twice is fine
	require.NoError(t, b.Delete(ctx, "image-generator-settings"))
	assert.NoError(t, b.Ping(ctx))
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	runBackendContract(t, b)

	require.NoError(t, b.Close())
	_, err := b.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Ping(context.Background()), ErrClosed)
}

func TestMemoryBackend_CopiesValues(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, b.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	runBackendContract(t, b)
}

func TestFileBackend_OddKeys(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "session:../../etc/passwd:saved-images"
	require.NoError(t, b.Set(ctx, key, []byte("[]")))
	got, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	b, err := NewRedisBackend(cfg, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	runBackendContract(t, b)

	require.NoError(t, b.Set(context.Background(), "saved-images", []byte("[]")))
	assert.True(t, mr.Exists("imagestudio:saved-images"))
}

func TestRedisBackend_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	_, err = NewRedisBackend(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestSQLBackend(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	b, err := NewSQLBackendFromDB(db, zap.NewNop())
	require.NoError(t, err)
	runBackendContract(t, b)
}

func TestNewSQLBackend_SQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:%s/kv.db", t.TempDir())
	b, err := NewSQLBackend("sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	runBackendContract(t, b)
}

func TestOpenDialector_Unsupported(t *testing.T) {
	_, err := OpenDialector("oracle", "")
	assert.Error(t, err)
}

func TestNamespaced_Isolation(t *testing.T) {
	inner := NewMemoryBackend()
	a := NewNamespaced(inner, "session:a")
	b := NewNamespaced(inner, "session:b")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "saved-images", []byte(`[1]`)))
	_, err := b.Get(ctx, "saved-images")
	assert.ErrorIs(t, err, ErrNotFound)

	raw, err := inner.Get(ctx, "session:a:saved-images")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(raw))

	// closing a view leaves the shared backend usable
	require.NoError(t, a.Close())
	assert.NoError(t, inner.Ping(ctx))
	runBackendContract(t, b)
}

func TestOpen(t *testing.T) {
	logger := zap.NewNop()

	b, err := Open(Config{Driver: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	b, err = Open(Config{Driver: "file", Dir: t.TempDir()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, b)

	_, err = Open(Config{Driver: "cassandra"}, logger)
	assert.Error(t, err)
}
