package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, s Store) {
	ctx := context.Background()

	disabled, err := s.Disabled(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, disabled)

	require.NoError(t, s.SetDisabled(ctx, "alice", true))
	disabled, err = s.Disabled(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, disabled)

	// Other entities are unaffected
	disabled, err = s.Disabled(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, disabled)

	require.NoError(t, s.SetDisabled(ctx, "alice", false))
	disabled, err = s.Disabled(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, disabled)

	require.NoError(t, s.SetDisabled(ctx, "alice", true))
	require.NoError(t, s.SetDisabled(ctx, "alice", true))
	disabled, err = s.Disabled(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, disabled)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exercise(t, s)
	require.NoError(t, s.Close())
}

func TestSQLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbsync.db")

	s, err := NewSQLStore(path)
	require.NoError(t, err)
	exercise(t, s)
	require.NoError(t, s.Close())

	// Preferences survive a reopen
	s, err = NewSQLStore(path)
	require.NoError(t, err)
	defer s.Close()

	disabled, err := s.Disabled(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, disabled)
}

func TestOpen(t *testing.T) {
	s, err := Open(Settings{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Settings{Type: TypeRedis, Redis: RedisSettings{Address: "localhost:6379"}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	s.Close()

	_, err = Open(Settings{Type: "etcd"})
	assert.Error(t, err)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "kbsync-disabled-alice", disabledKey("alice"))
}
