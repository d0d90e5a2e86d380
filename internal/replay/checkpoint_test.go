package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammcore/internal/model"
)

func TestFileCheckpoints(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "checkpoint.json")
	store := NewFileCheckpoints(path, true)

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cp := model.Checkpoint{LastSeq: 42, Digest: "abcd", UpdatedAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, store.Save(ctx, cp))
	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileCheckpointsDisabled(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewFileCheckpoints(path, false)
	require.NoError(t, store.Save(ctx, model.Checkpoint{LastSeq: 1}))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCheckpointsErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	_, _, err := NewFileCheckpoints(dir, true).Load(ctx)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, _, err = NewFileCheckpoints(bad, true).Load(ctx)
	assert.Error(t, err)
}
