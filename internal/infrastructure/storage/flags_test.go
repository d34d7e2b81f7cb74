package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFlagStore(path)

	set, err := store.Get("initializedLibsAndPackages")
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, store.Set("initializedLibsAndPackages"))

	reopened := NewFlagStore(path)
	set, err = reopened.Get("initializedLibsAndPackages")
	require.NoError(t, err)
	assert.True(t, set)

	other, err := reopened.Get("other")
	require.NoError(t, err)
	assert.False(t, other)
}

func TestFlagStoreSetIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFlagStore(path)

	require.NoError(t, store.Set("a"))
	info, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, store.Set("a"))
	again, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
}

func TestFlagStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFlagStore(path).Get("a")
	assert.Error(t, err)
}
