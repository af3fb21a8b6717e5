package sessions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsEmptyStore(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	assert.Empty(t, store.GetSession("telegram", "42"))
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSession("telegram", "42", "sess-abc"))
	assert.Equal(t, "sess-abc", store.GetSession("telegram", "42"))

	// Same user ID on a different channel is a separate session.
	assert.Empty(t, store.GetSession("signal", "42"))

	// Survives a reload.
	fresh, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sess-abc", fresh.GetSession("telegram", "42"))
}

func TestStore_SetOverwrites(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)

	require.NoError(t, store.SetSession("telegram", "42", "old"))
	require.NoError(t, store.SetSession("telegram", "42", "new"))
	assert.Equal(t, "new", store.GetSession("telegram", "42"))
}

func TestStore_ResetSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.SetSession("telegram", "42", "sess-abc"))
	require.NoError(t, store.ResetSession("telegram", "42"))
	assert.Empty(t, store.GetSession("telegram", "42"))

	fresh, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, fresh.GetSession("telegram", "42"))
}

func TestStore_ResetAbsentSessionIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, store.ResetSession("telegram", "nobody"))
	// No file is written for a no-op reset.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
