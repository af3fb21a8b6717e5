package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxiglade/cica/internal/config"
)

func TestWorkspace_Paths(t *testing.T) {
	w := New(config.WorkspaceConfig{Path: "/data/cica"})

	assert.Equal(t, "/data/cica", w.Path())
	assert.Equal(t, "/data/cica", w.BasePath())
	assert.Equal(t, filepath.Join("/data/cica", "cron", "jobs.json"), w.JobsFile())
	assert.Equal(t, filepath.Join("/data/cica", "sessions.json"), w.SessionsFile())
}

func TestWorkspace_HomeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	w := New(config.WorkspaceConfig{Path: "~/.cica"})
	assert.Equal(t, filepath.Join(home, ".cica"), w.Path())
	assert.Equal(t, "~/.cica", w.BasePath())
}

func TestWorkspace_EnsureDirCreatesTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "workspace")
	w := New(config.WorkspaceConfig{Path: root})

	require.NoError(t, w.EnsureDir())

	for _, dir := range []string{root, filepath.Join(root, SubdirCron), filepath.Join(root, SubdirLogs)} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	// Idempotent.
	assert.NoError(t, w.EnsureDir())
}

func TestWorkspace_EnsureDirRejectsEmptyPath(t *testing.T) {
	w := New(config.WorkspaceConfig{})
	assert.Error(t, w.EnsureDir())
}

func TestWorkspace_EnsureDirRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	w := New(config.WorkspaceConfig{Path: path})
	assert.Error(t, w.EnsureDir())
}
