// Package workspace manages the directory where Cica stores its data:
// the cron job table, the session table, and logs.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxiglade/cica/internal/config"
)

const (
	// SubdirCron is the subdirectory for the persisted job table.
	SubdirCron = "cron"
	// SubdirLogs is the subdirectory for log files.
	SubdirLogs = "logs"
)

// Workspace represents the data directory with path helpers.
type Workspace struct {
	path     string // expanded path
	basePath string // original path from config (may contain ~)
}

// New creates a Workspace from the given configuration. The path from
// config is kept as-is in basePath and expanded in path.
func New(cfg config.WorkspaceConfig) *Workspace {
	return &Workspace{
		path:     config.ExpandHome(cfg.Path),
		basePath: cfg.Path,
	}
}

// Path returns the expanded workspace path.
func (w *Workspace) Path() string {
	return w.path
}

// BasePath returns the original path from config (may contain ~).
func (w *Workspace) BasePath() string {
	return w.basePath
}

// EnsureDir creates the workspace directory tree if it doesn't exist.
func (w *Workspace) EnsureDir() error {
	if w.path == "" {
		return fmt.Errorf("workspace path is empty")
	}

	info, err := os.Stat(w.path)
	if err == nil && !info.IsDir() {
		return fmt.Errorf("workspace path exists but is not a directory: %s", w.path)
	}

	for _, dir := range []string{w.path, w.Subpath(SubdirCron), w.Subpath(SubdirLogs)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}
	return nil
}

// Subpath returns a path under the workspace.
func (w *Workspace) Subpath(elem ...string) string {
	return filepath.Join(append([]string{w.path}, elem...)...)
}

// JobsFile returns the path of the persisted cron job table.
func (w *Workspace) JobsFile() string {
	return w.Subpath(SubdirCron, "jobs.json")
}

// SessionsFile returns the path of the persisted session table.
func (w *Workspace) SessionsFile() string {
	return w.Subpath("sessions.json")
}
