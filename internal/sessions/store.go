// Package sessions persists the mapping from users to their backend
// conversation session IDs, so conversations survive process restarts.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Filename is the sessions file name under the workspace.
const Filename = "sessions.json"

// snapshot is the on-disk shape: "channel:user_id" -> session ID.
type snapshot struct {
	Sessions map[string]string `json:"sessions"`
}

// Store is a thread-safe, file-backed session table.
type Store struct {
	mu       sync.Mutex
	filePath string
	sessions map[string]string
}

// Load reads the session table from filePath. A missing file yields an
// empty store.
func Load(filePath string) (*Store, error) {
	s := &Store{
		filePath: filePath,
		sessions: make(map[string]string),
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read sessions file %s: %w", filePath, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse sessions file %s: %w", filePath, err)
	}
	if snap.Sessions != nil {
		s.sessions = snap.Sessions
	}

	return s, nil
}

func sessionKey(channel, userID string) string {
	return channel + ":" + userID
}

// GetSession returns the stored session ID for the user, or "" if none.
func (s *Store) GetSession(channel, userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionKey(channel, userID)]
}

// SetSession stores the session ID for the user and persists.
func (s *Store) SetSession(channel, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(channel, userID)] = sessionID
	return s.save()
}

// ResetSession forgets the user's session and persists. Resetting an
// absent session is a no-op.
func (s *Store) ResetSession(channel, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(channel, userID)
	if _, ok := s.sessions[key]; !ok {
		return nil
	}
	delete(s.sessions, key)
	return s.save()
}

// save writes the table atomically: tmp file, fsync, rename.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot{Sessions: s.sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary sessions file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write temporary sessions file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temporary sessions file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temporary sessions file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to replace sessions file: %w", err)
	}
	return nil
}
