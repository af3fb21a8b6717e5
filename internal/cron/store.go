package cron

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotOwner is returned when an operation targets a job that exists but
// belongs to a different (channel, user) pair.
var ErrNotOwner = errors.New("job belongs to another user")

// storeSnapshot is the on-disk shape of the job table.
type storeSnapshot struct {
	Jobs map[string]*Job `json:"jobs"`
}

// Store is the persistent job table: a map of ID to Job, saved as a single
// JSON snapshot replaced atomically on every mutation.
//
// Store is not internally synchronized; the Service owns the single mutex
// guarding it.
type Store struct {
	filePath string
	jobs     map[string]*Job
}

// LoadStore reads the job table from filePath. A missing file yields an
// empty store, not an error.
func LoadStore(filePath string) (*Store, error) {
	s := &Store{
		filePath: filePath,
		jobs:     make(map[string]*Job),
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read jobs file %s: %w", filePath, err)
	}

	var snap storeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file %s: %w", filePath, err)
	}
	if snap.Jobs != nil {
		s.jobs = snap.Jobs
	}

	return s, nil
}

// Reload replaces the in-memory table with a fresh read from disk, picking
// up edits made by other writers between ticks.
func (s *Store) Reload() error {
	fresh, err := LoadStore(s.filePath)
	if err != nil {
		return err
	}
	s.jobs = fresh.jobs
	return nil
}

// Save serializes the whole table and atomically replaces the jobs file.
// A temporary file is written and fsynced first, then renamed over the
// target, so readers never observe a partial snapshot.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	data, err := json.MarshalIndent(storeSnapshot{Jobs: s.jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary jobs file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to write temporary jobs file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temporary jobs file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temporary jobs file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to replace jobs file: %w", err)
	}

	return nil
}

// Add inserts the job and persists. On a persistence error the job is
// rolled back so the in-memory table matches disk.
func (s *Store) Add(job *Job) (string, error) {
	s.jobs[job.ID] = job
	if err := s.Save(); err != nil {
		delete(s.jobs, job.ID)
		return "", err
	}
	return job.ID, nil
}

// Remove deletes a job by ID if the (channel, userID) pair owns it.
// Returns ErrNotOwner if the job exists under a different owner, and
// (nil, nil) if the ID does not exist at all.
func (s *Store) Remove(id, channel, userID string) (*Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	if !job.IsOwnedBy(channel, userID) {
		return nil, ErrNotOwner
	}

	delete(s.jobs, id)
	if err := s.Save(); err != nil {
		s.jobs[id] = job
		return nil, err
	}
	return job, nil
}

// Get returns the job with the given ID if the (channel, userID) pair owns
// it. Not-found and wrong-owner both return nil, so callers cannot probe
// for other users' jobs.
func (s *Store) Get(id, channel, userID string) *Job {
	job, ok := s.jobs[id]
	if !ok || !job.IsOwnedBy(channel, userID) {
		return nil
	}
	return job
}

// get returns a job without an ownership check. Scheduler-internal only;
// never reachable from user-facing code paths.
func (s *Store) get(id string) *Job {
	return s.jobs[id]
}

// ListForUser returns all jobs owned by the (channel, userID) pair in
// unspecified order.
func (s *Store) ListForUser(channel, userID string) []*Job {
	var jobs []*Job
	for _, job := range s.jobs {
		if job.IsOwnedBy(channel, userID) {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// DueJobs returns all enabled jobs whose NextRunAt is at or before nowMS.
func (s *Store) DueJobs(nowMS int64) []*Job {
	var due []*Job
	for _, job := range s.jobs {
		if job.IsDue(nowMS) {
			due = append(due, job)
		}
	}
	return due
}

// Len returns the number of jobs in the table.
func (s *Store) Len() int {
	return len(s.jobs)
}

// FilePath returns the path of the persisted snapshot.
func (s *Store) FilePath() string {
	return s.filePath
}
