package cron

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oxiglade/cica/internal/backend"
	"github.com/oxiglade/cica/internal/clock"
	"github.com/oxiglade/cica/internal/logger"
	"github.com/oxiglade/cica/internal/metrics"
	"github.com/oxiglade/cica/internal/schedule"
)

// DefaultTickInterval is how often the scheduler checks for due jobs.
const DefaultTickInterval = 60 * time.Second

// ErrAmbiguousID is returned when a job ID prefix matches more than one of
// the caller's jobs.
var ErrAmbiguousID = errors.New("ambiguous job ID prefix")

// ErrJobNotFound is returned when no job matches an ID or prefix among the
// caller's jobs.
var ErrJobNotFound = errors.New("job not found")

// ResultSender delivers a job result to its owner. Delivery failures are
// logged by the service, never retried, and do not affect job state.
type ResultSender func(ctx context.Context, channel, userID, text string) error

// ContextBuilder builds the system prompt for a job execution from its
// owner context. May be nil, in which case no system prompt is set.
type ContextBuilder func(channel, userID, prompt string) (string, error)

// Config configures the cron service.
type Config struct {
	// TickInterval is how often to check for due jobs (default 60s).
	TickInterval time.Duration
}

// Service ties the clock and the job store together: it runs the tick
// loop, executes due jobs concurrently, and exposes the user-facing job
// operations. One mutex guards the store for both the tick loop and
// externally-triggered operations; it is never held across a backend call.
type Service struct {
	clock   clock.Clock
	cfg     Config
	invoker backend.Invoker
	sender  ResultSender
	builder ContextBuilder
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	store   *Store
	running map[string]struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
}

// NewService creates a cron service around an already-loaded store.
func NewService(clk clock.Clock, store *Store, cfg Config, invoker backend.Invoker, sender ResultSender, builder ContextBuilder, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Service{
		clock:   clk,
		cfg:     cfg,
		invoker: invoker,
		sender:  sender,
		builder: builder,
		logger:  log,
		metrics: m,
		store:   store,
		running: make(map[string]struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs the tick loop in a background goroutine until Stop is called
// or ctx is cancelled. It also starts a watcher on the jobs file so
// external edits are picked up between ticks.
func (s *Service) Start(ctx context.Context) {
	watcher := s.startWatcher(ctx)

	go func() {
		defer close(s.done)
		if watcher != nil {
			defer watcher.Close()
		}

		s.logger.Info("cron scheduler started",
			logger.Field{Key: "tick_interval", Value: s.cfg.TickInterval.String()})

		for {
			if err := s.clock.Sleep(ctx, s.cfg.TickInterval); err != nil {
				s.logger.Info("cron scheduler stopped", logger.Field{Key: "reason", Value: "context cancelled"})
				return
			}

			select {
			case <-s.stop:
				s.logger.Info("cron scheduler stopped", logger.Field{Key: "reason", Value: "stop requested"})
				return
			case <-ctx.Done():
				s.logger.Info("cron scheduler stopped", logger.Field{Key: "reason", Value: "context cancelled"})
				return
			default:
			}

			s.Tick(ctx)
		}
	}()
}

// Stop signals the tick loop to exit after its current iteration and waits
// for it. In-flight job executions are not cancelled; they finish and
// persist their own completion state.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.inflight.Wait()
}

// Tick performs one scheduler pass: reload the store from disk, snapshot
// the due jobs, and spawn an execution per job. Each execution claims its
// job before touching the backend, so a job picked up twice runs once.
// Exposed for tests driving a fake clock.
func (s *Service) Tick(ctx context.Context) {
	s.mu.Lock()
	if err := s.store.Reload(); err != nil {
		s.logger.Warn("failed to reload job store", logger.Field{Key: "error", Value: err.Error()})
	}

	now := s.clock.Now()
	due := s.store.DueJobs(now)
	ids := make([]string, 0, len(due))
	for _, job := range due {
		ids = append(ids, job.ID)
	}
	if s.metrics != nil {
		s.metrics.SetJobCount(s.store.Len())
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	s.logger.Debug("due cron jobs found", logger.Field{Key: "count", Value: len(ids)})
	if s.metrics != nil {
		s.metrics.RecordDueJobs(len(ids))
	}

	for _, id := range ids {
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.executeJob(ctx, id)
		}()
	}
}

// executeJob is the single execution path for a job, used by the tick loop
// and by RunNow. It first claims the job under the lock: marks it running,
// clears NextRunAt, and persists, so the job can neither be selected again
// by the next tick nor run concurrently through the other entry point. The
// backend is invoked without holding the lock. The execution outlives the
// caller's context: shutdown never aborts it mid-run, and it persists its
// own completion state.
func (s *Service) executeJob(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	stored := s.store.get(id)
	if stored == nil {
		s.mu.Unlock()
		return
	}
	if _, active := s.running[id]; active {
		s.mu.Unlock()
		return
	}
	s.running[id] = struct{}{}
	stored.State.LastStatus = StatusRunning
	stored.State.NextRunAt = nil
	if err := s.store.Save(); err != nil {
		s.logger.Error("failed to persist running state", err,
			logger.Field{Key: "job", Value: stored.ShortID()})
	}
	job := *stored
	s.mu.Unlock()

	s.logger.Info("executing cron job",
		logger.Field{Key: "job", Value: job.ShortID()},
		logger.Field{Key: "name", Value: job.Name})

	start := s.clock.Now()

	var systemPrompt string
	var err error
	if s.builder != nil {
		systemPrompt, err = s.builder(job.Channel, job.UserID, job.Prompt)
	}

	var result backend.Result
	if err == nil {
		result, err = s.invoker.Invoke(ctx, job.Prompt, backend.QueryOptions{
			SystemPrompt:    systemPrompt,
			SkipPermissions: true,
		})
	}

	end := s.clock.Now()
	duration := end - start

	s.mu.Lock()
	delete(s.running, id)
	if stored := s.store.get(job.ID); stored != nil {
		stored.State.LastRunAt = &end
		stored.State.LastDurationMS = &duration

		if err == nil {
			stored.State.LastStatus = StatusSuccess
			stored.State.LastError = ""
			stored.State.FailureCount = 0
		} else {
			stored.State.LastStatus = StatusFailed
			stored.State.LastError = err.Error()
			stored.State.FailureCount++
		}

		// Next occurrence is computed from the completion time, so
		// execution latency shifts future runs forward.
		stored.UpdateNextRun(end)

		// A one-shot job never re-fires, even after failure.
		if stored.Schedule.IsOneShot() {
			stored.Enabled = false
			stored.State.NextRunAt = nil
		}

		if saveErr := s.store.Save(); saveErr != nil {
			s.logger.Error("failed to persist job result", saveErr,
				logger.Field{Key: "job", Value: job.ShortID()})
		}
	}
	s.mu.Unlock()

	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	if s.metrics != nil {
		s.metrics.RecordJobExecution(string(status), time.Duration(duration)*time.Millisecond)
	}

	if job.Notify {
		var message string
		if err == nil {
			message = fmt.Sprintf("[Cron: %s]\n\n%s", job.Name, result.Text)
		} else {
			message = fmt.Sprintf("[Cron: %s FAILED]\n\nError: %s", job.Name, err)
		}
		if sendErr := s.sender(ctx, job.Channel, job.UserID, message); sendErr != nil {
			s.logger.Warn("failed to deliver cron result",
				logger.Field{Key: "job", Value: job.ShortID()},
				logger.Field{Key: "error", Value: sendErr.Error()})
		}
	}

	s.logger.Info("cron job completed",
		logger.Field{Key: "job", Value: job.ShortID()},
		logger.Field{Key: "status", Value: string(status)},
		logger.Field{Key: "duration_ms", Value: duration})
}

// Add creates a job for the given owner and persists it.
func (s *Service) Add(name, prompt string, sched schedule.Schedule, channel, userID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := NewJob(name, prompt, sched, channel, userID, s.clock.Now())
	if _, err := s.store.Add(job); err != nil {
		return Job{}, err
	}
	return *job, nil
}

// Remove deletes a job by ID or unique prefix, requiring owner match.
func (s *Service) Remove(idOrPrefix, channel, userID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolveIDLocked(idOrPrefix, channel, userID)
	if err != nil {
		return Job{}, err
	}

	removed, err := s.store.Remove(id, channel, userID)
	if err != nil {
		return Job{}, err
	}
	if removed == nil {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, idOrPrefix)
	}
	return *removed, nil
}

// List returns copies of all jobs owned by the caller.
func (s *Service) List(channel, userID string) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.store.ListForUser(channel, userID)
	jobs := make([]Job, 0, len(owned))
	for _, job := range owned {
		jobs = append(jobs, *job)
	}
	return jobs
}

// Status returns a copy of a job by ID or unique prefix, owner-scoped.
func (s *Service) Status(idOrPrefix, channel, userID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolveIDLocked(idOrPrefix, channel, userID)
	if err != nil {
		return Job{}, err
	}
	return *s.store.Get(id, channel, userID), nil
}

// RunNow executes a job immediately through the same path the tick loop
// uses. It blocks until the execution completes. If the job is already
// executing, RunNow returns without starting a second run.
func (s *Service) RunNow(ctx context.Context, idOrPrefix, channel, userID string) error {
	s.mu.Lock()
	id, err := s.resolveIDLocked(idOrPrefix, channel, userID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.executeJob(ctx, id)
	return nil
}

// Toggle flips a job's enabled state and returns the new state. Resuming
// recomputes NextRunAt from the current time; pausing clears it.
func (s *Service) Toggle(idOrPrefix, channel, userID string) (Job, error) {
	return s.setEnabledLocked(idOrPrefix, channel, userID, nil)
}

// SetEnabled sets a job's enabled state explicitly. Same recompute/clear
// semantics as Toggle.
func (s *Service) SetEnabled(idOrPrefix, channel, userID string, enabled bool) (Job, error) {
	return s.setEnabledLocked(idOrPrefix, channel, userID, &enabled)
}

func (s *Service) setEnabledLocked(idOrPrefix, channel, userID string, enabled *bool) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.resolveIDLocked(idOrPrefix, channel, userID)
	if err != nil {
		return Job{}, err
	}

	job := s.store.Get(id, channel, userID)
	newState := !job.Enabled
	if enabled != nil {
		newState = *enabled
	}

	job.Enabled = newState
	if newState {
		job.UpdateNextRun(s.clock.Now())
	} else {
		job.State.NextRunAt = nil
	}

	if err := s.store.Save(); err != nil {
		return Job{}, err
	}
	return *job, nil
}

// ResolveID resolves a full job ID or unique ID prefix among the caller's
// own jobs. Zero matches or more than one match is an error.
func (s *Service) ResolveID(idOrPrefix, channel, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveIDLocked(idOrPrefix, channel, userID)
}

func (s *Service) resolveIDLocked(idOrPrefix, channel, userID string) (string, error) {
	// Exact match first
	if s.store.Get(idOrPrefix, channel, userID) != nil {
		return idOrPrefix, nil
	}

	var matches []*Job
	for _, job := range s.store.ListForUser(channel, userID) {
		if len(idOrPrefix) > 0 && len(job.ID) >= len(idOrPrefix) && job.ID[:len(idOrPrefix)] == idOrPrefix {
			matches = append(matches, job)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, idOrPrefix)
	case 1:
		return matches[0].ID, nil
	default:
		shorts := make([]string, len(matches))
		for i, job := range matches {
			shorts[i] = job.ShortID()
		}
		return "", fmt.Errorf("%w %q: matches %v", ErrAmbiguousID, idOrPrefix, shorts)
	}
}

// startWatcher watches the jobs file for external writes and reloads the
// store outside the tick cadence. Returns nil if the watcher cannot be
// created; the per-tick reload still covers external edits.
func (s *Service) startWatcher(ctx context.Context) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Warn("failed to create jobs file watcher", logger.Field{Key: "error", Value: err.Error()})
		return nil
	}

	// Watch the directory: the save path replaces the file by rename,
	// which would drop a watch on the file itself.
	dir := filepath.Dir(s.store.FilePath())
	if err := watcher.Add(dir); err != nil {
		s.logger.Warn("failed to watch jobs directory",
			logger.Field{Key: "dir", Value: dir},
			logger.Field{Key: "error", Value: err.Error()})
		watcher.Close()
		return nil
	}

	jobsFile := s.store.FilePath()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != jobsFile {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				// The service's own saves land here too; reloading
				// just-written state under the lock is a no-op.
				s.mu.Lock()
				if err := s.store.Reload(); err != nil {
					s.logger.Warn("failed to reload job store after file change",
						logger.Field{Key: "error", Value: err.Error()})
				}
				s.mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("jobs file watcher error", logger.Field{Key: "error", Value: err.Error()})
			}
		}
	}()

	return watcher
}
