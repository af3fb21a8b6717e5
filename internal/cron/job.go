// Package cron provides persistent, user-owned scheduled jobs. Each job
// pairs a prompt with a schedule and an owner; the Service executes due
// jobs on a tick loop and reports results back to the owner.
package cron

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oxiglade/cica/internal/schedule"
)

// JobStatus is the outcome of the most recent execution.
type JobStatus string

const (
	// StatusPending means the job has never run.
	StatusPending JobStatus = "pending"
	// StatusRunning means an execution is in flight.
	StatusRunning JobStatus = "running"
	// StatusSuccess means the last execution completed without error.
	StatusSuccess JobStatus = "success"
	// StatusFailed means the last execution returned an error (see LastError).
	StatusFailed JobStatus = "failed"
)

// JobState is the runtime state of a job, mutated only by the scheduler.
type JobState struct {
	// NextRunAt is the next scheduled run time in Unix millis.
	// nil means the job will not be selected as due: it is disabled,
	// currently running, or a one-shot whose time has passed.
	NextRunAt *int64 `json:"next_run_at,omitempty"`

	// LastRunAt is when the last execution completed (Unix millis).
	LastRunAt *int64 `json:"last_run_at,omitempty"`

	// LastStatus is the outcome of the last execution.
	LastStatus JobStatus `json:"last_status"`

	// LastError holds the error message when LastStatus is failed.
	LastError string `json:"last_error,omitempty"`

	// LastDurationMS is how long the last execution took.
	LastDurationMS *int64 `json:"last_duration_ms,omitempty"`

	// FailureCount counts consecutive failures; reset to 0 on success.
	FailureCount int `json:"failure_count"`
}

// Job is a scheduled unit of work owned by a (channel, user) pair.
type Job struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Prompt    string            `json:"prompt"`
	Schedule  schedule.Schedule `json:"schedule"`
	Channel   string            `json:"channel"`
	UserID    string            `json:"user_id"`
	Notify    bool              `json:"notify"`
	Enabled   bool              `json:"enabled"`
	CreatedAt int64             `json:"created_at"`
	State     JobState          `json:"state"`
}

// NewJob creates a job with a generated ID and an initial NextRunAt
// computed from nowMS.
func NewJob(name, prompt string, sched schedule.Schedule, channel, userID string, nowMS int64) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		Prompt:    prompt,
		Schedule:  sched,
		Channel:   channel,
		UserID:    userID,
		Notify:    true,
		Enabled:   true,
		CreatedAt: nowMS,
		State:     JobState{LastStatus: StatusPending},
	}
	job.UpdateNextRun(nowMS)
	return job
}

// UpdateNextRun recomputes NextRunAt from nowMS. For an At schedule whose
// timestamp has passed, NextRunAt becomes nil.
func (j *Job) UpdateNextRun(nowMS int64) {
	if next, ok := j.Schedule.NextRunAfter(nowMS); ok {
		j.State.NextRunAt = &next
	} else {
		j.State.NextRunAt = nil
	}
}

// IsDue reports whether the job should run at nowMS. Disabled jobs and
// jobs without a scheduled next run are never due.
func (j *Job) IsDue(nowMS int64) bool {
	return j.Enabled && j.State.NextRunAt != nil && *j.State.NextRunAt <= nowMS
}

// IsOwnedBy reports whether the (channel, userID) pair owns the job.
func (j *Job) IsOwnedBy(channel, userID string) bool {
	return j.Channel == channel && j.UserID == userID
}

// UserKey returns the "channel:user_id" owner key.
func (j *Job) UserKey() string {
	return j.Channel + ":" + j.UserID
}

// ShortID returns the first 8 characters of the job ID for display.
func (j *Job) ShortID() string {
	if len(j.ID) > 8 {
		return j.ID[:8]
	}
	return j.ID
}

// FormatTimestamp renders a Unix-millis timestamp in local time for display.
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).In(time.Local).Format("2006-01-02 15:04")
}

// TruncateForName shortens s to at most maxLen characters for use as a
// job name, appending an ellipsis when truncated.
func TruncateForName(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
