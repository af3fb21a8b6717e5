package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxiglade/cica/internal/schedule"
)

func TestNewJob(t *testing.T) {
	job := NewJob("Test Job", "Test prompt", schedule.NewEveryMillis(60_000), "telegram", "12345", 1_000)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "Test Job", job.Name)
	assert.Equal(t, "telegram", job.Channel)
	assert.Equal(t, "12345", job.UserID)
	assert.True(t, job.Enabled)
	assert.True(t, job.Notify)
	assert.Equal(t, StatusPending, job.State.LastStatus)
	require.NotNil(t, job.State.NextRunAt)
	assert.Equal(t, int64(61_000), *job.State.NextRunAt)
}

func TestNewJob_PastAtScheduleHasNoNextRun(t *testing.T) {
	job := NewJob("Old", "prompt", schedule.NewAt(500), "telegram", "u1", 1_000)
	assert.Nil(t, job.State.NextRunAt)
}

func TestJob_IsDue(t *testing.T) {
	job := NewJob("Test", "Test", schedule.NewEveryMillis(60_000), "test", "user1", 0)

	next := int64(1000)
	job.State.NextRunAt = &next

	assert.False(t, job.IsDue(500))
	assert.True(t, job.IsDue(1000))
	assert.True(t, job.IsDue(1500))

	job.Enabled = false
	assert.False(t, job.IsDue(1500))

	job.Enabled = true
	job.State.NextRunAt = nil
	assert.False(t, job.IsDue(1500))
}

func TestJob_UserKey(t *testing.T) {
	job := NewJob("Test", "Test", schedule.NewEveryMillis(60_000), "telegram", "12345", 0)
	assert.Equal(t, "telegram:12345", job.UserKey())
}

func TestJob_ShortID(t *testing.T) {
	job := &Job{ID: "abcdef0123456789"}
	assert.Equal(t, "abcdef01", job.ShortID())

	job.ID = "abc"
	assert.Equal(t, "abc", job.ShortID())
}

func TestTruncateForName(t *testing.T) {
	assert.Equal(t, "short", TruncateForName("short", 10))
	assert.Equal(t, "this is...", TruncateForName("this is a long name", 10))
	assert.Equal(t, "trimmed", TruncateForName("  trimmed  ", 10))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 28, 14, 0, 0, 0, time.Local).UnixMilli()
	assert.Equal(t, "2024-01-28 14:00", FormatTimestamp(ts))
}
