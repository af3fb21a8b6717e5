// Package clock abstracts wall-clock time behind an interface so that
// scheduler logic can be tested without real delays.
package clock

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Clock provides the current time and a cooperative sleep.
type Clock interface {
	// Now returns the current time in milliseconds since the Unix epoch.
	Now() int64

	// Sleep suspends the calling goroutine for d, or until ctx is done.
	// It returns ctx.Err() when interrupted, nil otherwise.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real wall clock used in production.
type SystemClock struct{}

// NewSystem returns a wall-clock backed Clock.
func NewSystem() SystemClock {
	return SystemClock{}
}

func (SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FakeClock is a manually advanced clock for tests. Copies made with Clone
// share the same underlying counter, so advancing one advances all.
type FakeClock struct {
	current *atomic.Int64
}

// NewFake creates a fake clock starting at the given millisecond timestamp.
func NewFake(initialMS int64) *FakeClock {
	c := &FakeClock{current: &atomic.Int64{}}
	c.current.Store(initialMS)
	return c
}

// Clone returns a FakeClock sharing this clock's counter.
func (c *FakeClock) Clone() *FakeClock {
	return &FakeClock{current: c.current}
}

// AdvanceMillis moves time forward by the given number of milliseconds.
func (c *FakeClock) AdvanceMillis(ms int64) {
	c.current.Add(ms)
}

// Advance moves time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.AdvanceMillis(d.Milliseconds())
}

// Set jumps time to a specific millisecond timestamp.
func (c *FakeClock) Set(ms int64) {
	c.current.Store(ms)
}

func (c *FakeClock) Now() int64 {
	return c.current.Load()
}

// Sleep yields once without waiting; tests drive time via Advance.
func (c *FakeClock) Sleep(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runtime.Gosched()
	return nil
}
