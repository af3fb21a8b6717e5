// Package retry provides retry with exponential backoff for transient
// transport failures, with error classification by message.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 10 * time.Second
)

// Config represents retry configuration. Zero values fall back to the
// defaults (3 attempts, 1s initial backoff capped at 10s).
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Do executes fn with retry logic. Non-retryable errors are returned
// immediately; retryable ones are retried with exponential backoff until
// the attempts are exhausted. Context cancellation is honored between
// attempts and during backoff.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxDelay
	}

	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		if err := Sleep(ctx, backoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff)); err != nil {
			return err
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// Sleep waits for d or until ctx is done, returning ctx.Err() when
// interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable classifies an error by its message. Timeouts, network
// failures, rate limits and 5xx responses are retryable; authentication,
// bad-request, not-found and cancellation errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	nonRetryable := []string{
		"400",
		"401",
		"403",
		"404",
		"context canceled",
	}
	for _, pattern := range nonRetryable {
		if strings.Contains(msg, pattern) {
			return false
		}
	}

	retryable := []string{
		"429",
		"too many requests",
		"rate limit",
		"retry after",
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"temporary",
		"eof",
		"502",
		"503",
		"504",
		"bad gateway",
		"service unavailable",
	}
	for _, pattern := range retryable {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

// backoff is exponential: 2^attempt * initial, capped at max.
func backoff(attempt int, initial, max time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt)) * initial
	if d > max {
		return max
	}
	return d
}
