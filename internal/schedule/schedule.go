// Package schedule defines the schedule value type for cron jobs and its
// three surface syntaxes: one-shot "at" timestamps, "every" intervals, and
// standard 5-field cron expressions.
package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind discriminates the three schedule variants.
type Kind string

const (
	// KindAt fires once at a fixed timestamp.
	KindAt Kind = "at"
	// KindEvery fires repeatedly, interval milliseconds after each reference time.
	KindEvery Kind = "every"
	// KindCron follows a standard 5-field cron expression.
	KindCron Kind = "cron"
)

// cronParser accepts the five standard fields (minute, hour, day-of-month,
// month, day-of-week) with *, ranges, lists and steps.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is an immutable schedule specification. The zero value is not
// valid; construct via Parse or the New* helpers.
type Schedule struct {
	Kind    Kind   `json:"type"`
	At      int64  `json:"at,omitempty"`       // KindAt: unix millis
	EveryMS int64  `json:"every_ms,omitempty"` // KindEvery: interval millis
	Expr    string `json:"expr,omitempty"`     // KindCron: cron expression
}

// NewAt creates a one-shot schedule firing at the given unix millisecond timestamp.
func NewAt(ms int64) Schedule {
	return Schedule{Kind: KindAt, At: ms}
}

// NewEvery creates a recurring schedule with the given interval.
func NewEvery(d time.Duration) Schedule {
	return Schedule{Kind: KindEvery, EveryMS: d.Milliseconds()}
}

// NewEveryMillis creates a recurring schedule with the given interval in milliseconds.
func NewEveryMillis(ms int64) Schedule {
	return Schedule{Kind: KindEvery, EveryMS: ms}
}

// NewCron creates a cron-expression schedule, validating the expression.
func NewCron(expr string) (Schedule, error) {
	if _, err := cronParser.Parse(expr); err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return Schedule{Kind: KindCron, Expr: expr}, nil
}

// Parse parses a schedule string.
//
// Formats:
//   - "at 2024-01-28 14:00" or "at 2024-01-28T14:00:00" (local time)
//   - "every 10s", "every 5m", "every 1h", "every 2d"
//   - "0 9 * * *" (bare 5-field cron expression)
func Parse(input string) (Schedule, error) {
	input = strings.TrimSpace(input)

	if rest, ok := strings.CutPrefix(input, "at "); ok {
		ts, err := parseDateTime(strings.TrimSpace(rest))
		if err != nil {
			return Schedule{}, err
		}
		return NewAt(ts), nil
	}

	if rest, ok := strings.CutPrefix(input, "every "); ok {
		ms, err := parseDuration(strings.TrimSpace(rest))
		if err != nil {
			return Schedule{}, err
		}
		return NewEveryMillis(ms), nil
	}

	// Assume cron expression and validate it
	return NewCron(input)
}

// NextRunAfter computes the next due timestamp strictly derived from the
// reference time. The second return is false only for an At schedule whose
// timestamp is at or before the reference.
func (s Schedule) NextRunAfter(afterMS int64) (int64, bool) {
	switch s.Kind {
	case KindAt:
		if s.At > afterMS {
			return s.At, true
		}
		return 0, false
	case KindEvery:
		return afterMS + s.EveryMS, true
	case KindCron:
		sched, err := cronParser.Parse(s.Expr)
		if err != nil {
			return 0, false
		}
		after := time.UnixMilli(afterMS).In(time.Local)
		return sched.Next(after).UnixMilli(), true
	default:
		return 0, false
	}
}

// Description renders the schedule for humans. Every and At render in the
// same surface syntax Parse accepts; cron expressions are returned verbatim.
func (s Schedule) Description() string {
	switch s.Kind {
	case KindAt:
		return fmt.Sprintf("at %s", time.UnixMilli(s.At).In(time.Local).Format("2006-01-02 15:04"))
	case KindEvery:
		return formatDuration(s.EveryMS)
	case KindCron:
		return s.Expr
	default:
		return "unknown"
	}
}

// IsOneShot reports whether the schedule fires at most once.
func (s Schedule) IsOneShot() bool {
	return s.Kind == KindAt
}

const (
	millisPerSecond = 1_000
	millisPerMinute = 60_000
	millisPerHour   = 3_600_000
	millisPerDay    = 86_400_000
)

// parseDuration parses interval strings like "10s", "5m", "1h", "2d" into milliseconds.
func parseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	numEnd := len(s)
	for i, c := range s {
		if c < '0' || c > '9' {
			numEnd = i
			break
		}
	}
	if numEnd == 0 {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}

	num, err := strconv.ParseInt(s[:numEnd], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", s[:numEnd])
	}

	var multiplier int64
	switch strings.TrimSpace(s[numEnd:]) {
	case "s", "sec", "secs", "second", "seconds":
		multiplier = millisPerSecond
	case "m", "min", "mins", "minute", "minutes":
		multiplier = millisPerMinute
	case "h", "hr", "hrs", "hour", "hours":
		multiplier = millisPerHour
	case "d", "day", "days":
		multiplier = millisPerDay
	default:
		return 0, fmt.Errorf("invalid unit: %s. Use s/m/h/d", strings.TrimSpace(s[numEnd:]))
	}

	if num > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("interval too large: %s", s)
	}

	return num * multiplier, nil
}

// formatDuration renders milliseconds as the largest whole unit, falling
// back to a raw millisecond count when nothing divides evenly.
func formatDuration(ms int64) string {
	switch {
	case ms >= millisPerDay && ms%millisPerDay == 0:
		return fmt.Sprintf("every %dd", ms/millisPerDay)
	case ms >= millisPerHour && ms%millisPerHour == 0:
		return fmt.Sprintf("every %dh", ms/millisPerHour)
	case ms >= millisPerMinute && ms%millisPerMinute == 0:
		return fmt.Sprintf("every %dm", ms/millisPerMinute)
	case ms >= millisPerSecond && ms%millisPerSecond == 0:
		return fmt.Sprintf("every %ds", ms/millisPerSecond)
	default:
		return fmt.Sprintf("every %dms", ms)
	}
}

// dateTimeLayouts are the accepted "at" datetime formats, tried in order.
var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseDateTime parses a local-timezone datetime into unix milliseconds.
func parseDateTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid datetime: %s. Use format: YYYY-MM-DD HH:MM", s)
}
