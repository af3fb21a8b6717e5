package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/oxiglade/cica/internal/cron"
	"github.com/oxiglade/cica/internal/logger"
	"github.com/oxiglade/cica/internal/schedule"
)

// cronUsage is the /cron help text.
const cronUsage = `Cron job commands:

/cron list - List your scheduled jobs
/cron add <schedule> <prompt> - Create a new job
/cron remove <job-id> - Delete a job
/cron run <job-id> - Run immediately (for testing)
/cron pause <job-id> - Pause a job
/cron resume <job-id> - Resume a paused job
/cron status <job-id> - Show job details

Schedule formats:
• every 10s / every 5m / every 1h - Recurring interval
• at 2024-01-28 14:00 - One-time execution
• 0 9 * * * - Cron expression (9 AM daily)

Examples:
/cron add every 1h Check my inbox
/cron add 0 9 * * * Good morning!`

// maxJobNameLen bounds generated job names in listings.
const maxJobNameLen = 30

// ParseAddCommand splits a "/cron add" argument string into a schedule and
// the remaining prompt. The schedule is either "every <interval>",
// "at <date> <time>" (two words), or the leading five cron fields.
func ParseAddCommand(input string) (schedule.Schedule, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return schedule.Schedule{}, "", fmt.Errorf("usage: /cron add <schedule> <prompt>")
	}

	if strings.HasPrefix(input, "every ") {
		parts := strings.SplitN(input, " ", 3)
		if len(parts) < 3 {
			return schedule.Schedule{}, "", fmt.Errorf("usage: /cron add every <interval> <prompt>")
		}
		sched, err := schedule.Parse(parts[0] + " " + parts[1])
		if err != nil {
			return schedule.Schedule{}, "", err
		}
		return sched, parts[2], nil
	}

	if strings.HasPrefix(input, "at ") {
		// The datetime is two words: date and time.
		parts := strings.SplitN(input, " ", 4)
		if len(parts) < 4 {
			return schedule.Schedule{}, "", fmt.Errorf("usage: /cron add at <date> <time> <prompt>")
		}
		sched, err := schedule.Parse(strings.Join(parts[:3], " "))
		if err != nil {
			return schedule.Schedule{}, "", err
		}
		return sched, parts[3], nil
	}

	// Five leading fields may be a cron expression.
	parts := strings.SplitN(input, " ", 6)
	if len(parts) >= 6 {
		expr := strings.Join(parts[:5], " ")
		if sched, err := schedule.Parse(expr); err == nil {
			return sched, parts[5], nil
		}
	}

	return schedule.Schedule{}, "", fmt.Errorf(
		"could not parse schedule. Use:\n" +
			"- every <interval> (e.g., every 1h, every 10s)\n" +
			"- at <datetime> (e.g., at 2024-01-28 14:00)\n" +
			"- <cron expression> (e.g., 0 9 * * *)")
}

// handleCronCommand dispatches a /cron subcommand for the given owner and
// returns the response text. Errors are folded into plain user text.
func (a *App) handleCronCommand(ctx context.Context, channel, userID, args string) string {
	if a.cron == nil {
		return "Scheduled jobs are disabled."
	}

	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	subcommand := parts[0]
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}

	switch subcommand {
	case "list", "ls":
		return a.cronList(channel, userID)
	case "add":
		return a.cronAdd(channel, userID, rest)
	case "remove", "rm", "delete":
		return a.cronRemove(channel, userID, rest)
	case "run":
		return a.cronRun(ctx, channel, userID, rest)
	case "pause", "disable":
		return a.cronSetEnabled(channel, userID, rest, false)
	case "resume", "enable":
		return a.cronSetEnabled(channel, userID, rest, true)
	case "status":
		return a.cronStatus(channel, userID, rest)
	default:
		return cronUsage
	}
}

func (a *App) cronList(channel, userID string) string {
	jobs := a.cron.List(channel, userID)
	if len(jobs) == 0 {
		return "No scheduled jobs.\n\nUse /cron add to create one. Try /cron help for usage."
	}

	var b strings.Builder
	b.WriteString("Your scheduled jobs:\n")
	for _, job := range jobs {
		next := "—"
		if job.State.NextRunAt != nil {
			next = cron.FormatTimestamp(*job.State.NextRunAt)
		}
		paused := ""
		if !job.Enabled {
			paused = " (paused)"
		}
		fmt.Fprintf(&b, "\n[%s] %s%s\n  Schedule: %s\n  Status: %s | Next: %s\n",
			job.ShortID(), job.Name, paused,
			job.Schedule.Description(), job.State.LastStatus, next)
	}
	return b.String()
}

func (a *App) cronAdd(channel, userID, args string) string {
	if args == "" {
		return "Usage: /cron add <schedule> <prompt>\n\n" +
			"Examples:\n" +
			"/cron add every 1h Check my emails\n" +
			"/cron add every 10s Say hello\n" +
			"/cron add 0 9 * * * Good morning!"
	}

	sched, prompt, err := ParseAddCommand(args)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	name := cron.TruncateForName(prompt, maxJobNameLen)
	job, err := a.cron.Add(name, prompt, sched, channel, userID)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	next := "—"
	if job.State.NextRunAt != nil {
		next = cron.FormatTimestamp(*job.State.NextRunAt)
	}
	return fmt.Sprintf("Created job [%s] %q\nSchedule: %s\nNext run: %s\n\nUse /cron run %s to test it now!",
		job.ShortID(), job.Name, job.Schedule.Description(), next, job.ShortID())
}

func (a *App) cronRemove(channel, userID, id string) string {
	if id == "" {
		return "Usage: /cron remove <job-id>"
	}
	job, err := a.cron.Remove(id, channel, userID)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}
	return fmt.Sprintf("Removed job [%s] %q", job.ShortID(), job.Name)
}

func (a *App) cronRun(ctx context.Context, channel, userID, id string) string {
	if id == "" {
		return "Usage: /cron run <job-id>"
	}

	resolved, err := a.cron.ResolveID(id, channel, userID)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	// The execution reports its outcome through the job's notify path;
	// respond immediately so the chat stays responsive.
	go func() {
		if err := a.cron.RunNow(ctx, resolved, channel, userID); err != nil {
			a.logger.Warn("manual job run failed",
				logger.Field{Key: "job", Value: resolved},
				logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	return fmt.Sprintf("Running job %s now...", id)
}

func (a *App) cronSetEnabled(channel, userID, id string, enabled bool) string {
	verb := "pause"
	if enabled {
		verb = "resume"
	}
	if id == "" {
		return fmt.Sprintf("Usage: /cron %s <job-id>", verb)
	}

	job, err := a.cron.SetEnabled(id, channel, userID, enabled)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	if !enabled {
		return fmt.Sprintf("Paused job [%s] %q", job.ShortID(), job.Name)
	}
	next := "soon"
	if job.State.NextRunAt != nil {
		next = cron.FormatTimestamp(*job.State.NextRunAt)
	}
	return fmt.Sprintf("Resumed job [%s] %q\nNext run: %s", job.ShortID(), job.Name, next)
}

func (a *App) cronStatus(channel, userID, id string) string {
	if id == "" {
		return "Usage: /cron status <job-id>"
	}
	job, err := a.cron.Status(id, channel, userID)
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	next := "—"
	if job.State.NextRunAt != nil {
		next = cron.FormatTimestamp(*job.State.NextRunAt)
	}
	last := "never"
	if job.State.LastRunAt != nil {
		last = cron.FormatTimestamp(*job.State.LastRunAt)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Job [%s] %q\n", job.ShortID(), job.Name)
	fmt.Fprintf(&b, "Schedule: %s\n", job.Schedule.Description())
	fmt.Fprintf(&b, "Enabled: %t | Notify: %t\n", job.Enabled, job.Notify)
	fmt.Fprintf(&b, "Status: %s", job.State.LastStatus)
	if job.State.LastError != "" {
		fmt.Fprintf(&b, " (%s)", job.State.LastError)
	}
	fmt.Fprintf(&b, "\nLast run: %s | Next run: %s\n", last, next)
	if job.State.LastDurationMS != nil {
		fmt.Fprintf(&b, "Last duration: %dms\n", *job.State.LastDurationMS)
	}
	if job.State.FailureCount > 0 {
		fmt.Fprintf(&b, "Consecutive failures: %d\n", job.State.FailureCount)
	}
	return b.String()
}
