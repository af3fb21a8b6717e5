package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxiglade/cica/internal/backend"
	"github.com/oxiglade/cica/internal/clock"
	"github.com/oxiglade/cica/internal/cron"
	"github.com/oxiglade/cica/internal/logger"
	"github.com/oxiglade/cica/internal/schedule"
)

func TestParseAddCommand(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantKind   schedule.Kind
		wantPrompt string
		wantErr    bool
	}{
		{
			name:       "every interval",
			input:      "every 1h Check my emails",
			wantKind:   schedule.KindEvery,
			wantPrompt: "Check my emails",
		},
		{
			name:       "every seconds",
			input:      "every 10s Say hello",
			wantKind:   schedule.KindEvery,
			wantPrompt: "Say hello",
		},
		{
			name:       "at datetime",
			input:      "at 2030-06-01 14:00 Remind me about the meeting",
			wantKind:   schedule.KindAt,
			wantPrompt: "Remind me about the meeting",
		},
		{
			name:       "cron expression",
			input:      "0 9 * * * Good morning!",
			wantKind:   schedule.KindCron,
			wantPrompt: "Good morning!",
		},
		{
			name:       "cron expression with ranges",
			input:      "*/15 9-17 * * 1-5 Check the build",
			wantKind:   schedule.KindCron,
			wantPrompt: "Check the build",
		},
		{name: "empty", input: "", wantErr: true},
		{name: "every without prompt", input: "every 1h", wantErr: true},
		{name: "at without prompt", input: "at 2030-06-01 14:00", wantErr: true},
		{name: "bad interval", input: "every 1x do things", wantErr: true},
		{name: "not a schedule", input: "just some words here please thanks", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, prompt, err := ParseAddCommand(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, sched.Kind)
			assert.Equal(t, tt.wantPrompt, prompt)
		})
	}
}

func TestParseAddCommand_EveryInterval(t *testing.T) {
	sched, prompt, err := ParseAddCommand("every 1h Check my emails")
	require.NoError(t, err)
	assert.Equal(t, int64(3_600_000), sched.EveryMS)
	assert.Equal(t, "Check my emails", prompt)
}

// cronTestApp wires an App to a real cron service over a fake clock.
func cronTestApp(t *testing.T) (*App, *cron.Service, *clock.FakeClock) {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)

	clk := clock.NewFake(1_000)
	store, err := cron.LoadStore(filepath.Join(t.TempDir(), "jobs.json"))
	require.NoError(t, err)

	invoker := backend.InvokerFunc(func(context.Context, string, backend.QueryOptions) (backend.Result, error) {
		return backend.Result{Text: "ok"}, nil
	})

	a, _, _ := testApp(t, invoker)
	svc := cron.NewService(clk, store, cron.Config{}, invoker, a.DeliverResult, a.BuildJobContext, log, nil)
	a.SetCron(svc)
	return a, svc, clk
}

func TestCronCommand_DisabledWithoutService(t *testing.T) {
	a, _, _ := testApp(t, echoInvoker())

	got := a.handleCronCommand(context.Background(), "telegram", "42", "list")
	assert.Equal(t, "Scheduled jobs are disabled.", got)
}

func TestCronCommand_HelpForUnknownSubcommand(t *testing.T) {
	a, _, _ := cronTestApp(t)

	got := a.handleCronCommand(context.Background(), "telegram", "42", "help")
	assert.Contains(t, got, "/cron add <schedule> <prompt>")
	assert.Contains(t, got, "every 10s")
}

func TestCronCommand_AddAndList(t *testing.T) {
	a, svc, _ := cronTestApp(t)
	ctx := context.Background()

	got := a.handleCronCommand(ctx, "telegram", "42", "list")
	assert.Contains(t, got, "No scheduled jobs.")

	got = a.handleCronCommand(ctx, "telegram", "42", "add every 1h Check my emails")
	assert.Contains(t, got, `Created job`)
	assert.Contains(t, got, `"Check my emails"`)
	assert.Contains(t, got, "every 1h")

	jobs := svc.List("telegram", "42")
	require.Len(t, jobs, 1)
	assert.Equal(t, "Check my emails", jobs[0].Prompt)

	got = a.handleCronCommand(ctx, "telegram", "42", "list")
	assert.Contains(t, got, "Check my emails")
	assert.Contains(t, got, jobs[0].ShortID())
}

func TestCronCommand_AddRejectsBadSchedule(t *testing.T) {
	a, svc, _ := cronTestApp(t)

	got := a.handleCronCommand(context.Background(), "telegram", "42", "add whenever Do things")
	assert.Contains(t, got, "Error:")
	assert.Empty(t, svc.List("telegram", "42"))
}

func TestCronCommand_AddTruncatesLongName(t *testing.T) {
	a, svc, _ := cronTestApp(t)

	long := "Summarize everything that happened in my inbox overnight"
	got := a.handleCronCommand(context.Background(), "telegram", "42", "add every 1h "+long)
	assert.Contains(t, got, "Created job")

	jobs := svc.List("telegram", "42")
	require.Len(t, jobs, 1)
	assert.LessOrEqual(t, len(jobs[0].Name), maxJobNameLen)
	// The full prompt is kept even when the display name is shortened.
	assert.Equal(t, long, jobs[0].Prompt)
}

func TestCronCommand_RemoveByShortID(t *testing.T) {
	a, svc, _ := cronTestApp(t)
	ctx := context.Background()

	a.handleCronCommand(ctx, "telegram", "42", "add every 1h Check my emails")
	jobs := svc.List("telegram", "42")
	require.Len(t, jobs, 1)

	got := a.handleCronCommand(ctx, "telegram", "42", "remove "+jobs[0].ShortID())
	assert.Contains(t, got, "Removed job")
	assert.Empty(t, svc.List("telegram", "42"))
}

func TestCronCommand_RemoveScopedToOwner(t *testing.T) {
	a, svc, _ := cronTestApp(t)
	ctx := context.Background()

	a.handleCronCommand(ctx, "telegram", "owner", "add every 1h Check my emails")
	jobs := svc.List("telegram", "owner")
	require.Len(t, jobs, 1)

	got := a.handleCronCommand(ctx, "telegram", "intruder", "remove "+jobs[0].ID)
	assert.Contains(t, got, "Error:")
	assert.Len(t, svc.List("telegram", "owner"), 1)
}

func TestCronCommand_PauseAndResume(t *testing.T) {
	a, svc, _ := cronTestApp(t)
	ctx := context.Background()

	a.handleCronCommand(ctx, "telegram", "42", "add every 1h Check my emails")
	id := svc.List("telegram", "42")[0].ShortID()

	got := a.handleCronCommand(ctx, "telegram", "42", "pause "+id)
	assert.Contains(t, got, "Paused job")
	assert.False(t, svc.List("telegram", "42")[0].Enabled)

	got = a.handleCronCommand(ctx, "telegram", "42", "resume "+id)
	assert.Contains(t, got, "Resumed job")
	assert.Contains(t, got, "Next run:")
	assert.True(t, svc.List("telegram", "42")[0].Enabled)
}

func TestCronCommand_Status(t *testing.T) {
	a, svc, _ := cronTestApp(t)
	ctx := context.Background()

	a.handleCronCommand(ctx, "telegram", "42", "add every 1h Check my emails")
	id := svc.List("telegram", "42")[0].ShortID()

	got := a.handleCronCommand(ctx, "telegram", "42", "status "+id)
	assert.Contains(t, got, "Check my emails")
	assert.Contains(t, got, "Schedule: every 1h")
	assert.Contains(t, got, "Enabled: true")
	assert.Contains(t, got, "Last run: never")
}

func TestCronCommand_UsageWithoutArguments(t *testing.T) {
	a, _, _ := cronTestApp(t)
	ctx := context.Background()

	for args, want := range map[string]string{
		"add":    "Usage: /cron add",
		"remove": "Usage: /cron remove",
		"run":    "Usage: /cron run",
		"pause":  "Usage: /cron pause",
		"resume": "Usage: /cron resume",
		"status": "Usage: /cron status",
	} {
		got := a.handleCronCommand(ctx, "telegram", "42", args)
		assert.Contains(t, got, want, "subcommand %q", args)
	}
}
