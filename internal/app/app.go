// Package app wires the core together: incoming channel messages flow
// through the per-user task manager into the backend, and the cron service
// delivers job results back over the channels.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oxiglade/cica/internal/backend"
	"github.com/oxiglade/cica/internal/channels"
	"github.com/oxiglade/cica/internal/cron"
	"github.com/oxiglade/cica/internal/logger"
	"github.com/oxiglade/cica/internal/sessions"
	"github.com/oxiglade/cica/internal/usertask"
)

// sessionExpiredMarker appears in backend errors when a resumed session no
// longer exists; the app then retries once with a fresh conversation.
const sessionExpiredMarker = "No conversation found with session ID"

// App is the orchestration layer binding channels, the task manager, the
// backend and the cron service.
type App struct {
	logger   *logger.Logger
	tasks    *usertask.Manager
	invoker  backend.Invoker
	sessions *sessions.Store
	cron     *cron.Service
	registry *channels.Registry
}

// New creates the orchestrator. The cron service is attached afterwards
// via SetCron because it needs the app's result sender first.
func New(log *logger.Logger, tasks *usertask.Manager, invoker backend.Invoker, sess *sessions.Store, registry *channels.Registry) *App {
	return &App{
		logger:   log,
		tasks:    tasks,
		invoker:  invoker,
		sessions: sess,
		registry: registry,
	}
}

// SetCron attaches the cron service used by the /cron commands.
func (a *App) SetCron(svc *cron.Service) {
	a.cron = svc
}

// DeliverResult is the cron service's result sender: it resolves the
// channel by name and sends the text to the user.
func (a *App) DeliverResult(ctx context.Context, channel, userID, text string) error {
	ch := a.registry.Get(channel)
	if ch == nil {
		return fmt.Errorf("unknown channel: %s", channel)
	}
	return ch.Send(ctx, userID, text)
}

// BuildJobContext is the cron service's context builder.
func (a *App) BuildJobContext(channel, userID, _ string) (string, error) {
	return BuildContextPrompt(channel, userID), nil
}

// HandleIncoming receives raw text from a channel. Commands are answered
// synchronously; everything else goes through the per-user debounce cycle.
func (a *App) HandleIncoming(ctx context.Context, channel, userID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if response, handled := a.handleCommand(ctx, channel, userID, text); handled {
		if response != "" {
			if err := a.DeliverResult(ctx, channel, userID, response); err != nil {
				a.logger.Warn("failed to send command response",
					logger.Field{Key: "channel", Value: channel},
					logger.Field{Key: "user_id", Value: userID},
					logger.Field{Key: "error", Value: err.Error()})
			}
		}
		return
	}

	userKey := channel + ":" + userID
	a.tasks.ProcessMessage(ctx, userKey, text, func(taskCtx context.Context, batch []string) {
		a.processBatch(taskCtx, channel, userID, batch)
	})
}

// handleCommand answers the command sub-protocol. The second return is
// false when the text is not a command and should go to the backend.
func (a *App) handleCommand(ctx context.Context, channel, userID, text string) (string, bool) {
	switch {
	case text == "/commands":
		return "Available commands:\n\n" +
			"/commands - Show available commands\n" +
			"/new - Start a new conversation\n" +
			"/cron - Manage scheduled jobs", true

	case text == "/new":
		if err := a.sessions.ResetSession(channel, userID); err != nil {
			return fmt.Sprintf("Error: %s", err), true
		}
		return "Starting fresh! Our previous conversation has been cleared.", true

	case text == "/cron" || strings.HasPrefix(text, "/cron "):
		args := strings.TrimSpace(strings.TrimPrefix(text, "/cron"))
		return a.handleCronCommand(ctx, channel, userID, args), true
	}

	return "", false
}

// processBatch handles one debounced batch: joins the messages, queries
// the backend with session resumption, and sends the response back on the
// originating channel. The typing indicator stays on for the duration.
func (a *App) processBatch(ctx context.Context, channel, userID string, batch []string) {
	combined := strings.Join(batch, "\n\n")

	if ch := a.registry.Get(channel); ch != nil {
		ch.SetTyping(ctx, userID, true)
		defer ch.SetTyping(ctx, userID, false)
	}

	response, err := a.queryWithSession(ctx, channel, userID, combined)
	if err != nil {
		if ctx.Err() != nil {
			// Superseded by a newer message; the replacement batch
			// covers this one.
			return
		}
		a.logger.Warn("backend query failed",
			logger.Field{Key: "channel", Value: channel},
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "error", Value: err.Error()})
		response = fmt.Sprintf("Sorry, I encountered an error: %s", err)
	}

	if err := a.DeliverResult(ctx, channel, userID, response); err != nil {
		a.logger.Warn("failed to send response",
			logger.Field{Key: "channel", Value: channel},
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

// queryWithSession queries the backend resuming the user's stored session.
// When the session has expired on the backend side, it is cleared and the
// query retried exactly once as a fresh conversation.
func (a *App) queryWithSession(ctx context.Context, channel, userID, text string) (string, error) {
	contextPrompt := BuildContextPrompt(channel, userID)
	existing := a.sessions.GetSession(channel, userID)

	result, err := a.invoker.Invoke(ctx, text, backend.QueryOptions{
		SystemPrompt:    contextPrompt,
		ResumeSession:   existing,
		SkipPermissions: true,
	})
	if err != nil && existing != "" && strings.Contains(err.Error(), sessionExpiredMarker) {
		a.logger.Warn("session expired, starting fresh conversation",
			logger.Field{Key: "channel", Value: channel},
			logger.Field{Key: "user_id", Value: userID})
		if resetErr := a.sessions.ResetSession(channel, userID); resetErr != nil {
			return "", resetErr
		}
		result, err = a.invoker.Invoke(ctx, text, backend.QueryOptions{
			SystemPrompt:    contextPrompt,
			SkipPermissions: true,
		})
	}
	if err != nil {
		return "", err
	}

	if result.SessionID != "" && result.SessionID != existing {
		if err := a.sessions.SetSession(channel, userID, result.SessionID); err != nil {
			a.logger.Warn("failed to persist session",
				logger.Field{Key: "channel", Value: channel},
				logger.Field{Key: "user_id", Value: userID},
				logger.Field{Key: "error", Value: err.Error()})
		}
	}

	return result.Text, nil
}

// StartChannels starts every registered channel and blocks until all of
// them stop.
func (a *App) StartChannels(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ch := range a.registry.All() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ch.Start(ctx, func(channel, userID, text string) {
				a.HandleIncoming(ctx, channel, userID, text)
			}); err != nil {
				a.logger.Error("channel stopped with error", err,
					logger.Field{Key: "channel", Value: ch.Name()})
			}
		}()
	}
	wg.Wait()
}
