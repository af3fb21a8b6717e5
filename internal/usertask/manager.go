// Package usertask debounces and coalesces rapid messages per user, so a
// burst of messages produces one handler invocation with the whole batch
// and any superseded in-flight work is cancelled.
package usertask

import (
	"context"
	"sync"
	"time"

	"github.com/oxiglade/cica/internal/clock"
	"github.com/oxiglade/cica/internal/logger"
	"github.com/oxiglade/cica/internal/metrics"
)

// DefaultDebounce is how long to wait for more messages before handing a
// batch to the handler.
const DefaultDebounce = 200 * time.Millisecond

// Handler processes one debounced batch of messages for a user. The ctx is
// cancelled when a newer message supersedes the task, so backend calls made
// inside the handler stop at their next checkpoint.
type Handler func(ctx context.Context, messages []string)

// task is the active processing task for one user.
type task struct {
	cancel context.CancelFunc
}

// Manager guarantees at most one active processing task per user key.
// A new message for a key with an active task cancels that task and starts
// a fresh debounce cycle covering all still-pending messages.
type Manager struct {
	clock    clock.Clock
	debounce time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	pending map[string][]string
	active  map[string]*task
}

// New creates a task manager. A non-positive debounce falls back to
// DefaultDebounce.
func New(clk clock.Clock, debounce time.Duration, log *logger.Logger, m *metrics.Metrics) *Manager {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Manager{
		clock:    clk,
		debounce: debounce,
		logger:   log,
		metrics:  m,
		pending:  make(map[string][]string),
		active:   make(map[string]*task),
	}
}

// ProcessMessage queues a message for the user and (re)starts the debounce
// cycle. If a task is already running for the key it is cancelled before
// the new one is scheduled; the pending queue carries its unprocessed
// messages over into the new batch.
func (m *Manager) ProcessMessage(ctx context.Context, userKey, message string, handler Handler) {
	m.logger.Debug("queueing message",
		logger.Field{Key: "user", Value: userKey})

	m.mu.Lock()
	m.pending[userKey] = append(m.pending[userKey], message)

	if existing, ok := m.active[userKey]; ok {
		m.logger.Debug("superseding active task", logger.Field{Key: "user", Value: userKey})
		existing.cancel()
		delete(m.active, userKey)
		if m.metrics != nil {
			m.metrics.RecordSupersession()
		}
	}

	taskCtx, cancel := context.WithCancel(ctx)
	current := &task{cancel: cancel}
	m.active[userKey] = current
	m.mu.Unlock()

	go m.run(taskCtx, userKey, current, handler)
}

// run waits out the debounce window, drains the pending queue, and invokes
// the handler with the batch. No lock is held across the sleep or the
// handler call.
func (m *Manager) run(ctx context.Context, userKey string, self *task, handler Handler) {
	defer self.cancel()

	if err := m.clock.Sleep(ctx, m.debounce); err != nil {
		// Superseded during the debounce window; the pending queue
		// keeps our messages for the replacement task.
		return
	}

	m.mu.Lock()
	if m.active[userKey] != self {
		m.mu.Unlock()
		return
	}
	messages := m.pending[userKey]
	delete(m.pending, userKey)
	m.mu.Unlock()

	if len(messages) == 0 {
		m.deregister(userKey, self)
		return
	}

	m.logger.Debug("processing batch",
		logger.Field{Key: "user", Value: userKey},
		logger.Field{Key: "messages", Value: len(messages)})
	if m.metrics != nil {
		m.metrics.RecordBatch(len(messages))
	}

	handler(ctx, messages)

	m.deregister(userKey, self)
}

// deregister removes the task as the active one for the key, unless a
// newer task has already replaced it.
func (m *Manager) deregister(userKey string, self *task) {
	m.mu.Lock()
	if m.active[userKey] == self {
		delete(m.active, userKey)
	}
	m.mu.Unlock()
}

// PendingCount returns how many messages are queued for the key. Test hook.
func (m *Manager) PendingCount(userKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[userKey])
}
