package usertask

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxiglade/cica/internal/clock"
	"github.com/oxiglade/cica/internal/logger"
)

// Tests use the real clock with a short debounce window: the interesting
// behavior is which messages end up in which batch, and that depends on
// wall-clock ordering between ProcessMessage calls and window expiry.
const testDebounce = 50 * time.Millisecond

// batchRecorder collects handler invocations.
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]string
	done    chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{done: make(chan struct{}, 16)}
}

func (r *batchRecorder) handler(_ context.Context, messages []string) {
	r.mu.Lock()
	r.batches = append(r.batches, messages)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *batchRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a batch")
	}
}

func (r *batchRecorder) all() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return New(clock.NewSystem(), testDebounce, log, nil)
}

func TestManager_CoalescesBurstIntoOneBatch(t *testing.T) {
	m := newTestManager(t)
	rec := newBatchRecorder()
	ctx := context.Background()

	m.ProcessMessage(ctx, "telegram:42", "first", rec.handler)
	m.ProcessMessage(ctx, "telegram:42", "second", rec.handler)
	m.ProcessMessage(ctx, "telegram:42", "third", rec.handler)

	rec.wait(t)

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"first", "second", "third"}, batches[0])
	assert.Equal(t, 0, m.PendingCount("telegram:42"))
}

func TestManager_UsersAreIndependent(t *testing.T) {
	m := newTestManager(t)
	recA := newBatchRecorder()
	recB := newBatchRecorder()
	ctx := context.Background()

	m.ProcessMessage(ctx, "telegram:a", "hello from a", recA.handler)
	m.ProcessMessage(ctx, "telegram:b", "hello from b", recB.handler)

	recA.wait(t)
	recB.wait(t)

	require.Len(t, recA.all(), 1)
	require.Len(t, recB.all(), 1)
	assert.Equal(t, []string{"hello from a"}, recA.all()[0])
	assert.Equal(t, []string{"hello from b"}, recB.all()[0])
}

func TestManager_MessageAfterDrainStartsFreshCycle(t *testing.T) {
	m := newTestManager(t)
	rec := newBatchRecorder()
	ctx := context.Background()

	m.ProcessMessage(ctx, "telegram:42", "first", rec.handler)
	rec.wait(t)

	m.ProcessMessage(ctx, "telegram:42", "second", rec.handler)
	rec.wait(t)

	batches := rec.all()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"first"}, batches[0])
	assert.Equal(t, []string{"second"}, batches[1])
}

func TestManager_SupersessionCancelsInFlightHandler(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	started := make(chan struct{})
	cancelled := make(chan struct{})
	slow := func(handlerCtx context.Context, _ []string) {
		close(started)
		select {
		case <-handlerCtx.Done():
			close(cancelled)
		case <-time.After(5 * time.Second):
		}
	}

	m.ProcessMessage(ctx, "telegram:42", "long question", slow)
	<-started

	// A new message while the handler runs cancels its context.
	rec := newBatchRecorder()
	m.ProcessMessage(ctx, "telegram:42", "never mind", rec.handler)

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight handler was not cancelled")
	}

	rec.wait(t)
	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"never mind"}, batches[0])
}

func TestManager_SupersededWindowCarriesPendingOver(t *testing.T) {
	m := newTestManager(t)
	rec := newBatchRecorder()
	ctx := context.Background()

	// Messages sent within one window supersede each other's debounce
	// cycles, but every message survives into the final batch.
	for _, msg := range []string{"a", "b", "c", "d"} {
		m.ProcessMessage(ctx, "telegram:42", msg, rec.handler)
		time.Sleep(testDebounce / 10)
	}

	rec.wait(t)

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, batches[0])
}

func TestManager_DefaultDebounceApplied(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)

	m := New(clock.NewSystem(), 0, log, nil)
	assert.Equal(t, DefaultDebounce, m.debounce)
}
