package runqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/runlog"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []runlog.Type
}

func (r *recordingEmitter) Emit(_ context.Context, _ string, eventType runlog.Type, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingEmitter) has(t runlog.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == t {
			return true
		}
	}
	return false
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := New(Options{MaxSize: 1})
	require.NoError(t, q.Enqueue(context.Background(), "run_a"))
	err := q.Enqueue(context.Background(), "run_b")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestProcessQueueRunsOneAtATime(t *testing.T) {
	emitter := &recordingEmitter{}
	q := New(Options{Events: emitter})

	var concurrent int32
	var maxConcurrent int32
	var mu sync.Mutex
	q.SetExecutor(func(ctx context.Context, runID string) error {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		concurrent--
		mu.Unlock()
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), "run_a"))
	require.NoError(t, q.Enqueue(context.Background(), "run_b"))

	q.drain(context.Background())

	assert.Equal(t, int32(1), maxConcurrent)
	assert.True(t, emitter.has(runlog.TypeRunCompleted))
}

func TestProcessQueueEmitsFailedOnExecutorError(t *testing.T) {
	emitter := &recordingEmitter{}
	q := New(Options{Events: emitter})
	q.SetExecutor(func(ctx context.Context, runID string) error {
		return errors.New("boom")
	})
	require.NoError(t, q.Enqueue(context.Background(), "run_a"))
	q.drain(context.Background())

	assert.True(t, emitter.has(runlog.TypeRunFailed))
}

func TestProcessQueuePicksUpRunEnqueuedAfterDrain(t *testing.T) {
	emitter := &recordingEmitter{}
	q := New(Options{Events: emitter})

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)
	q.SetExecutor(func(ctx context.Context, runID string) error {
		mu.Lock()
		seen = append(seen, runID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.ProcessQueue(ctx)

	require.NoError(t, q.Enqueue(ctx, "run_a"))
	<-done

	require.NoError(t, q.Enqueue(ctx, "run_b"))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run_b enqueued after the queue drained was never executed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"run_a", "run_b"}, seen)
}

func TestCancelRemovesPendingRun(t *testing.T) {
	q := New(Options{Events: &recordingEmitter{}})
	require.NoError(t, q.Enqueue(context.Background(), "run_a"))

	ok := q.Cancel(context.Background(), "run_a")
	assert.True(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestPersistAndRestoreRoundTrips(t *testing.T) {
	dir := t.TempDir()
	q := New(Options{PersistDir: dir, MaxSize: 10})
	require.NoError(t, q.Enqueue(context.Background(), "run_a"))
	require.NoError(t, q.Enqueue(context.Background(), "run_b"))

	q2 := New(Options{PersistDir: dir, MaxSize: 10})
	n, err := q2.Restore()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, q2.Len())
}

func TestNotifyRunWaitingFreesWorkerSlot(t *testing.T) {
	emitter := &recordingEmitter{}
	q := New(Options{Events: emitter})

	started := make(chan struct{})
	release := make(chan struct{})
	q.SetExecutor(func(ctx context.Context, runID string) error {
		close(started)
		q.NotifyRunWaiting(ctx, runID)
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, "run_a"))
	go q.ProcessQueue(ctx)

	<-started
	assert.True(t, emitter.has(runlog.TypeRunWaiting))
	close(release)
}
