// Package runqueue is the RunQueue: single-worker FIFO admission, abort
// signals, suspension/resume, and disk-backed queue persistence. Uses a
// plain in-process engine rather than a durable workflow engine, since
// distributed/durable scheduling is out of scope.
package runqueue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentcore/runtime/pkg/runlog"
	"github.com/agentcore/runtime/pkg/telemetry"
)

// Executor is the function the queue invokes to process one run. It must
// observe ctx's cancellation promptly.
type Executor func(ctx context.Context, runID string) error

// record is the queue's own bookkeeping for one admitted run.
type record struct {
	RunID     string    `json:"run_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ErrQueueFull is returned by Enqueue when the pending queue is at
// capacity.
var ErrQueueFull = fmt.Errorf("runqueue: queue is full")

// EventEmitter receives the run.* lifecycle events the queue emits.
type EventEmitter interface {
	Emit(ctx context.Context, runID string, eventType runlog.Type, payload any)
}

// Options configures a Queue.
type Options struct {
	MaxSize      int
	TimeoutMS    int64
	PersistDir   string // empty disables disk persistence
	Events       EventEmitter
	Telemetry    telemetry.ToolTelemetry
}

// Queue is the RunQueue.
type Queue struct {
	mu      sync.Mutex
	pending []record
	running string // run id currently occupying the worker slot, "" if idle
	waiting map[string]bool

	opts     Options
	executor Executor
	pumpCh   chan struct{}
	cancels  map[string]context.CancelFunc
}

// New constructs a Queue. Call Restore to repopulate from a persisted
// queue file, then SetExecutor, then launch ProcessQueue in its own
// goroutine to start the pump.
func New(opts Options) *Queue {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1000
	}
	if opts.Telemetry.Logger == nil {
		opts.Telemetry = telemetry.Noop
	}
	return &Queue{
		opts:    opts,
		waiting: make(map[string]bool),
		pumpCh:  make(chan struct{}, 1),
		cancels: make(map[string]context.CancelFunc),
	}
}

// SetExecutor implements RunQueue.setExecutor.
func (q *Queue) SetExecutor(fn Executor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.executor = fn
}

// Enqueue implements RunQueue.enqueue.
func (q *Queue) Enqueue(ctx context.Context, runID string) error {
	q.mu.Lock()
	if len(q.pending) >= q.opts.MaxSize {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.pending = append(q.pending, record{RunID: runID, EnqueuedAt: time.Now()})
	q.mu.Unlock()

	q.persist()
	q.emit(ctx, runID, runlog.TypeRunEnqueued, nil)
	q.wakePump()
	return nil
}

func (q *Queue) emit(ctx context.Context, runID string, t runlog.Type, payload any) {
	if q.opts.Events != nil {
		q.opts.Events.Emit(ctx, runID, t, payload)
	}
}

func (q *Queue) wakePump() {
	select {
	case q.pumpCh <- struct{}{}:
	default:
	}
}

// isBusy reports whether the worker slot is occupied by a running run. A
// waiting run does not occupy it: NotifyRunWaiting frees the slot.
func (q *Queue) isBusy() bool {
	return q.running != ""
}

// ProcessQueue implements RunQueue.processQueue: the pump loop that owns the
// single worker slot for the lifetime of ctx. It drains the pending queue
// one run at a time, then blocks on pumpCh until Enqueue, NotifyRunWaiting,
// or NotifyRunResumed wakes it again. Callers start it once, in its own
// goroutine, after SetExecutor.
func (q *Queue) ProcessQueue(ctx context.Context) {
	for {
		q.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-q.pumpCh:
		}
	}
}

// drain advances runs out of the pending queue, one at a time, until the
// queue is empty or the worker slot is occupied.
func (q *Queue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.isBusy() || len(q.pending) == 0 || q.executor == nil {
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.running = next.RunID
		runCtx, cancel := context.WithCancel(ctx)
		if q.opts.TimeoutMS > 0 {
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(q.opts.TimeoutMS)*time.Millisecond)
		}
		q.cancels[next.RunID] = cancel
		executor := q.executor
		q.mu.Unlock()

		q.persist()
		q.emit(ctx, next.RunID, runlog.TypeRunStarted, nil)

		err := executor(runCtx, next.RunID)

		q.mu.Lock()
		if cancel, ok := q.cancels[next.RunID]; ok {
			cancel()
			delete(q.cancels, next.RunID)
		}
		wasWaiting := q.waiting[next.RunID]
		delete(q.waiting, next.RunID)
		q.running = ""
		q.mu.Unlock()
		q.persist()

		if wasWaiting {
			// the run itself transitioned to waiting mid-flight; its
			// terminal event (if any) was already emitted by the caller
			// that drove it back to running via notifyRunResumed.
			continue
		}

		switch {
		case runCtx.Err() != nil && ctxCancelledByQueue(runCtx):
			q.emit(ctx, next.RunID, runlog.TypeRunCancelled, nil)
		case err != nil:
			q.emit(ctx, next.RunID, runlog.TypeRunFailed, map[string]string{"message": err.Error()})
		default:
			q.emit(ctx, next.RunID, runlog.TypeRunCompleted, nil)
		}
	}
}

func ctxCancelledByQueue(ctx context.Context) bool {
	return ctx.Err() == context.Canceled || ctx.Err() == context.DeadlineExceeded
}

// Cancel implements RunQueue.cancel. Returns whether any action was taken.
func (q *Queue) Cancel(ctx context.Context, runID string) bool {
	q.mu.Lock()
	for i, r := range q.pending {
		if r.RunID == runID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.mu.Unlock()
			q.persist()
			q.emit(ctx, runID, runlog.TypeRunCancelled, nil)
			return true
		}
	}
	if q.running == runID {
		cancel := q.cancels[runID]
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		q.emit(ctx, runID, runlog.TypeRunCancelled, nil)
		return true
	}
	q.mu.Unlock()
	return false
}

// NotifyRunWaiting implements RunQueue.notifyRunWaiting: frees the worker
// slot for a currently-running run without forgetting it is still alive.
func (q *Queue) NotifyRunWaiting(ctx context.Context, runID string) {
	q.mu.Lock()
	q.waiting[runID] = true
	if q.running == runID {
		q.running = ""
	}
	q.mu.Unlock()
	q.emit(ctx, runID, runlog.TypeRunWaiting, nil)
	q.wakePump()
}

// NotifyRunResumed implements RunQueue.notifyRunResumed.
func (q *Queue) NotifyRunResumed(ctx context.Context, runID string) {
	q.mu.Lock()
	delete(q.waiting, runID)
	q.mu.Unlock()
	q.emit(ctx, runID, runlog.TypeRunResumed, nil)
	q.wakePump()
}

// Len reports the current pending-queue length, for observability and
// "not empty" checks that include waiting runs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.waiting)
}

func (q *Queue) queueFilePath() string {
	return filepath.Join(q.opts.PersistDir, "queue.jsonl")
}

// persist rewrites the queue file with one JSON record per pending run,
// whenever the pending set changes.
func (q *Queue) persist() {
	if q.opts.PersistDir == "" {
		return
	}
	q.mu.Lock()
	snapshot := make([]record, len(q.pending))
	copy(snapshot, q.pending)
	q.mu.Unlock()

	if err := os.MkdirAll(q.opts.PersistDir, 0o755); err != nil {
		return
	}
	tmp := q.queueFilePath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}
	w := bufio.NewWriter(f)
	for _, r := range snapshot {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		w.Write(b)
		w.WriteByte('\n')
	}
	w.Flush()
	f.Close()
	os.Rename(tmp, q.queueFilePath())
}

// Restore implements RunQueue.restore: reads the persisted queue file and
// restores records with status pending; returns the count restored. The
// queue file is an admission-order cache, not an authority on run status —
// RunRepository remains authoritative; callers are expected to cross-check each
// restored run's current status against RunRepository and drop any that
// are no longer pending before resuming dispatch.
func (q *Queue) Restore() (int, error) {
	if q.opts.PersistDir == "" {
		return 0, nil
	}
	f, err := os.Open(q.queueFilePath())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var restored []record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		restored = append(restored, r)
	}

	q.mu.Lock()
	q.pending = restored
	q.mu.Unlock()
	return len(restored), nil
}
