package sse

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/runlog"
)

type bufWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	fail    bool
	flushed int
}

func (w *bufWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return 0, fmt.Errorf("write failed")
	}
	return w.buf.Write(p)
}

func (w *bufWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushed++
}

func (w *bufWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestAddClientSendsConnectedFrame(t *testing.T) {
	b := New(Options{})
	defer b.Shutdown(nil)

	w := &bufWriter{}
	require.NoError(t, b.AddClient(&Client{ID: "c1", RunID: "run_a", Writer: w}))
	assert.Contains(t, w.String(), "event: connected")
}

func TestAddClientEnforcesMaxPerRun(t *testing.T) {
	b := New(Options{MaxClientsPerRun: 1})
	defer b.Shutdown(nil)

	require.NoError(t, b.AddClient(&Client{ID: "c1", RunID: "run_a", Writer: &bufWriter{}}))
	err := b.AddClient(&Client{ID: "c2", RunID: "run_a", Writer: &bufWriter{}})
	assert.Error(t, err)
}

func TestBroadcastToRunDeliversOnlyToSubscribersOfThatRun(t *testing.T) {
	b := New(Options{})
	defer b.Shutdown(nil)

	wa := &bufWriter{}
	wb := &bufWriter{}
	require.NoError(t, b.AddClient(&Client{ID: "c1", RunID: "run_a", Writer: wa}))
	require.NoError(t, b.AddClient(&Client{ID: "c2", RunID: "run_b", Writer: wb}))

	b.BroadcastToRun("run_a", runlog.Event{V: 1, RunID: "run_a", SpanID: "span_1", Type: runlog.TypeStepStarted})

	assert.Contains(t, wa.String(), "run.event")
	assert.NotContains(t, wb.String(), "run.event")
}

func TestBroadcastToRunEvictsFailingClient(t *testing.T) {
	b := New(Options{})
	defer b.Shutdown(nil)

	w := &bufWriter{fail: true}
	require.NoError(t, b.AddClient(&Client{ID: "c1", RunID: "run_a", Writer: w}))

	b.BroadcastToRun("run_a", runlog.Event{V: 1, RunID: "run_a", SpanID: "span_1", Type: runlog.TypeStepStarted})

	b.mu.RLock()
	_, stillThere := b.clients["c1"]
	b.mu.RUnlock()
	assert.False(t, stillThere, "a client whose write fails must be evicted")
}

func TestRemoveClientStopsDelivery(t *testing.T) {
	b := New(Options{})
	defer b.Shutdown(nil)

	w := &bufWriter{}
	require.NoError(t, b.AddClient(&Client{ID: "c1", RunID: "run_a", Writer: w}))
	b.RemoveClient("c1")

	b.BroadcastToRun("run_a", runlog.Event{V: 1, RunID: "run_a", SpanID: "span_1", Type: runlog.TypeStepStarted})
	assert.NotContains(t, w.String(), "run.event")
}

func TestDoneSendsDoneFrame(t *testing.T) {
	b := New(Options{})
	defer b.Shutdown(nil)

	w := &bufWriter{}
	require.NoError(t, b.AddClient(&Client{ID: "c1", RunID: "run_a", Writer: w}))
	b.Done("run_a")
	assert.Contains(t, w.String(), "event: done")
}

func TestShutdownDropsAllClients(t *testing.T) {
	b := New(Options{})
	w := &bufWriter{}
	require.NoError(t, b.AddClient(&Client{ID: "c1", RunID: "run_a", Writer: w}))

	b.Shutdown(nil)

	b.mu.RLock()
	n := len(b.clients)
	b.mu.RUnlock()
	assert.Equal(t, 0, n)
}
