// Package sse is the SSE broadcast layer: per-run subscriber sets,
// monotonic span ids, heartbeats, and evict-on-write-failure delivery.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agentcore/runtime/pkg/runlog"
)

// Writer is the minimal write-stream seam a client connection exposes.
// http.ResponseWriter plus a Flush method satisfies it.
type Writer interface {
	io.Writer
	Flush()
}

// Client is one subscriber.
type Client struct {
	ID          string
	RunID       string
	Writer      Writer
	LastEventID string
}

// Broadcaster fans out runlog.Event values to per-run subscriber sets.
type Broadcaster struct {
	mu               sync.RWMutex
	clients          map[string]*Client   // clientID -> client
	byRun            map[string][]string  // runID -> clientIDs, insertion order
	maxClientsPerRun int
	heartbeatEvery   time.Duration

	done chan struct{}
	once sync.Once
}

// Options configures a Broadcaster.
type Options struct {
	MaxClientsPerRun    int
	HeartbeatIntervalMS int // default 30000
}

// New constructs a Broadcaster and starts its heartbeat loop.
func New(opts Options) *Broadcaster {
	interval := time.Duration(opts.HeartbeatIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	max := opts.MaxClientsPerRun
	if max <= 0 {
		max = 100
	}
	b := &Broadcaster{
		clients:          make(map[string]*Client),
		byRun:            make(map[string][]string),
		maxClientsPerRun: max,
		heartbeatEvery:   interval,
		done:             make(chan struct{}),
	}
	go b.heartbeatLoop()
	return b
}

// AddClient implements SSEBroadcaster.addClient: enforces maxClientsPerRun
// and sends an initial "connected" frame.
func (b *Broadcaster) AddClient(c *Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.byRun[c.RunID]) >= b.maxClientsPerRun {
		return fmt.Errorf("sse: run %s already has the maximum %d subscribers", c.RunID, b.maxClientsPerRun)
	}
	b.clients[c.ID] = c
	b.byRun[c.RunID] = append(b.byRun[c.RunID], c.ID)
	writeFrame(c.Writer, "connected", fmt.Sprintf(`{"run_id":%q}`, c.RunID))
	return nil
}

// RemoveClient implements SSEBroadcaster.removeClient.
func (b *Broadcaster) RemoveClient(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(clientID)
}

func (b *Broadcaster) removeLocked(clientID string) {
	c, ok := b.clients[clientID]
	if !ok {
		return
	}
	delete(b.clients, clientID)
	ids := b.byRun[c.RunID]
	for i, id := range ids {
		if id == clientID {
			b.byRun[c.RunID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(b.byRun[c.RunID]) == 0 {
		delete(b.byRun, c.RunID)
	}
}

// BroadcastToRun implements SSEBroadcaster.broadcastToRun: serializes the
// event and writes it to every subscriber in insertion order, evicting any
// client whose write fails.
func (b *Broadcaster) BroadcastToRun(runID string, event runlog.Event) {
	b.mu.RLock()
	ids := make([]string, len(b.byRun[runID]))
	copy(ids, b.byRun[runID])
	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := b.clients[id]; ok {
			clients = append(clients, c)
		}
	}
	b.mu.RUnlock()

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	var failed []string
	for _, c := range clients {
		if err := writeEventFrame(c.Writer, event.SpanID, data); err != nil {
			failed = append(failed, c.ID)
		}
	}

	if len(failed) > 0 {
		b.mu.Lock()
		for _, id := range failed {
			b.removeLocked(id)
		}
		b.mu.Unlock()
	}
}

func writeEventFrame(w Writer, spanID string, data []byte) error {
	if _, err := fmt.Fprintf(w, "id: %s\nevent: run.event\ndata: %s\n\n", spanID, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeFrame(w Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	w.Flush()
}

// Done signals a terminal run so the HTTP handler can send "event: done"
// and close the connection.
func (b *Broadcaster) Done(runID string) {
	b.mu.RLock()
	ids := make([]string, len(b.byRun[runID]))
	copy(ids, b.byRun[runID])
	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := b.clients[id]; ok {
			clients = append(clients, c)
		}
	}
	b.mu.RUnlock()
	for _, c := range clients {
		writeFrame(c.Writer, "done", `{}`)
	}
}

func (b *Broadcaster) heartbeatLoop() {
	ticker := time.NewTicker(b.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case t := <-ticker.C:
			b.sendHeartbeats(t)
		}
	}
}

func (b *Broadcaster) sendHeartbeats(t time.Time) {
	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	var failed []string
	payload := fmt.Sprintf(`{"ts":%d}`, t.Unix())
	for _, c := range clients {
		if _, err := fmt.Fprintf(c.Writer, "event: ping\ndata: %s\n\n", payload); err != nil {
			failed = append(failed, c.ID)
			continue
		}
		c.Writer.Flush()
	}
	if len(failed) > 0 {
		b.mu.Lock()
		for _, id := range failed {
			b.removeLocked(id)
		}
		b.mu.Unlock()
	}
}

// Shutdown implements SSEBroadcaster.shutdown: terminates the heartbeat
// loop and drops all clients.
func (b *Broadcaster) Shutdown(_ context.Context) {
	b.once.Do(func() { close(b.done) })
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients = make(map[string]*Client)
	b.byRun = make(map[string][]string)
}
