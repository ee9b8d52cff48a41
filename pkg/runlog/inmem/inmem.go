// Package inmem is an in-process runlog.Store used in tests and local dev:
// a per-stream mutex and a 1-based sequence-number cursor.
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/agentcore/runtime/pkg/runlog"
)

type stream struct {
	mu     sync.Mutex
	events []runlog.Event
}

// Store is an in-memory runlog.Store. Safe for concurrent use; each stream
// is guarded by its own mutex so appenders to different streams never
// block each other.
type Store struct {
	mu      sync.RWMutex
	streams map[runlog.StreamID]*stream
}

// New constructs an empty Store.
func New() *Store {
	return &Store{streams: make(map[runlog.StreamID]*stream)}
}

func (s *Store) getOrCreate(id runlog.StreamID) *stream {
	s.mu.RLock()
	st, ok := s.streams[id]
	s.mu.RUnlock()
	if ok {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streams[id]; ok {
		return st
	}
	st = &stream{}
	s.streams[id] = st
	return st
}

// Append implements runlog.Store.
func (s *Store) Append(_ context.Context, id runlog.StreamID, event runlog.Event) error {
	return s.AppendBatch(context.Background(), id, []runlog.Event{event})
}

// AppendBatch implements runlog.Store. All events are validated before the
// first write; the stream mutex makes the append atomic with respect to
// readers.
func (s *Store) AppendBatch(_ context.Context, id runlog.StreamID, events []runlog.Event) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	st := s.getOrCreate(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.events = append(st.events, events...)
	return nil
}

// ReadStream implements runlog.Store.
func (s *Store) ReadStream(_ context.Context, id runlog.StreamID) ([]runlog.Event, error) {
	st := s.getOrCreate(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]runlog.Event, len(st.events))
	copy(out, st.events)
	return out, nil
}

// ReadPage implements runlog.Store. The cursor is the decimal 1-based
// sequence number of the last event already delivered; "" means start.
func (s *Store) ReadPage(_ context.Context, id runlog.StreamID, cursor string, limit int, includeTokens bool) (runlog.Page, error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return runlog.Page{}, fmt.Errorf("runlog: invalid cursor %q", cursor)
		}
		start = n
	}

	st := s.getOrCreate(id)
	st.mu.Lock()
	all := make([]runlog.Event, len(st.events))
	copy(all, st.events)
	st.mu.Unlock()

	if start > len(all) {
		start = len(all)
	}

	lim := clampLimit(limit)
	var page []runlog.Event
	idx := start
	for idx < len(all) && len(page) < lim {
		e := all[idx]
		idx++
		if !includeTokens && e.Type == runlog.TypeLLMToken {
			continue
		}
		page = append(page, e)
	}

	next := ""
	if idx < len(all) {
		next = strconv.Itoa(idx)
	}
	return runlog.Page{Events: page, NextCursor: next}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > runlog.MaxPageSize {
		return runlog.MaxPageSize
	}
	return limit
}

// BuildIndex is a no-op for the in-memory store: there is no backing file
// to accelerate access to.
func (s *Store) BuildIndex(context.Context, runlog.StreamID, int) error { return nil }

// Count implements runlog.Store.
func (s *Store) Count(_ context.Context, id runlog.StreamID) (int, error) {
	st := s.getOrCreate(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.events), nil
}

// Exists implements runlog.Store.
func (s *Store) Exists(_ context.Context, id runlog.StreamID) (bool, error) {
	s.mu.RLock()
	_, ok := s.streams[id]
	s.mu.RUnlock()
	return ok, nil
}
