// Package inmem is a keyword-matching memory.Service used in tests and
// local dev; it exists to exercise the ContextBuilder memory-summary layer
// and to demonstrate cross-scope isolation without
// depending on the real vector+FTS backend.
package inmem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/memory"
)

// Store is an in-memory memory.Service, scoped by agent.Scope.
type Store struct {
	mu      sync.RWMutex
	entries map[string]memory.Entry
	seq     int
}

// New constructs an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]memory.Entry)}
}

// Write implements memory.Service.
func (s *Store) Write(_ context.Context, entry memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		s.seq++
		entry.ID = fmt.Sprintf("mem_%04d", s.seq)
	}
	s.entries[entry.ID] = entry
	return nil
}

// Get implements memory.Service. Cross-scope access is invisible: a lookup
// from a narrower or different scope than the entry's own returns
// ErrNotFound rather than the entry.
func (s *Store) Get(_ context.Context, scope agent.Scope, id string) (memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || !scope.Contains(e.Scope) {
		return memory.Entry{}, memory.ErrNotFound
	}
	return e, nil
}

// Search implements memory.Service with a simple case-insensitive
// substring match, scoped strictly to entries visible under scope.
func (s *Store) Search(_ context.Context, scope agent.Scope, query string, limit int) ([]memory.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(query)
	var hits []memory.Hit
	for _, e := range s.entries {
		if !scope.Contains(e.Scope) {
			continue
		}
		content := strings.ToLower(e.Content)
		if q != "" && !strings.Contains(content, q) {
			continue
		}
		hits = append(hits, memory.Hit{ID: e.ID, Content: e.Content, Score: 1})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}
