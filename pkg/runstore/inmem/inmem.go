// Package inmem is an in-process runstore.Store for tests and local dev.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/runstore"
)

// Store is an in-memory runstore.Store. A single mutex guards all state;
// CompleteDependencyAtomic's atomicity comes from holding this
// lock across the read-decrement-count sequence.
type childLoc struct {
	parentRunID string
	index       int
}

type Store struct {
	mu      sync.Mutex
	runs    map[string]runstore.Record
	deps    map[string][]runstore.Dependency // parentRunID -> deps
	byChild map[string]childLoc              // childRunID -> location, resolved fresh on each use (slices may reallocate on append)
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		runs:    make(map[string]runstore.Record),
		deps:    make(map[string][]runstore.Dependency),
		byChild: make(map[string]childLoc),
	}
}

// CreateRun implements runstore.Store.
func (s *Store) CreateRun(_ context.Context, r runstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ParentRunID != "" {
		if cycles(s.runs, r.ParentRunID, r.ID) {
			return runstore.ErrCycle
		}
	}
	s.runs[r.ID] = r
	return nil
}

func cycles(runs map[string]runstore.Record, parentID, newChildID string) bool {
	cur := parentID
	seen := map[string]bool{}
	for cur != "" {
		if cur == newChildID {
			return true
		}
		if seen[cur] {
			break
		}
		seen[cur] = true
		r, ok := runs[cur]
		if !ok {
			break
		}
		cur = r.ParentRunID
	}
	return false
}

// Load implements runstore.Store.
func (s *Store) Load(_ context.Context, scope agent.Scope, runID string) (runstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok || !scope.Contains(r.Scope) {
		return runstore.Record{}, runstore.ErrNotFound
	}
	return r, nil
}

// LoadUnscoped implements runstore.Store.
func (s *Store) LoadUnscoped(_ context.Context, runID string) (runstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return runstore.Record{}, runstore.ErrNotFound
	}
	return r, nil
}

// UpdateStatus implements runstore.Store.
func (s *Store) UpdateStatus(_ context.Context, runID string, status runstore.Status, result any, runErr *runstore.RunError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return runstore.ErrNotFound
	}
	if r.Status.Terminal() {
		return fmt.Errorf("runstore: run %s is already terminal (%s)", runID, r.Status)
	}
	now := time.Now()
	r.Status = status
	if result != nil {
		r.Result = result
	}
	r.Err = runErr
	switch status {
	case runstore.StatusRunning:
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
	case runstore.StatusSuspended:
		r.SuspendedAt = &now
	case runstore.StatusCancelled:
		r.CancelledAt = &now
		r.EndedAt = &now
	case runstore.StatusCompleted, runstore.StatusFailed:
		r.EndedAt = &now
	}
	s.runs[runID] = r
	return nil
}

// CreateDependency implements runstore.Store.
func (s *Store) CreateDependency(_ context.Context, dep runstore.Dependency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deps[dep.ParentRunID] {
		if d.ChildRunID == dep.ChildRunID {
			return fmt.Errorf("runstore: dependency (%s,%s) already exists", dep.ParentRunID, dep.ChildRunID)
		}
	}
	dep.Status = runstore.DependencyPending
	s.deps[dep.ParentRunID] = append(s.deps[dep.ParentRunID], dep)
	idx := len(s.deps[dep.ParentRunID]) - 1
	s.byChild[dep.ChildRunID] = childLoc{parentRunID: dep.ParentRunID, index: idx}
	return nil
}

// ListDependencies implements runstore.Store.
func (s *Store) ListDependencies(_ context.Context, parentRunID string) ([]runstore.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]runstore.Dependency, len(s.deps[parentRunID]))
	copy(out, s.deps[parentRunID])
	return out, nil
}

// CompleteDependencyAtomic implements runstore.Store.
func (s *Store) CompleteDependencyAtomic(_ context.Context, childRunID string, status runstore.DependencyStatus, result any, errText string) (runstore.CompleteDependencyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.byChild[childRunID]
	if !ok {
		return runstore.CompleteDependencyResult{}, runstore.ErrNotFound
	}
	dep := &s.deps[loc.parentRunID][loc.index]
	dep.Status = status
	dep.Result = result
	dep.Err = errText

	pending := 0
	for _, d := range s.deps[dep.ParentRunID] {
		if d.Status == runstore.DependencyPending {
			pending++
		}
	}
	return runstore.CompleteDependencyResult{Dependency: *dep, PendingCount: pending}, nil
}

// SetRunResumedFromSuspension implements runstore.Store.
func (s *Store) SetRunResumedFromSuspension(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return runstore.ErrNotFound
	}
	r.Status = runstore.StatusPending
	r.SuspendedAt = nil
	s.runs[runID] = r
	return nil
}

// ParentChain implements runstore.Store.
func (s *Store) ParentChain(_ context.Context, runID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var chain []string
	cur := runID
	seen := map[string]bool{}
	for {
		r, ok := s.runs[cur]
		if !ok || r.ParentRunID == "" || seen[cur] {
			break
		}
		seen[cur] = true
		chain = append(chain, r.ParentRunID)
		cur = r.ParentRunID
	}
	return chain, nil
}

// ListBySession implements runstore.Store with simple offset pagination.
func (s *Store) ListBySession(_ context.Context, scope agent.Scope, sessionKey string, page, limit int) ([]runstore.Record, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	var matches []runstore.Record
	for _, r := range s.runs {
		if r.SessionKey == sessionKey && scope.Contains(r.Scope) {
			matches = append(matches, r)
		}
	}
	start := (page - 1) * limit
	if start > len(matches) {
		start = len(matches)
	}
	end := start + limit
	if end > len(matches) {
		end = len(matches)
	}
	next := ""
	if end < len(matches) {
		next = fmt.Sprintf("%d", page+1)
	}
	return matches[start:end], next, nil
}
