// Package fsjson is the filesystem-backed checkpoint.Store, matching the
// persisted-state layout: checkpoint.latest.json and
// checkpoint/step_NNNN.json under the run's directory.
package fsjson

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/model"
)

// Store persists checkpoints as JSON files under root.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) runDir(runID string) string {
	// session key is not part of this path; callers key runID uniquely
	// and the session-scoped layout is applied one level up by the
	// RunRepository that owns directory placement.
	return filepath.Join(s.root, "runs", runID)
}

func (s *Store) latestPath(runID string) string {
	return filepath.Join(s.runDir(runID), "checkpoint.latest.json")
}

func (s *Store) historicalPath(runID, stepID string) string {
	return filepath.Join(s.runDir(runID), "checkpoint", stepID+".json")
}

func (s *Store) lockFor(runID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[runID] = l
	}
	return l
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SaveLatest implements checkpoint.Store.
func (s *Store) SaveLatest(_ context.Context, cp checkpoint.Checkpoint) error {
	lock := s.lockFor(cp.RunID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(cp)
	if err != nil {
		return &checkpoint.StoreError{Op: "marshal", Err: err}
	}
	if err := writeAtomic(s.latestPath(cp.RunID), data); err != nil {
		return &checkpoint.StoreError{Op: "save-latest", Err: err}
	}
	return nil
}

// LoadLatest implements checkpoint.Store.
func (s *Store) LoadLatest(_ context.Context, runID string) (checkpoint.Checkpoint, error) {
	lock := s.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.latestPath(runID))
	if os.IsNotExist(err) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StoreError{Op: "load-latest", Err: err}
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint.Checkpoint{}, checkpoint.ErrCorrupt
	}
	return cp, nil
}

// SaveHistorical implements checkpoint.Store.
func (s *Store) SaveHistorical(_ context.Context, cp checkpoint.Checkpoint, stepID string) error {
	if !checkpoint.ValidStepID(stepID) {
		return fmt.Errorf("checkpoint: invalid step id %q", stepID)
	}
	lock := s.lockFor(cp.RunID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(cp)
	if err != nil {
		return &checkpoint.StoreError{Op: "marshal", Err: err}
	}
	if err := writeAtomic(s.historicalPath(cp.RunID, stepID), data); err != nil {
		return &checkpoint.StoreError{Op: "save-historical", Err: err}
	}
	return nil
}

// LoadHistorical implements checkpoint.Store.
func (s *Store) LoadHistorical(_ context.Context, runID, stepID string) (checkpoint.Checkpoint, error) {
	data, err := os.ReadFile(s.historicalPath(runID, stepID))
	if os.IsNotExist(err) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StoreError{Op: "load-historical", Err: err}
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint.Checkpoint{}, checkpoint.ErrCorrupt
	}
	return cp, nil
}

// ListHistorical implements checkpoint.Store.
func (s *Store) ListHistorical(_ context.Context, runID string) ([]string, error) {
	dir := filepath.Join(s.runDir(runID), "checkpoint")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &checkpoint.StoreError{Op: "list-historical", Err: err}
	}
	var ids []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if checkpoint.ValidStepID(name) {
			ids = append(ids, name)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteLatest implements checkpoint.Store.
func (s *Store) DeleteLatest(_ context.Context, runID string) error {
	lock := s.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()
	err := os.Remove(s.latestPath(runID))
	if err != nil && !os.IsNotExist(err) {
		return &checkpoint.StoreError{Op: "delete-latest", Err: err}
	}
	return nil
}

// AppendToolResults implements checkpoint.Store. It fails if no checkpoint
// exists yet; after return the trailing messages are exactly messages, in
// order.
func (s *Store) AppendToolResults(_ context.Context, runID, agentID string, messages []model.Message) error {
	lock := s.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.latestPath(runID))
	if os.IsNotExist(err) {
		return checkpoint.ErrNotFound
	}
	if err != nil {
		return &checkpoint.StoreError{Op: "load-latest", Err: err}
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint.ErrCorrupt
	}
	_ = agentID
	cp.Messages = append(cp.Messages, messages...)

	out, err := json.Marshal(cp)
	if err != nil {
		return &checkpoint.StoreError{Op: "marshal", Err: err}
	}
	if err := writeAtomic(s.latestPath(runID), out); err != nil {
		return &checkpoint.StoreError{Op: "append-tool-results", Err: err}
	}
	return nil
}
