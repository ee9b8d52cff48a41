// Package checkpoint persists and reloads per-run conversation state: the
// latest checkpoint, optional per-step historical snapshots, and atomic
// appends of tool-result messages to a suspended run.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/agentcore/runtime/pkg/model"
)

// Checkpoint is the per-run state: step number, full message
// history, and an opaque working-state map.
type Checkpoint struct {
	RunID        string
	AgentID      string
	StepNumber   int
	Messages     []model.Message
	WorkingState map[string]any
}

// ErrNotFound is returned by LoadLatest when no checkpoint has been saved
// yet, and by LoadHistorical for an unknown step id.
var ErrNotFound = errors.New("checkpoint: not found")

// ErrCorrupt is returned when a checkpoint file exists but fails to parse.
var ErrCorrupt = errors.New("checkpoint: corrupt")

// StoreError wraps an underlying storage failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "checkpoint: " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

var stepIDPattern = regexp.MustCompile(`^step_\d{4,}$`)

// ValidStepID reports whether id matches the step_NNNN format.
func ValidStepID(id string) bool { return stepIDPattern.MatchString(id) }

// Store is the CheckpointStore contract.
type Store interface {
	// SaveLatest atomically overwrites the run's latest checkpoint
	// (write-to-temp-then-rename). The implementations in this module do
	// not validate cp before writing it.
	SaveLatest(ctx context.Context, cp Checkpoint) error

	// LoadLatest returns ErrNotFound if absent, ErrCorrupt if present but
	// unparseable.
	LoadLatest(ctx context.Context, runID string) (Checkpoint, error)

	// SaveHistorical archives cp under stepID; rejects a malformed stepID.
	SaveHistorical(ctx context.Context, cp Checkpoint, stepID string) error

	LoadHistorical(ctx context.Context, runID, stepID string) (Checkpoint, error)
	ListHistorical(ctx context.Context, runID string) ([]string, error)
	DeleteLatest(ctx context.Context, runID string) error

	// AppendToolResults loads latest, appends messages to its message
	// list, and rewrites latest. Fails if no checkpoint exists yet. After
	// return, the checkpoint's trailing messages are exactly messages, in
	// order.
	AppendToolResults(ctx context.Context, runID, agentID string, messages []model.Message) error
}

func validateCheckpoint(cp Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint: missing run_id")
	}
	if cp.StepNumber < 0 {
		return fmt.Errorf("checkpoint: negative step number")
	}
	return nil
}
