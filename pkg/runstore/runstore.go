// Package runstore is the RunRepository: scoped persistence
// of run records and parent/child dependency rows, with the transactional
// completeDependencyAtomic operation SwarmCoordinator relies on.
package runstore

import (
	"context"
	"errors"
	"time"

	"github.com/agentcore/runtime/pkg/agent"
)

// Status is a state in the Run status state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is one of the three terminal states; no
// transition out of a terminal state is ever reversed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// RunError is the {code, message} a terminal failed run exposes to callers.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ModelConfig pins the provider/model a run's AgentRunner calls.
type ModelConfig struct {
	Provider string
	Model    string
}

// Record is the Run.
type Record struct {
	ID           string
	Scope        agent.Scope
	SessionKey   string
	Input        string
	AgentID      agent.Ident
	Status       Status
	ParentRunID  string
	Delegated    *agent.DelegatedPermissions
	Model        *ModelConfig
	Result       any
	Err          *RunError
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	CancelledAt  *time.Time
	SuspendedAt  *time.Time
}

// DependencyStatus is the Dependency status.
type DependencyStatus string

const (
	DependencyPending   DependencyStatus = "pending"
	DependencyCompleted DependencyStatus = "completed"
	DependencyFailed    DependencyStatus = "failed"
)

// Dependency links a parent run to a child run.
type Dependency struct {
	ParentRunID string
	ChildRunID  string
	ToolCallID  string
	Role        string
	Goal        string
	Status      DependencyStatus
	Result      any
	Err         string
}

// ErrNotFound is returned by Load for an absent run or one outside the
// caller's scope.
var ErrNotFound = errors.New("runstore: not found")

// ErrCycle is returned by CreateRun when the parent chain would form a
// cycle.
var ErrCycle = errors.New("runstore: parent/child cycle")

// CompleteDependencyResult is what CompleteDependencyAtomic returns.
type CompleteDependencyResult struct {
	Dependency   Dependency
	PendingCount int
}

// Store is the RunRepository contract.
type Store interface {
	CreateRun(ctx context.Context, r Record) error
	Load(ctx context.Context, scope agent.Scope, runID string) (Record, error)

	// LoadUnscoped loads a run without a scope check, for internal callers
	// (SwarmCoordinator, the queue's executor) that already know the run
	// id and are not enforcing caller-facing scope isolation.
	LoadUnscoped(ctx context.Context, runID string) (Record, error)

	// UpdateStatus transitions a run's status, stamping the relevant
	// timestamp. Implementations must reject writes into a terminal
	// status from another terminal status.
	UpdateStatus(ctx context.Context, runID string, status Status, result any, runErr *RunError) error

	CreateDependency(ctx context.Context, dep Dependency) error
	ListDependencies(ctx context.Context, parentRunID string) ([]Dependency, error)

	// CompleteDependencyAtomic marks the dependency for childRunID closed
	// and returns the remaining pending-sibling count, serializing
	// concurrent sibling completions for the same parent.
	CompleteDependencyAtomic(ctx context.Context, childRunID string, status DependencyStatus, result any, errText string) (CompleteDependencyResult, error)

	// SetRunResumedFromSuspension flips a suspended parent back to pending.
	SetRunResumedFromSuspension(ctx context.Context, runID string) error

	// ParentChain walks a run's ancestry, for the DAG-cycle check at
	// CreateRun time.
	ParentChain(ctx context.Context, runID string) ([]string, error)

	ListBySession(ctx context.Context, scope agent.Scope, sessionKey string, page, limit int) ([]Record, string, error)
}
