// Package runlog implements the append-only per-run event stream:
// validation, single-writer-per-stream serialization, cursor pagination,
// and index snapshots.
package runlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is the discriminator of the Event tagged union.
type Type string

const (
	TypeRunStarted     Type = "run.started"
	TypeRunResumed     Type = "run.resumed"
	TypeRunSuspended   Type = "run.suspended"
	TypeRunCompleted   Type = "run.completed"
	TypeRunFailed      Type = "run.failed"
	TypeRunEnqueued    Type = "run.enqueued"
	TypeRunCancelled   Type = "run.cancelled"
	TypeRunWaiting     Type = "run.waiting"
	TypeStepStarted    Type = "step.started"
	TypeStepCompleted  Type = "step.completed"
	TypeStepRetried    Type = "step.retried"
	TypeLLMCalled      Type = "llm.called"
	TypeLLMToken       Type = "llm.token"
	TypeToolCalled     Type = "tool.called"
	TypeToolResult     Type = "tool.result"
	TypeMessageDecision Type = "message.decision"
)

// Redaction flags an event's payload as containing secrets, so downstream
// consumers (SSE, exports) can choose to mask it.
type Redaction struct {
	ContainsSecrets bool `json:"contains_secrets"`
}

// Event is the schema-versioned record.
type Event struct {
	V             int             `json:"v"`
	TS            time.Time       `json:"ts"`
	SessionKey    string          `json:"session_key"`
	RunID         string          `json:"run_id"`
	AgentID       string          `json:"agent_id"`
	StepID        string          `json:"step_id"`
	SpanID        string          `json:"span_id"`
	ParentSpanID  string          `json:"parent_span_id,omitempty"`
	Redaction     Redaction       `json:"redaction"`
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload"`
}

// Validate checks the minimal required-field invariants; a malformed event
// is rejected rather than appended).
func (e Event) Validate() error {
	if e.V != 1 {
		return fmt.Errorf("event: unsupported schema version %d", e.V)
	}
	if e.RunID == "" {
		return fmt.Errorf("event: missing run_id")
	}
	if e.SpanID == "" {
		return fmt.Errorf("event: missing span_id")
	}
	if e.Type == "" {
		return fmt.Errorf("event: missing type")
	}
	return nil
}

// StepIDFor renders "step_NNNN" for a zero-based or one-based step number.
func StepIDFor(step int) string {
	return fmt.Sprintf("step_%04d", step)
}

// Page is the result of ReadPage: a slice of events plus an opaque cursor
// for the next page (empty when exhausted).
type Page struct {
	Events     []Event
	NextCursor string
}
