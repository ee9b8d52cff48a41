package runlog

import (
	"context"
	"errors"
)

// ErrStreamNotFound names the never-written-stream condition. The stores in
// this module do not return it: reading a stream that was never written to
// yields an empty result.
var ErrStreamNotFound = errors.New("runlog: stream not found")

// IOError wraps an underlying storage failure from Append/AppendBatch.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "runlog: " + e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// StreamID names a single-writer stream: one per (session_key, run_id).
type StreamID struct {
	SessionKey string
	RunID      string
}

// Store is the EventLog contract.
type Store interface {
	// Append validates and appends a single event, serialized FIFO per
	// stream. Appenders to different streams never block each other.
	Append(ctx context.Context, stream StreamID, event Event) error

	// AppendBatch validates all events before the first write, then makes
	// them visible to readers atomically as a unit.
	AppendBatch(ctx context.Context, stream StreamID, events []Event) error

	// ReadStream returns events in insertion order. Malformed trailing
	// lines are skipped (resilience to partial corruption), not surfaced
	// as an error.
	ReadStream(ctx context.Context, stream StreamID) ([]Event, error)

	// ReadPage returns a cursor-paginated slice. limit is clamped to the
	// store's configured maximum. When includeTokens is false, llm.token
	// events are filtered out of the returned page (not from the
	// underlying stream).
	ReadPage(ctx context.Context, stream StreamID, cursor string, limit int, includeTokens bool) (Page, error)

	// BuildIndex writes a companion index file with one entry every everyN
	// events, to accelerate pagination on long logs.
	BuildIndex(ctx context.Context, stream StreamID, everyN int) error

	Count(ctx context.Context, stream StreamID) (int, error)
	Exists(ctx context.Context, stream StreamID) (bool, error)
}

// MaxPageSize is the configured maximum page size ReadPage clamps to.
const MaxPageSize = 500

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
