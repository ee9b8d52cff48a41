// Package memory defines the MemoryService contract the core consumes:
// search, get, write, scoped to an (org, user, project) triple. Storage
// internals (vector index, FTS) are an external collaborator and out of
// scope; this package only fixes the seam.
package memory

import (
	"context"
	"errors"

	"github.com/agentcore/runtime/pkg/agent"
)

// ErrNotFound is returned by Get for an absent id or one outside scope.
var ErrNotFound = errors.New("memory: not found")

// Hit is one recalled memory entry.
type Hit struct {
	ID      string
	Content string
	Score   float64
}

// Entry is a persisted memory record.
type Entry struct {
	ID      string
	Scope   agent.Scope
	Content string
	Tags    []string
}

// Service is the three-operation contract ContextBuilder and hook
// subscribers consume.
type Service interface {
	Search(ctx context.Context, scope agent.Scope, query string, limit int) ([]Hit, error)
	Get(ctx context.Context, scope agent.Scope, id string) (Entry, error)
	Write(ctx context.Context, entry Entry) error
}
