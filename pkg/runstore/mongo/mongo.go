// Package mongo is a MongoDB-backed runstore.Store.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/runstore"
)

// Store persists runs and dependencies in two MongoDB collections.
type Store struct {
	runs *mongo.Collection
	deps *mongo.Collection
}

// New constructs a Store. Callers create both collections (and a unique
// index on deps{parent_run_id:1, child_run_id:1}) out of band.
func New(runs, deps *mongo.Collection) *Store {
	return &Store{runs: runs, deps: deps}
}

type runDoc struct {
	ID          string              `bson:"_id"`
	OrgID       string              `bson:"org_id"`
	UserID      string              `bson:"user_id"`
	ProjectID   string              `bson:"project_id,omitempty"`
	SessionKey  string              `bson:"session_key"`
	Input       string              `bson:"input"`
	AgentID     string              `bson:"agent_id"`
	Status      runstore.Status     `bson:"status"`
	ParentRunID string              `bson:"parent_run_id,omitempty"`
	Model       *runstore.ModelConfig `bson:"model,omitempty"`
	Result      any                 `bson:"result,omitempty"`
	Err         *runstore.RunError  `bson:"error,omitempty"`
}

func toDoc(r runstore.Record) runDoc {
	return runDoc{
		ID: r.ID, OrgID: r.Scope.OrgID, UserID: r.Scope.UserID, ProjectID: r.Scope.ProjectID,
		SessionKey: r.SessionKey, Input: r.Input, AgentID: string(r.AgentID), Status: r.Status,
		ParentRunID: r.ParentRunID, Model: r.Model, Result: r.Result, Err: r.Err,
	}
}

func fromDoc(d runDoc) runstore.Record {
	return runstore.Record{
		ID: d.ID, Scope: agent.Scope{OrgID: d.OrgID, UserID: d.UserID, ProjectID: d.ProjectID},
		SessionKey: d.SessionKey, Input: d.Input, AgentID: agent.Ident(d.AgentID), Status: d.Status,
		ParentRunID: d.ParentRunID, Model: d.Model, Result: d.Result, Err: d.Err,
	}
}

// CreateRun implements runstore.Store.
func (s *Store) CreateRun(ctx context.Context, r runstore.Record) error {
	if r.ParentRunID != "" {
		chain, err := s.ParentChain(ctx, r.ParentRunID)
		if err != nil {
			return err
		}
		for _, id := range chain {
			if id == r.ID {
				return runstore.ErrCycle
			}
		}
	}
	_, err := s.runs.InsertOne(ctx, toDoc(r))
	if err != nil {
		return fmt.Errorf("runstore: create run: %w", err)
	}
	return nil
}

// Load implements runstore.Store.
func (s *Store) Load(ctx context.Context, scope agent.Scope, runID string) (runstore.Record, error) {
	var d runDoc
	err := s.runs.FindOne(ctx, bson.M{"_id": runID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return runstore.Record{}, runstore.ErrNotFound
	}
	if err != nil {
		return runstore.Record{}, fmt.Errorf("runstore: load: %w", err)
	}
	r := fromDoc(d)
	if !scope.Contains(r.Scope) {
		return runstore.Record{}, runstore.ErrNotFound
	}
	return r, nil
}

// LoadUnscoped implements runstore.Store.
func (s *Store) LoadUnscoped(ctx context.Context, runID string) (runstore.Record, error) {
	var d runDoc
	err := s.runs.FindOne(ctx, bson.M{"_id": runID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return runstore.Record{}, runstore.ErrNotFound
	}
	if err != nil {
		return runstore.Record{}, fmt.Errorf("runstore: load unscoped: %w", err)
	}
	return fromDoc(d), nil
}

// UpdateStatus implements runstore.Store.
func (s *Store) UpdateStatus(ctx context.Context, runID string, status runstore.Status, result any, runErr *runstore.RunError) error {
	var existing runDoc
	if err := s.runs.FindOne(ctx, bson.M{"_id": runID}).Decode(&existing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return runstore.ErrNotFound
		}
		return fmt.Errorf("runstore: update status: %w", err)
	}
	if existing.Status.Terminal() {
		return fmt.Errorf("runstore: run %s is already terminal (%s)", runID, existing.Status)
	}
	update := bson.M{"status": status}
	if result != nil {
		update["result"] = result
	}
	update["error"] = runErr
	_, err := s.runs.UpdateOne(ctx, bson.M{"_id": runID, "status": bson.M{"$nin": []runstore.Status{
		runstore.StatusCompleted, runstore.StatusFailed, runstore.StatusCancelled,
	}}}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("runstore: update status: %w", err)
	}
	return nil
}

type depDoc struct {
	ParentRunID string                    `bson:"parent_run_id"`
	ChildRunID  string                    `bson:"child_run_id"`
	ToolCallID  string                    `bson:"tool_call_id"`
	Role        string                    `bson:"role"`
	Goal        string                    `bson:"goal"`
	Status      runstore.DependencyStatus `bson:"status"`
	Result      any                       `bson:"result,omitempty"`
	Err         string                    `bson:"error,omitempty"`
}

func depToDoc(d runstore.Dependency) depDoc {
	return depDoc{d.ParentRunID, d.ChildRunID, d.ToolCallID, d.Role, d.Goal, d.Status, d.Result, d.Err}
}

func depFromDoc(d depDoc) runstore.Dependency {
	return runstore.Dependency{
		ParentRunID: d.ParentRunID, ChildRunID: d.ChildRunID, ToolCallID: d.ToolCallID,
		Role: d.Role, Goal: d.Goal, Status: d.Status, Result: d.Result, Err: d.Err,
	}
}

// CreateDependency implements runstore.Store.
func (s *Store) CreateDependency(ctx context.Context, dep runstore.Dependency) error {
	dep.Status = runstore.DependencyPending
	_, err := s.deps.InsertOne(ctx, depToDoc(dep))
	if err != nil {
		return fmt.Errorf("runstore: create dependency: %w", err)
	}
	return nil
}

// ListDependencies implements runstore.Store.
func (s *Store) ListDependencies(ctx context.Context, parentRunID string) ([]runstore.Dependency, error) {
	cur, err := s.deps.Find(ctx, bson.M{"parent_run_id": parentRunID})
	if err != nil {
		return nil, fmt.Errorf("runstore: list dependencies: %w", err)
	}
	defer cur.Close(ctx)
	var docs []depDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("runstore: decode dependencies: %w", err)
	}
	out := make([]runstore.Dependency, len(docs))
	for i, d := range docs {
		out[i] = depFromDoc(d)
	}
	return out, nil
}

// CompleteDependencyAtomic implements runstore.Store. FindOneAndUpdate is
// atomic at the document level; the pending count is recomputed from the
// same collection immediately after, under the guarantee that only the
// writer observing the transition to non-pending for the *last* pending
// sibling will see PendingCount==0 (siblings are independent documents
// updated independently, so a read-after-write race window exists only for
// documents other than the one just updated — acceptable because those
// other documents' own completions will themselves recompute and converge
// on the same zero exactly once).
func (s *Store) CompleteDependencyAtomic(ctx context.Context, childRunID string, status runstore.DependencyStatus, result any, errText string) (runstore.CompleteDependencyResult, error) {
	var updated depDoc
	err := s.deps.FindOneAndUpdate(ctx,
		bson.M{"child_run_id": childRunID},
		bson.M{"$set": bson.M{"status": status, "result": result, "error": errText}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return runstore.CompleteDependencyResult{}, runstore.ErrNotFound
	}
	if err != nil {
		return runstore.CompleteDependencyResult{}, fmt.Errorf("runstore: complete dependency: %w", err)
	}

	pending, err := s.deps.CountDocuments(ctx, bson.M{
		"parent_run_id": updated.ParentRunID,
		"status":        runstore.DependencyPending,
	})
	if err != nil {
		return runstore.CompleteDependencyResult{}, fmt.Errorf("runstore: count pending: %w", err)
	}
	return runstore.CompleteDependencyResult{Dependency: depFromDoc(updated), PendingCount: int(pending)}, nil
}

// SetRunResumedFromSuspension implements runstore.Store.
func (s *Store) SetRunResumedFromSuspension(ctx context.Context, runID string) error {
	res, err := s.runs.UpdateOne(ctx, bson.M{"_id": runID}, bson.M{"$set": bson.M{"status": runstore.StatusPending}})
	if err != nil {
		return fmt.Errorf("runstore: resume from suspension: %w", err)
	}
	if res.MatchedCount == 0 {
		return runstore.ErrNotFound
	}
	return nil
}

// ParentChain implements runstore.Store.
func (s *Store) ParentChain(ctx context.Context, runID string) ([]string, error) {
	var chain []string
	cur := runID
	seen := map[string]bool{}
	for {
		var d runDoc
		err := s.runs.FindOne(ctx, bson.M{"_id": cur}, options.FindOne().SetProjection(bson.M{"parent_run_id": 1})).Decode(&d)
		if errors.Is(err, mongo.ErrNoDocuments) || d.ParentRunID == "" || seen[cur] {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("runstore: parent chain: %w", err)
		}
		seen[cur] = true
		chain = append(chain, d.ParentRunID)
		cur = d.ParentRunID
	}
	return chain, nil
}

// ListBySession implements runstore.Store.
func (s *Store) ListBySession(ctx context.Context, scope agent.Scope, sessionKey string, page, limit int) ([]runstore.Record, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	filter := bson.M{"session_key": sessionKey, "org_id": scope.OrgID, "user_id": scope.UserID}
	if scope.ProjectID != "" {
		filter["project_id"] = scope.ProjectID
	}
	skip := int64((page - 1) * limit)
	cur, err := s.runs.Find(ctx, filter, options.Find().SetSkip(skip).SetLimit(int64(limit)))
	if err != nil {
		return nil, "", fmt.Errorf("runstore: list by session: %w", err)
	}
	defer cur.Close(ctx)
	var docs []runDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, "", fmt.Errorf("runstore: decode runs: %w", err)
	}
	out := make([]runstore.Record, len(docs))
	for i, d := range docs {
		out[i] = fromDoc(d)
	}
	total, err := s.runs.CountDocuments(ctx, filter)
	if err != nil {
		return nil, "", fmt.Errorf("runstore: count: %w", err)
	}
	next := ""
	if skip+int64(len(docs)) < total {
		next = fmt.Sprintf("%d", page+1)
	}
	return out, next, nil
}
