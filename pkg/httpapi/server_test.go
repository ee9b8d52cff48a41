package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/model"
	"github.com/agentcore/runtime/pkg/runstore"
	"github.com/agentcore/runtime/pkg/runstore/inmem"
	"github.com/agentcore/runtime/pkg/sse"
)

type fakeCheckpoints struct {
	appended []model.Message
	appendedRunID string
}

func (f *fakeCheckpoints) SaveLatest(context.Context, checkpoint.Checkpoint) error { return nil }

func (f *fakeCheckpoints) LoadLatest(context.Context, string) (checkpoint.Checkpoint, error) {
	return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
}

func (f *fakeCheckpoints) SaveHistorical(context.Context, checkpoint.Checkpoint, string) error {
	return nil
}

func (f *fakeCheckpoints) LoadHistorical(context.Context, string, string) (checkpoint.Checkpoint, error) {
	return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
}

func (f *fakeCheckpoints) ListHistorical(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeCheckpoints) DeleteLatest(context.Context, string) error { return nil }

func (f *fakeCheckpoints) AppendToolResults(_ context.Context, runID, _ string, messages []model.Message) error {
	f.appendedRunID = runID
	f.appended = append(f.appended, messages...)
	return nil
}

type fakeQueue struct {
	enqueued  []string
	cancelled []string
	resumed   []string
}

func (f *fakeQueue) Enqueue(_ context.Context, runID string) error {
	f.enqueued = append(f.enqueued, runID)
	return nil
}

func (f *fakeQueue) Cancel(_ context.Context, runID string) bool {
	f.cancelled = append(f.cancelled, runID)
	return true
}

func (f *fakeQueue) NotifyRunResumed(_ context.Context, runID string) {
	f.resumed = append(f.resumed, runID)
}

func newTestServer() (*Server, *fakeQueue, *inmem.Store) {
	srv, queue, runs, _ := newTestServerWithCheckpoints()
	return srv, queue, runs
}

func newTestServerWithCheckpoints() (*Server, *fakeQueue, *inmem.Store, *fakeCheckpoints) {
	runs := inmem.New()
	queue := &fakeQueue{}
	checkpoints := &fakeCheckpoints{}
	srv := New(&Server{
		Runs:        runs,
		Queue:       queue,
		Checkpoints: checkpoints,
		Broadcaster: sse.New(sse.Options{}),
	})
	return srv, queue, runs, checkpoints
}

func scopedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("x-org-id", "org1")
	req.Header.Set("x-user-id", "user1")
	return req
}

func TestHandleCreateRunRequiresScopeHeaders(t *testing.T) {
	srv, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateRunEnqueuesAndReturnsRecord(t *testing.T) {
	srv, queue, _ := newTestServer()
	body, _ := json.Marshal(createRunRequest{AgentID: "agent_researcher", Input: "look into it"})
	req := scopedRequest(http.MethodPost, "/api/runs", body)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var got runstore.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, []string{got.ID}, queue.enqueued)
}

func TestHandleCreateRunRejectsMissingFields(t *testing.T) {
	srv, _, _ := newTestServer()
	body, _ := json.Marshal(createRunRequest{})
	req := scopedRequest(http.MethodPost, "/api/runs", body)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRunEnforcesScope(t *testing.T) {
	srv, _, runs := newTestServer()
	require.NoError(t, runs.CreateRun(context.Background(), runstore.Record{
		ID: "run_a", Scope: scopeOf("org1", "user1"), AgentID: "agent_researcher",
	}))

	req := scopedRequest(http.MethodGet, "/api/runs/run_a", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	other := httptest.NewRequest(http.MethodGet, "/api/runs/run_a", nil)
	other.Header.Set("x-org-id", "org2")
	other.Header.Set("x-user-id", "user1")
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, other)
	assert.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestHandleCancelRejectsAlreadyTerminal(t *testing.T) {
	srv, _, runs := newTestServer()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, runstore.Record{ID: "run_a", Scope: scopeOf("org1", "user1")}))
	require.NoError(t, runs.UpdateStatus(ctx, "run_a", runstore.StatusCompleted, "done", nil))

	req := scopedRequest(http.MethodPost, "/api/runs/run_a/cancel", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleCancelMarksCancelledAndNotifiesQueue(t *testing.T) {
	srv, queue, runs := newTestServer()
	require.NoError(t, runs.CreateRun(context.Background(), runstore.Record{ID: "run_a", Scope: scopeOf("org1", "user1")}))

	req := scopedRequest(http.MethodPost, "/api/runs/run_a/cancel", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"run_a"}, queue.cancelled)

	updated, err := runs.Load(context.Background(), scopeOf("org1", "user1"), "run_a")
	require.NoError(t, err)
	assert.Equal(t, runstore.StatusCancelled, updated.Status)
}

func TestHandleApproveRejectsWhenNotSuspended(t *testing.T) {
	srv, _, runs := newTestServer()
	require.NoError(t, runs.CreateRun(context.Background(), runstore.Record{ID: "run_a", Scope: scopeOf("org1", "user1")}))

	req := scopedRequest(http.MethodPost, "/api/runs/run_a/approve", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleApproveResumesAndEnqueues(t *testing.T) {
	srv, queue, runs, checkpoints := newTestServerWithCheckpoints()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, runstore.Record{ID: "run_a", Scope: scopeOf("org1", "user1"), AgentID: "agent_researcher"}))
	require.NoError(t, runs.UpdateStatus(ctx, "run_a", runstore.StatusSuspended, nil, nil))

	body, _ := json.Marshal(approveRequest{ToolCallID: "call_1"})
	req := scopedRequest(http.MethodPost, "/api/runs/run_a/approve", body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"run_a"}, queue.resumed)
	assert.Equal(t, []string{"run_a"}, queue.enqueued)

	require.Len(t, checkpoints.appended, 1)
	assert.Equal(t, "run_a", checkpoints.appendedRunID)
	assert.Equal(t, model.RoleTool, checkpoints.appended[0].Role)
	assert.Equal(t, "call_1", checkpoints.appended[0].ToolCallID)
	assert.Contains(t, checkpoints.appended[0].Text, `"approved":true`)
}

func TestHandleApproveRequiresToolCallID(t *testing.T) {
	srv, _, runs, _ := newTestServerWithCheckpoints()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, runstore.Record{ID: "run_a", Scope: scopeOf("org1", "user1")}))
	require.NoError(t, runs.UpdateStatus(ctx, "run_a", runstore.StatusSuspended, nil, nil))

	req := scopedRequest(http.MethodPost, "/api/runs/run_a/approve", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func scopeOf(org, user string) agent.Scope {
	return agent.Scope{OrgID: org, UserID: user}
}
