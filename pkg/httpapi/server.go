// Package httpapi is the HTTP surface: run submission, polling,
// event tailing, SSE streaming, cancellation, approval, and session
// listing. Built on net/http and its ServeMux rather than a third-party
// router, since the surface is small.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/model"
	"github.com/agentcore/runtime/pkg/runlog"
	"github.com/agentcore/runtime/pkg/runstore"
	"github.com/agentcore/runtime/pkg/sse"
	"github.com/agentcore/runtime/pkg/telemetry"
)

// Queue is the minimal RunQueue surface handlers call into. Declared
// locally (rather than importing pkg/runqueue's concrete type) so the
// server can be wired against a fake in tests.
type Queue interface {
	Enqueue(ctx context.Context, runID string) error
	Cancel(ctx context.Context, runID string) bool
	NotifyRunResumed(ctx context.Context, runID string)
}

// Server wires the stores and the queue behind the HTTP surface.
type Server struct {
	Runs        runstore.Store
	EventLog    runlog.Store
	Checkpoints checkpoint.Store
	Queue       Queue
	Broadcaster *sse.Broadcaster
	Telemetry   telemetry.ToolTelemetry

	mux *http.ServeMux
}

// New builds a Server with its routes registered.
func New(s *Server) *Server {
	if s.Telemetry.Logger == nil {
		s.Telemetry = telemetry.Noop
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /api/runs/{id}/events", s.handleGetEvents)
	s.mux.HandleFunc("GET /api/runs/{id}/stream", s.handleStream)
	s.mux.HandleFunc("POST /api/runs/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("POST /api/runs/{id}/approve", s.handleApprove)
	s.mux.HandleFunc("GET /api/sessions/{key}/runs", s.handleListSession)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// scopeFrom reads the x-org-id/x-user-id/x-project-id scope headers. A
// missing org or user id is a caller error, rejected at the edge.
func scopeFrom(r *http.Request) (agent.Scope, bool) {
	org := r.Header.Get("x-org-id")
	user := r.Header.Get("x-user-id")
	if org == "" || user == "" {
		return agent.Scope{}, false
	}
	return agent.Scope{OrgID: org, UserID: user, ProjectID: r.Header.Get("x-project-id")}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

type createRunRequest struct {
	AgentID     string `json:"agent_id"`
	SessionKey  string `json:"session_key"`
	Input       string `json:"input"`
	ParentRunID string `json:"parent_run_id,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "MissingScope", "x-org-id and x-user-id headers are required")
		return
	}
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedRequest", err.Error())
		return
	}
	if req.AgentID == "" || req.Input == "" {
		writeError(w, http.StatusBadRequest, "MalformedRequest", "agent_id and input are required")
		return
	}
	if req.SessionKey == "" {
		req.SessionKey = uuid.NewString()
	}

	record := runstore.Record{
		ID:          "run_" + uuid.NewString(),
		Scope:       scope,
		SessionKey:  req.SessionKey,
		Input:       req.Input,
		AgentID:     agent.Ident(req.AgentID),
		Status:      runstore.StatusPending,
		ParentRunID: req.ParentRunID,
		CreatedAt:   time.Now(),
	}
	if req.Provider != "" || req.Model != "" {
		record.Model = &runstore.ModelConfig{Provider: req.Provider, Model: req.Model}
	}

	if err := s.Runs.CreateRun(r.Context(), record); err != nil {
		if errors.Is(err, runstore.ErrCycle) {
			writeError(w, http.StatusBadRequest, "CyclicDependency", "parent/child run graph would cycle")
			return
		}
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	if err := s.Queue.Enqueue(r.Context(), record.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "QueueFull", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "MissingScope", "x-org-id and x-user-id headers are required")
		return
	}
	id := r.PathValue("id")
	rec, err := s.Runs.Load(r.Context(), scope, id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "MissingScope", "x-org-id and x-user-id headers are required")
		return
	}
	id := r.PathValue("id")
	rec, err := s.Runs.Load(r.Context(), scope, id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	includeTokens := r.URL.Query().Get("include_tokens") == "true"

	page, err := s.EventLog.ReadPage(r.Context(), runlog.StreamID{SessionKey: rec.SessionKey, RunID: id}, cursor, limit, includeTokens)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "MissingScope", "x-org-id and x-user-id headers are required")
		return
	}
	id := r.PathValue("id")
	rec, err := s.Runs.Load(r.Context(), scope, id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "StreamingUnsupported", "response writer cannot flush")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := &sse.Client{ID: uuid.NewString(), RunID: id, Writer: flushWriter{w, flusher}}
	if err := s.Broadcaster.AddClient(client); err != nil {
		writeError(w, http.StatusServiceUnavailable, "TooManySubscribers", err.Error())
		return
	}
	defer s.Broadcaster.RemoveClient(client.ID)

	if rec.Status.Terminal() {
		s.Broadcaster.Done(id)
		return
	}
	<-r.Context().Done()
}

type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) { return fw.w.Write(p) }
func (fw flushWriter) Flush()                      { fw.f.Flush() }

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "MissingScope", "x-org-id and x-user-id headers are required")
		return
	}
	id := r.PathValue("id")
	rec, err := s.Runs.Load(r.Context(), scope, id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	if rec.Status.Terminal() {
		writeError(w, http.StatusConflict, "AlreadyTerminal", "run has already reached a terminal status")
		return
	}
	s.Queue.Cancel(r.Context(), id)
	if err := s.Runs.UpdateStatus(r.Context(), id, runstore.StatusCancelled, nil, nil); err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	s.Broadcaster.Done(id)
	w.WriteHeader(http.StatusNoContent)
}

type approveRequest struct {
	ToolCallID string `json:"tool_call_id"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "MissingScope", "x-org-id and x-user-id headers are required")
		return
	}
	var req approveRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "MalformedRequest", err.Error())
			return
		}
	}
	id := r.PathValue("id")
	rec, err := s.Runs.Load(r.Context(), scope, id)
	if errors.Is(err, runstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	if rec.Status != runstore.StatusSuspended {
		writeError(w, http.StatusConflict, "NotSuspended", "run is not waiting on approval")
		return
	}
	if req.ToolCallID == "" {
		writeError(w, http.StatusBadRequest, "MalformedRequest", "tool_call_id is required")
		return
	}

	payload, _ := json.Marshal(map[string]any{"approved": true, "tool_call_id": req.ToolCallID})
	approval := model.Message{Role: model.RoleTool, ToolCallID: req.ToolCallID, Text: string(payload)}
	if err := s.Checkpoints.AppendToolResults(r.Context(), id, string(rec.AgentID), []model.Message{approval}); err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}

	if err := s.Runs.SetRunResumedFromSuspension(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	s.Queue.NotifyRunResumed(r.Context(), id)
	if err := s.Queue.Enqueue(r.Context(), id); err != nil {
		writeError(w, http.StatusServiceUnavailable, "QueueFull", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSession(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "MissingScope", "x-org-id and x-user-id headers are required")
		return
	}
	key := r.PathValue("key")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, next, err := s.Runs.ListBySession(r.Context(), scope, key, page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "next_page": next})
}
