// Command agentrund runs the agent execution server: queue, runner, event
// log, checkpoints, and the HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentcore/runtime/internal/config"
	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/agentrunner"
	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/checkpoint/fsjson"
	"github.com/agentcore/runtime/pkg/ctxbuild"
	"github.com/agentcore/runtime/pkg/httpapi"
	"github.com/agentcore/runtime/pkg/model"
	"github.com/agentcore/runtime/pkg/model/anthropic"
	"github.com/agentcore/runtime/pkg/model/openai"
	"github.com/agentcore/runtime/pkg/ratelimit"
	"github.com/agentcore/runtime/pkg/retry"
	"github.com/agentcore/runtime/pkg/runlog"
	"github.com/agentcore/runtime/pkg/runlog/fsjsonl"
	"github.com/agentcore/runtime/pkg/runqueue"
	"github.com/agentcore/runtime/pkg/runstore"
	runstoreinmem "github.com/agentcore/runtime/pkg/runstore/inmem"
	"github.com/agentcore/runtime/pkg/sse"
	"github.com/agentcore/runtime/pkg/swarm"
	"github.com/agentcore/runtime/pkg/telemetry"
	"github.com/agentcore/runtime/pkg/toolrouter"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("AGENTRUND_CONFIG"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	eventLog := fsjsonl.New(filepath.Join(cfg.DataDir, "events"))
	checkpoints := fsjson.New(filepath.Join(cfg.DataDir, "checkpoints"))
	runs := runstoreinmem.New()
	broadcaster := sse.New(sse.Options{})

	var llmClient model.Client
	switch cfg.LLMProvider {
	case "openai":
		llmClient = openai.NewFromAPIKey(cfg.OpenAIAPIKey, cfg.LLMModel)
	default:
		llmClient = anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.LLMModel)
	}

	router := toolrouter.New(toolrouter.Options{
		Telemetry: telemetry.Noop,
		Sink:      agentrunner.RunnerSink{EventLog: eventLog},
	})

	retryPolicy := retry.New(retry.Options{})

	limiter := ratelimit.New(float64(cfg.LLMTokensPerMinute), float64(cfg.LLMTokensPerMinuteBurst))
	llmClient = limiter.Wrap(llmClient)

	queue := runqueue.New(runqueue.Options{
		PersistDir: filepath.Join(cfg.DataDir, "queue"),
		Events:     &lifecycleEmitter{runs: runs, eventLog: eventLog, broadcaster: broadcaster},
	})

	coordinator := &swarm.Coordinator{Runs: runs, Checkpoints: checkpoints, Queue: queue}
	if err := registerSwarmTools(router, coordinator); err != nil {
		return err
	}

	runnerDeps := agentrunner.Deps{
		Model:       llmClient,
		Checkpoints: checkpoints,
		EventLog:    eventLog,
		Router:      router,
		Scheduler:   &toolrouter.Scheduler{},
		Retry:       retryPolicy,
		Builder:     ctxbuild.Builder{},
		Compactor:   ctxbuild.Compactor{},
		Telemetry:   telemetry.Noop,
	}
	runnerCfg := agentrunner.Config{
		MaxSteps:         cfg.MaxSteps,
		MaxContextTokens: cfg.MaxContextTokens,
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseSystemPrompt: "You are an autonomous agent. Use tools when they help; answer directly when you can.",
	}
	runner := agentrunner.New(runnerDeps, runnerCfg)

	exec := &executor{runs: runs, checkpoints: checkpoints, runner: runner, broadcaster: broadcaster}
	queue.SetExecutor(exec.run)

	if _, err := queue.Restore(); err != nil {
		log.Printf("agentrund: queue restore: %v", err)
	}

	server := httpapi.New(&httpapi.Server{
		Runs:        runs,
		EventLog:    eventLog,
		Checkpoints: checkpoints,
		Queue:       queue,
		Broadcaster: broadcaster,
		Telemetry:   telemetry.Noop,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go queue.ProcessQueue(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		broadcaster.Shutdown(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// executor bridges the queue's Executor contract to AgentRunner.Run: loads
// or resumes the run from its latest checkpoint, drives it to an outcome,
// and writes the result back to RunRepository.
type executor struct {
	runs        runstore.Store
	checkpoints checkpoint.Store
	runner      *agentrunner.Runner
	broadcaster *sse.Broadcaster
}

func (e *executor) run(ctx context.Context, runID string) error {
	rec, err := e.runs.LoadUnscoped(ctx, runID)
	if err != nil {
		return fmt.Errorf("executor: load run: %w", err)
	}

	if err := e.runs.UpdateStatus(ctx, runID, runstore.StatusRunning, nil, nil); err != nil {
		return fmt.Errorf("executor: mark running: %w", err)
	}

	in := agentrunner.RunInput{
		RunID:      runID,
		SessionKey: rec.SessionKey,
		AgentContext: agent.Context{
			Scope:      rec.Scope,
			AgentID:    rec.AgentID,
			Delegated:  rec.Delegated,
			SessionKey: rec.SessionKey,
		},
		Input: rec.Input,
	}

	if cp, err := e.checkpoints.LoadLatest(ctx, runID); err == nil {
		in.Resume = &agentrunner.ResumeFrom{StepNumber: cp.StepNumber, Messages: cp.Messages, WorkingState: cp.WorkingState}
	}

	outcome := e.runner.Run(ctx, in)

	switch outcome.Status {
	case agentrunner.StatusCompleted:
		err = e.runs.UpdateStatus(ctx, runID, runstore.StatusCompleted, outcome.Result, nil)
	case agentrunner.StatusFailed:
		err = e.runs.UpdateStatus(ctx, runID, runstore.StatusFailed, nil, &runstore.RunError{Code: outcome.FailureCode, Message: outcome.FailureMsg})
	case agentrunner.StatusCancelled:
		err = e.runs.UpdateStatus(ctx, runID, runstore.StatusCancelled, nil, nil)
	case agentrunner.StatusSuspended:
		err = e.runs.UpdateStatus(ctx, runID, runstore.StatusSuspended, nil, nil)
	}
	if err != nil {
		return fmt.Errorf("executor: update status: %w", err)
	}
	if outcome.Status != agentrunner.StatusSuspended {
		e.broadcaster.Done(runID)
	}
	return nil
}

// lifecycleEmitter implements runqueue.EventEmitter, appending the queue's
// own run.* events to the event log and fanning them out over SSE, the
// same path AgentRunner's step-level events take.
type lifecycleEmitter struct {
	runs        runstore.Store
	eventLog    runlog.Store
	broadcaster *sse.Broadcaster
}

func (l *lifecycleEmitter) Emit(ctx context.Context, runID string, eventType runlog.Type, payload any) {
	rec, err := l.runs.LoadUnscoped(ctx, runID)
	if err != nil {
		return
	}
	data, _ := json.Marshal(payload)
	event := runlog.Event{
		V: 1, TS: time.Now().UTC(), SessionKey: rec.SessionKey, RunID: runID,
		AgentID: string(rec.AgentID), SpanID: fmt.Sprintf("%s_%s_%d", runID, eventType, time.Now().UnixNano()),
		Type: eventType, Payload: data,
	}
	if err := l.eventLog.Append(ctx, runlog.StreamID{SessionKey: rec.SessionKey, RunID: runID}, event); err != nil {
		return
	}
	l.broadcaster.BroadcastToRun(runID, event)
}

// registerSwarmTools wires the subtask-dispatch and handoff tools that
// create child runs and depend on SwarmCoordinator for fan-in.
func registerSwarmTools(router *toolrouter.Router, coordinator *swarm.Coordinator) error {
	if err := router.RegisterTool(coordinator.DispatchSubtasksTool()); err != nil {
		return fmt.Errorf("register dispatch_subtasks: %w", err)
	}
	if err := router.RegisterTool(coordinator.HandoffToTool()); err != nil {
		return fmt.Errorf("register handoff_to: %w", err)
	}
	return nil
}
