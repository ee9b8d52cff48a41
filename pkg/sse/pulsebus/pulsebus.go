// Package pulsebus is a Redis Streams-backed fan-out for sse.Broadcaster,
// letting multiple server processes share one run's event stream. A local
// Broadcaster still owns the actual client connections in-process; this
// package only relays events published by whichever process is running a
// given run to every other process's local Broadcaster.
package pulsebus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/pulse"
	"goa.design/pulse/streaming"

	"github.com/agentcore/runtime/pkg/runlog"
)

const streamPrefix = "agentcore:run:"

// Options configures a Bus.
type Options struct {
	Redis     redis.UniversalClient
	NodeID    string
}

// Bus publishes run events to a per-run Redis stream and relays remote
// publishes to a local sink.
type Bus struct {
	node *pulse.Node
}

// New constructs a Bus backed by opts.Redis.
func New(ctx context.Context, opts Options) (*Bus, error) {
	node, err := pulse.AddNode(ctx, "agentcore-sse", opts.Redis)
	if err != nil {
		return nil, fmt.Errorf("pulsebus: add node: %w", err)
	}
	return &Bus{node: node}, nil
}

// Publish appends event to the run's Redis stream so other processes'
// subscribers observe it.
func (b *Bus) Publish(ctx context.Context, runID string, event runlog.Event) error {
	sink, err := b.node.NewSink(ctx, streamPrefix+runID)
	if err != nil {
		return fmt.Errorf("pulsebus: new sink: %w", err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = sink.Add(ctx, "run.event", data)
	return err
}

// LocalSink is the callback a subscriber invokes for each relayed event;
// typically sse.Broadcaster.BroadcastToRun.
type LocalSink func(runID string, event runlog.Event)

// Subscribe relays events published to runID's stream to sink, until ctx
// is cancelled.
func (b *Bus) Subscribe(ctx context.Context, runID string, sink LocalSink) error {
	reader, err := b.node.NewReader(ctx, streamPrefix+runID, streaming.WithSink(streamPrefix+runID))
	if err != nil {
		return fmt.Errorf("pulsebus: new reader: %w", err)
	}
	go func() {
		for ev := range reader.C {
			var event runlog.Event
			if err := json.Unmarshal(ev.Payload, &event); err != nil {
				continue
			}
			sink(runID, event)
			ev.Ack(ctx)
		}
	}()
	return nil
}
