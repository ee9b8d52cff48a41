package toolrouter

import (
	"context"
	"sync"

	"github.com/agentcore/runtime/pkg/model"
	"github.com/agentcore/runtime/pkg/tools"
)

// PendingCall is one tool call to execute within a step, paired with its
// position in the LLM-given order.
type PendingCall struct {
	Index  int
	Call   model.ToolCall
	Risk   tools.Metadata
}

// Scheduler partitions a step's tool calls into a read-only concurrent
// batch and a mutating serial batch, reads-before-writes, while preserving
// the original LLM-given order in the tool-role messages it hands back.
type Scheduler struct {
	MaxParallelism int
}

// CallResult pairs a PendingCall with the Result the Router produced.
type CallResult struct {
	Index  int
	Call   model.ToolCall
	Result Result
}

// Execute runs calls through exec, honoring the read-before-write
// partition, and returns results reordered to the original call order.
func (s *Scheduler) Execute(ctx context.Context, calls []PendingCall, exec func(ctx context.Context, call model.ToolCall) Result) []CallResult {
	var reads, writes []PendingCall
	for _, c := range calls {
		if c.Risk.ReadOnlyParallel() {
			reads = append(reads, c)
		} else {
			writes = append(writes, c)
		}
	}

	results := make([]CallResult, len(calls))

	maxPar := s.MaxParallelism
	if maxPar <= 0 {
		maxPar = 8
	}
	sem := make(chan struct{}, maxPar)
	var wg sync.WaitGroup
	var mu sync.Mutex
	set := func(idx int, cr CallResult) {
		mu.Lock()
		results[idx] = cr
		mu.Unlock()
	}

	for _, c := range reads {
		wg.Add(1)
		sem <- struct{}{}
		go func(c PendingCall) {
			defer wg.Done()
			defer func() { <-sem }()
			res := exec(ctx, c.Call)
			set(indexOf(calls, c), CallResult{Index: c.Index, Call: c.Call, Result: res})
		}(c)
	}
	wg.Wait()

	for _, c := range writes {
		res := exec(ctx, c.Call)
		set(indexOf(calls, c), CallResult{Index: c.Index, Call: c.Call, Result: res})
	}

	return results
}

func indexOf(calls []PendingCall, target PendingCall) int {
	for i, c := range calls {
		if c.Index == target.Index {
			return i
		}
	}
	return -1
}
