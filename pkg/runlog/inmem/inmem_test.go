package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/runlog"
)

func validEvent(typ runlog.Type) runlog.Event {
	return runlog.Event{V: 1, RunID: "run_a", SpanID: "span_1", Type: typ}
}

func TestAppendRejectsMalformedEvent(t *testing.T) {
	s := New()
	err := s.Append(context.Background(), runlog.StreamID{RunID: "run_a"}, runlog.Event{V: 1, Type: runlog.TypeRunStarted})
	assert.Error(t, err, "missing run_id must be rejected")
}

func TestAppendBatchValidatesAllBeforeWriting(t *testing.T) {
	s := New()
	id := runlog.StreamID{RunID: "run_a"}
	events := []runlog.Event{validEvent(runlog.TypeRunStarted), {V: 1, Type: runlog.TypeStepStarted}}

	err := s.AppendBatch(context.Background(), id, events)
	assert.Error(t, err)

	n, _ := s.Count(context.Background(), id)
	assert.Equal(t, 0, n, "a batch with one invalid event must write none of it")
}

func TestReadStreamReturnsInsertionOrder(t *testing.T) {
	s := New()
	id := runlog.StreamID{RunID: "run_a"}
	require.NoError(t, s.Append(context.Background(), id, validEvent(runlog.TypeRunStarted)))
	require.NoError(t, s.Append(context.Background(), id, validEvent(runlog.TypeStepStarted)))

	events, err := s.ReadStream(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, runlog.TypeRunStarted, events[0].Type)
	assert.Equal(t, runlog.TypeStepStarted, events[1].Type)
}

func TestReadPagePaginatesWithCursor(t *testing.T) {
	s := New()
	id := runlog.StreamID{RunID: "run_a"}
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(context.Background(), id, validEvent(runlog.TypeStepStarted)))
	}

	page, err := s.ReadPage(context.Background(), id, "", 2, false)
	require.NoError(t, err)
	assert.Len(t, page.Events, 2)
	assert.NotEmpty(t, page.NextCursor)

	page2, err := s.ReadPage(context.Background(), id, page.NextCursor, 2, false)
	require.NoError(t, err)
	assert.Len(t, page2.Events, 2)

	page3, err := s.ReadPage(context.Background(), id, page2.NextCursor, 2, false)
	require.NoError(t, err)
	assert.Len(t, page3.Events, 1)
	assert.Empty(t, page3.NextCursor, "cursor must be empty once exhausted")
}

func TestReadPageFiltersLLMTokensUnlessIncluded(t *testing.T) {
	s := New()
	id := runlog.StreamID{RunID: "run_a"}
	require.NoError(t, s.Append(context.Background(), id, validEvent(runlog.TypeLLMToken)))
	require.NoError(t, s.Append(context.Background(), id, validEvent(runlog.TypeStepStarted)))

	page, err := s.ReadPage(context.Background(), id, "", 50, false)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, runlog.TypeStepStarted, page.Events[0].Type)

	page, err = s.ReadPage(context.Background(), id, "", 50, true)
	require.NoError(t, err)
	assert.Len(t, page.Events, 2)
}

func TestReadPageRejectsInvalidCursor(t *testing.T) {
	s := New()
	_, err := s.ReadPage(context.Background(), runlog.StreamID{RunID: "run_a"}, "not-a-number", 10, false)
	assert.Error(t, err)
}

func TestExistsReflectsWrites(t *testing.T) {
	s := New()
	id := runlog.StreamID{RunID: "run_a"}
	ok, err := s.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Append(context.Background(), id, validEvent(runlog.TypeRunStarted)))
	ok, err = s.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStreamsAreIndependent(t *testing.T) {
	s := New()
	a := runlog.StreamID{RunID: "run_a"}
	b := runlog.StreamID{RunID: "run_b"}
	require.NoError(t, s.Append(context.Background(), a, validEvent(runlog.TypeRunStarted)))

	countA, _ := s.Count(context.Background(), a)
	countB, _ := s.Count(context.Background(), b)
	assert.Equal(t, 1, countA)
	assert.Equal(t, 0, countB)
}
