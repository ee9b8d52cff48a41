package runlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventValidateRequiresFields(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		ok   bool
	}{
		{"valid", Event{V: 1, RunID: "run_a", SpanID: "span_1", Type: TypeRunStarted}, true},
		{"wrong version", Event{V: 2, RunID: "run_a", SpanID: "span_1", Type: TypeRunStarted}, false},
		{"missing run id", Event{V: 1, SpanID: "span_1", Type: TypeRunStarted}, false},
		{"missing span id", Event{V: 1, RunID: "run_a", Type: TypeRunStarted}, false},
		{"missing type", Event{V: 1, RunID: "run_a", SpanID: "span_1"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.ev.Validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStepIDForFixedWidth(t *testing.T) {
	assert.Equal(t, "step_0000", StepIDFor(0))
	assert.Equal(t, "step_0042", StepIDFor(42))
}
