package retry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentcore/runtime/pkg/model"
)

func TestClassifyRetryableStatus(t *testing.T) {
	c := Classifier{}
	cls := c.Classify(&model.ProviderError{StatusCode: 429})
	assert.True(t, cls.Retryable)
	assert.False(t, cls.Fatal)
}

func TestClassifyFatalStatus(t *testing.T) {
	c := Classifier{}
	cls := c.Classify(&model.ProviderError{StatusCode: 401})
	assert.True(t, cls.Fatal)
}

func TestClassifyTransientMessage(t *testing.T) {
	c := Classifier{}
	cls := c.Classify(errors.New("dial tcp: connection refused"))
	assert.True(t, cls.Retryable)
}

func TestClassifyUnknownErrorIsFatal(t *testing.T) {
	c := Classifier{}
	cls := c.Classify(errors.New("invalid tool arguments"))
	assert.True(t, cls.Fatal)
}
