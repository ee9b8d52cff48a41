// Package retry classifies errors as transient or fatal and applies bounded
// exponential backoff to transient ones.
package retry

import (
	"errors"
	"strings"

	"github.com/agentcore/runtime/pkg/model"
)

// Classification is the outcome of Classifier.Classify.
type Classification struct {
	Retryable bool
	Fatal     bool
}

var transientPatterns = []string{
	"network",
	"timeout",
	"timed out",
	"rate limit",
	"service unavailable",
	"bad gateway",
	"connection reset",
	"connection refused",
}

// Classifier maps an error to a Classification: retryable on
// HTTP {429,500,502,503,504} or a transient message pattern; fatal
// otherwise (validation errors, sandbox violations, not-found, unknown
// errors, and any LLM error without a retryable status).
type Classifier struct{}

// Classify implements the classification table.
func (Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	var provErr *model.ProviderError
	if errors.As(err, &provErr) {
		if provErr.StatusCode != 0 {
			if provErr.RetryableStatus() {
				return Classification{Retryable: true}
			}
			return Classification{Fatal: true}
		}
		if matchesTransient(provErr.Message) {
			return Classification{Retryable: true}
		}
		return Classification{Fatal: true}
	}
	if matchesTransient(err.Error()) {
		return Classification{Retryable: true}
	}
	return Classification{Fatal: true}
}

func matchesTransient(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
