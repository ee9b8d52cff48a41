// Package ratelimit provides an adaptive tokens-per-minute limiter that
// wraps a model.Client, smoothing bursts of LLM calls and backing off the
// effective budget when the provider signals it is rate limited.
package ratelimit

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agentcore/runtime/pkg/model"
)

// Limiter applies an AIMD-style token bucket in front of a model.Client. It
// estimates the token cost of each request, blocks the caller until budget
// is available, and halves its effective tokens-per-minute rate whenever the
// wrapped client reports a 429, recovering gradually afterward.
type Limiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// New constructs a Limiter with the given tokens-per-minute budget. When
// maxTPM is zero or less than initialTPM, it is clamped to initialTPM.
func New(initialTPM, maxTPM float64) *Limiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &Limiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns a model.Client that enforces the limiter's budget before
// delegating each call to next.
func (l *Limiter) Wrap(next model.Client) model.Client {
	if next == nil {
		return nil
	}
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    model.Client
	limiter *Limiter
}

// Complete enforces the limiter before delegating to the underlying client,
// then adjusts the budget based on whether the call was rate limited.
func (c *limitedClient) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return model.Response{}, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *Limiter) wait(ctx context.Context, req model.Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *Limiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	var provErr *model.ProviderError
	if errors.As(err, &provErr) && provErr.StatusCode == 429 {
		l.backoff()
	}
}

func (l *Limiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setTPM(newTPM)
}

func (l *Limiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setTPM(newTPM)
}

// setTPM must be called with l.mu held.
func (l *Limiter) setTPM(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// estimateTokens is a cheap heuristic for the token cost of a request: it
// counts characters across text and tool-result messages, converts them to
// tokens at a fixed ratio, and adds a buffer for system-prompt and provider
// framing overhead.
func estimateTokens(req model.Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.ContentString())
	}
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
