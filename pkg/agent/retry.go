package agent

import (
	"context"
	"fmt"
	"time"

	"outreach/pkg/llm"
	"outreach/pkg/llm/llmerrors"
	"outreach/pkg/logx"
	"outreach/pkg/metrics"
)

const (
	// DefaultMaxAttempts bounds a single logical model call.
	DefaultMaxAttempts = 5
	// DefaultRateLimitWait is the per-attempt wait increment for 429s. The
	// provider replenishes the rate budget once per minute, so anything
	// shorter than a minute just burns attempts.
	DefaultRateLimitWait = 65 * time.Second
	// DefaultOverloadWait is the per-attempt wait increment for 529s.
	DefaultOverloadWait = 30 * time.Second
)

// RetryPolicy wraps model calls with linear backoff on capacity failures.
// Rate limits wait RateLimitWait x attempt, overloads OverloadWait x attempt;
// any other error propagates immediately. A failed attempt never touches the
// caller's transcript, so retries are invisible to the conversation.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitWait time.Duration
	OverloadWait  time.Duration
	// Observer is told about waits in a human-readable form; retries are
	// otherwise invisible to the caller.
	Observer Observer

	logger *logx.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a policy with the default attempt budget and waits.
func NewRetryPolicy(logger *logx.Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		RateLimitWait: DefaultRateLimitWait,
		OverloadWait:  DefaultOverloadWait,
		Observer:      NopObserver{},
		logger:        logger,
		sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Call performs one logical completion with retries. On exhaustion it returns
// a *llmerrors.RetryExhaustedError wrapping the last failure.
func (p *RetryPolicy) Call(ctx context.Context, client llm.Client, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := client.Complete(ctx, req)
		metrics.ModelCalls.Inc()
		metrics.ModelCallDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var wait time.Duration
		var cause string
		switch llmerrors.TypeOf(err) {
		case llmerrors.TypeRateLimit:
			wait = p.RateLimitWait * time.Duration(attempt)
			cause = "Rate limited"
		case llmerrors.TypeOverloaded:
			wait = p.OverloadWait * time.Duration(attempt)
			cause = "Model overloaded"
		default:
			return llm.CompletionResponse{}, err
		}

		if attempt == p.MaxAttempts {
			break
		}
		metrics.ModelRetries.Inc()
		p.logger.Warn("model %s on attempt %d/%d, waiting %s",
			llmerrors.TypeOf(err), attempt, p.MaxAttempts, wait)
		if p.Observer != nil {
			p.Observer.OnText(fmt.Sprintf("%s, retrying in %s (attempt %d/%d)...",
				cause, wait, attempt, p.MaxAttempts))
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return llm.CompletionResponse{}, serr
		}
	}
	return llm.CompletionResponse{}, llmerrors.NewRetryExhausted(p.MaxAttempts, lastErr)
}
