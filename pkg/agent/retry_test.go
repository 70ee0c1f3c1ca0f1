package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/pkg/llm"
	"outreach/pkg/llm/llmerrors"
	"outreach/pkg/logx"
)

// flakyClient fails with scripted errors before succeeding.
type flakyClient struct {
	errs  []error
	calls int
}

func (c *flakyClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	if c.calls <= len(c.errs) {
		return llm.CompletionResponse{}, c.errs[c.calls-1]
	}
	return textResponse("recovered"), nil
}

func (c *flakyClient) ModelName() string { return "claude-test" }

func newTestRetry(t *testing.T) (*RetryPolicy, *[]time.Duration) {
	t.Helper()
	var waits []time.Duration
	p := NewRetryPolicy(logx.NewLogger("test"))
	p.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return p, &waits
}

func TestRetryRateLimitWaitsGrowLinearly(t *testing.T) {
	client := &flakyClient{errs: []error{
		llmerrors.New(llmerrors.TypeRateLimit, "429"),
		llmerrors.New(llmerrors.TypeRateLimit, "429"),
	}}
	p, waits := newTestRetry(t)

	resp, err := p.Call(context.Background(), client, llm.CompletionRequest{})
	require.NoError(t, err)
	msg := llm.AssistantContent(resp.Blocks)
	assert.Equal(t, "recovered", msg.Text())
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, []time.Duration{65 * time.Second, 130 * time.Second}, *waits)
}

func TestRetryTellsObserverAboutWaits(t *testing.T) {
	client := &flakyClient{errs: []error{
		llmerrors.New(llmerrors.TypeRateLimit, "429"),
		llmerrors.New(llmerrors.TypeOverloaded, "529"),
	}}
	p, _ := newTestRetry(t)
	obs := &observerRecorder{}
	p.Observer = obs

	_, err := p.Call(context.Background(), client, llm.CompletionRequest{})
	require.NoError(t, err)
	require.Len(t, obs.texts, 2)
	assert.Equal(t, "Rate limited, retrying in 1m5s (attempt 1/5)...", obs.texts[0])
	assert.Equal(t, "Model overloaded, retrying in 1m0s (attempt 2/5)...", obs.texts[1])
}

func TestRetryOverloadUsesShorterWaits(t *testing.T) {
	client := &flakyClient{errs: []error{
		llmerrors.New(llmerrors.TypeOverloaded, "529"),
	}}
	p, waits := newTestRetry(t)

	_, err := p.Call(context.Background(), client, llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second}, *waits)
}

func TestRetryPropagatesNonRetryableImmediately(t *testing.T) {
	cause := llmerrors.New(llmerrors.TypeAuth, "bad key")
	client := &flakyClient{errs: []error{cause}}
	p, waits := newTestRetry(t)

	_, err := p.Call(context.Background(), client, llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, llmerrors.TypeAuth, llmerrors.TypeOf(err))
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, *waits)
}

func TestRetryUnclassifiedErrorsPropagate(t *testing.T) {
	client := &flakyClient{errs: []error{fmt.Errorf("weird network thing")}}
	p, waits := newTestRetry(t)

	_, err := p.Call(context.Background(), client, llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
	assert.Empty(t, *waits)
}

func TestRetryExhaustionIsTerminal(t *testing.T) {
	errs := make([]error, DefaultMaxAttempts)
	for i := range errs {
		errs[i] = llmerrors.New(llmerrors.TypeRateLimit, "429 forever")
	}
	client := &flakyClient{errs: errs}
	p, waits := newTestRetry(t)

	_, err := p.Call(context.Background(), client, llm.CompletionRequest{})
	require.Error(t, err)

	var exhausted *llmerrors.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, DefaultMaxAttempts, exhausted.Attempts)
	assert.Equal(t, DefaultMaxAttempts, client.calls)
	// No sleep after the last failed attempt.
	assert.Len(t, *waits, DefaultMaxAttempts-1)
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	client := &flakyClient{errs: []error{llmerrors.New(llmerrors.TypeRateLimit, "429")}}
	p := NewRetryPolicy(logx.NewLogger("test"))
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := p.Call(context.Background(), client, llm.CompletionRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.calls)
}
