package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/pkg/llm"
	"outreach/pkg/logx"
)

// mockClient replays scripted responses and records every request it sees.
type mockClient struct {
	mu        sync.Mutex
	responses []llm.CompletionResponse
	requests  []llm.CompletionRequest
	model     string
}

func (m *mockClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.requests) > len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock: unscripted call %d", len(m.requests))
	}
	return m.responses[len(m.requests)-1], nil
}

func (m *mockClient) ModelName() string {
	if m.model == "" {
		return "claude-test"
	}
	return m.model
}

func (m *mockClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockClient) request(i int) llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func textResponse(text string) llm.CompletionResponse {
	return llm.CompletionResponse{
		Blocks:     []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
	}
}

func toolResponse(calls ...llm.ToolCall) llm.CompletionResponse {
	blocks := make([]llm.ContentBlock, 0, len(calls))
	for _, c := range calls {
		blocks = append(blocks, llm.ToolUseBlock(c))
	}
	return llm.CompletionResponse{Blocks: blocks, StopReason: llm.StopToolUse}
}

// recordingDispatcher answers every call with "result:<name>" and records the
// order and timing of executions.
type recordingDispatcher struct {
	mu     sync.Mutex
	seen   []string
	delays map[string]time.Duration
}

func (d *recordingDispatcher) Dispatch(_ context.Context, call llm.ToolCall) string {
	if delay, ok := d.delays[call.Name]; ok {
		time.Sleep(delay)
	}
	d.mu.Lock()
	d.seen = append(d.seen, call.Name)
	d.mu.Unlock()
	return "result:" + call.Name
}

func newTestLoop(t *testing.T, client *mockClient, d Dispatcher, opts func(*Config)) *Loop {
	t.Helper()
	cfg := Config{
		Client:     client,
		Dispatcher: d,
		Logger:     logx.NewLogger("test"),
	}
	if opts != nil {
		opts(&cfg)
	}
	loop, err := New(cfg)
	require.NoError(t, err)
	return loop
}

func TestRunReturnsFinalText(t *testing.T) {
	client := &mockClient{responses: []llm.CompletionResponse{textResponse("all done")}}
	loop := newTestLoop(t, client, &recordingDispatcher{}, nil)

	out, err := loop.Run(context.Background(), "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "all done", out)
	assert.Equal(t, 1, client.calls())
}

func TestRunFeedsToolResultsBackInOrder(t *testing.T) {
	calls := []llm.ToolCall{
		{ID: "tc_1", Name: "slow_tool", Args: map[string]any{}},
		{ID: "tc_2", Name: "fast_tool", Args: map[string]any{}},
		{ID: "tc_3", Name: "mid_tool", Args: map[string]any{}},
	}
	client := &mockClient{responses: []llm.CompletionResponse{
		toolResponse(calls...),
		textResponse("done"),
	}}
	// The first invocation finishes last; result order must not change.
	d := &recordingDispatcher{delays: map[string]time.Duration{"slow_tool": 50 * time.Millisecond}}
	loop := newTestLoop(t, client, d, nil)

	out, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "done", out)

	// Second request carries: user task, assistant tool calls, result batch.
	req := client.request(1)
	require.Len(t, req.Messages, 3)
	batch := req.Messages[2]
	require.Len(t, batch.ToolResults, len(calls))
	for i, call := range calls {
		assert.Equal(t, call.ID, batch.ToolResults[i].ToolCallID)
		assert.Equal(t, "result:"+call.Name, batch.ToolResults[i].Content)
	}
}

func TestRunIsolatesPanickingTool(t *testing.T) {
	client := &mockClient{responses: []llm.CompletionResponse{
		toolResponse(
			llm.ToolCall{ID: "tc_1", Name: "boom"},
			llm.ToolCall{ID: "tc_2", Name: "ok"},
		),
		textResponse("survived"),
	}}
	d := DispatchFunc(func(_ context.Context, call llm.ToolCall) string {
		if call.Name == "boom" {
			panic("kaput")
		}
		return "fine"
	})
	loop := newTestLoop(t, client, d, nil)

	out, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "survived", out)

	batch := client.request(1).Messages[2]
	assert.Contains(t, batch.ToolResults[0].Content, "Error:")
	assert.Contains(t, batch.ToolResults[0].Content, "kaput")
	assert.Equal(t, "fine", batch.ToolResults[1].Content)
}

func TestRunStopsAtTurnBudgetWithFinalSave(t *testing.T) {
	// The model never stops calling tools; 3 loop turns plus 1 save call.
	responses := []llm.CompletionResponse{
		toolResponse(llm.ToolCall{ID: "tc_1", Name: "dig"}),
		toolResponse(llm.ToolCall{ID: "tc_2", Name: "dig"}),
		toolResponse(llm.ToolCall{ID: "tc_3", Name: "dig"}),
		toolResponse(llm.ToolCall{ID: "tc_4", Name: "save"}),
	}
	client := &mockClient{responses: responses}
	d := &recordingDispatcher{}
	loop := newTestLoop(t, client, d, func(cfg *Config) {
		cfg.MaxTurns = 3
		cfg.SaveInstruction = "save everything now"
	})

	out, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, MaxTurnsSentinel, out)
	assert.Equal(t, 4, client.calls())

	// The save instruction is the last user text before the final call.
	final := client.request(3)
	injected := final.Messages[len(final.Messages)-1]
	assert.Equal(t, "save everything now", injected.Text())

	// The save tool actually ran.
	assert.Equal(t, []string{"dig", "dig", "dig", "save"}, d.seen)
}

func TestRunNudgesAfterTruncation(t *testing.T) {
	truncated := llm.CompletionResponse{
		Blocks:     []llm.ContentBlock{llm.TextBlock("half a thou")},
		StopReason: llm.StopMaxTokens,
	}
	client := &mockClient{responses: []llm.CompletionResponse{truncated, textResponse("whole thought")}}
	loop := newTestLoop(t, client, &recordingDispatcher{}, nil)

	out, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "whole thought", out)

	req := client.request(1)
	nudge := req.Messages[len(req.Messages)-1]
	assert.Contains(t, nudge.Text(), "cut off")
}

// stubPolicy forces continuation a fixed number of times.
type stubPolicy struct {
	forcesLeft int
	forced     int
}

func (p *stubPolicy) ShouldContinue() (string, bool) {
	if p.forcesLeft == 0 {
		return "", false
	}
	p.forcesLeft--
	p.forced++
	return "keep going", true
}

func (p *stubPolicy) MaybeReset(*Transcript) *Transcript { return nil }

func TestRunHonorsForcedContinuation(t *testing.T) {
	client := &mockClient{responses: []llm.CompletionResponse{
		textResponse("stopping early"),
		textResponse("ok, actually done"),
	}}
	policy := &stubPolicy{forcesLeft: 1}
	loop := newTestLoop(t, client, &recordingDispatcher{}, func(cfg *Config) {
		cfg.Policy = policy
	})

	out, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, "ok, actually done", out)
	assert.Equal(t, 1, policy.forced)

	req := client.request(1)
	assert.Equal(t, "keep going", req.Messages[len(req.Messages)-1].Text())
}

func TestRunPolicyOutranksTruncationNudge(t *testing.T) {
	truncated := llm.CompletionResponse{
		Blocks:     []llm.ContentBlock{llm.TextBlock("half a thou")},
		StopReason: llm.StopMaxTokens,
	}
	client := &mockClient{responses: []llm.CompletionResponse{truncated, textResponse("done")}}
	policy := &stubPolicy{forcesLeft: 1}
	loop := newTestLoop(t, client, &recordingDispatcher{}, func(cfg *Config) {
		cfg.Policy = policy
	})

	_, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 1, policy.forced)

	// The policy's corrective message is injected, not the generic nudge.
	req := client.request(1)
	assert.Equal(t, "keep going", req.Messages[len(req.Messages)-1].Text())
}

func TestRunSingleToolWorkerRunsSerially(t *testing.T) {
	client := &mockClient{responses: []llm.CompletionResponse{
		toolResponse(
			llm.ToolCall{ID: "tc_1", Name: "slow_tool"},
			llm.ToolCall{ID: "tc_2", Name: "fast_tool"},
		),
		textResponse("done"),
	}}
	// With one worker the slow first call cannot be overtaken.
	d := &recordingDispatcher{delays: map[string]time.Duration{"slow_tool": 50 * time.Millisecond}}
	loop := newTestLoop(t, client, d, func(cfg *Config) {
		cfg.ToolWorkers = 1
	})

	_, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, []string{"slow_tool", "fast_tool"}, d.seen)
}

func TestRunPropagatesModelErrors(t *testing.T) {
	client := &mockClient{} // no scripted responses: every call errors
	loop := newTestLoop(t, client, &recordingDispatcher{}, nil)

	_, err := loop.Run(context.Background(), "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unscripted")
}

func TestResponseTokenBudget(t *testing.T) {
	assert.Equal(t, 8192, ResponseTokenBudget("claude-haiku-4-5"))
	assert.Equal(t, 16384, ResponseTokenBudget("claude-sonnet-4-5"))
	assert.Equal(t, 16384, ResponseTokenBudget("gpt-5"))
}

// observerRecorder captures notifications for assertion.
type observerRecorder struct {
	mu       sync.Mutex
	texts    []string
	calls    []string
	previews []string
}

func (o *observerRecorder) OnText(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, text)
}

func (o *observerRecorder) OnToolCall(name string, _ map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, name)
}

func (o *observerRecorder) OnToolResult(_ string, preview string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.previews = append(o.previews, preview)
}

func TestRunNotifiesObserverWithPreviews(t *testing.T) {
	client := &mockClient{responses: []llm.CompletionResponse{
		{
			Blocks: []llm.ContentBlock{
				llm.TextBlock("looking things up"),
				llm.ToolUseBlock(llm.ToolCall{ID: "tc_1", Name: "bigtool"}),
			},
			StopReason: llm.StopToolUse,
		},
		textResponse("done"),
	}}
	d := DispatchFunc(func(context.Context, llm.ToolCall) string {
		return strings.Repeat("x", 900)
	})
	obs := &observerRecorder{}
	loop := newTestLoop(t, client, d, func(cfg *Config) {
		cfg.Observer = obs
	})

	_, err := loop.Run(context.Background(), "task")
	require.NoError(t, err)

	assert.Equal(t, []string{"looking things up", "done"}, obs.texts)
	assert.Equal(t, []string{"bigtool"}, obs.calls)
	require.Len(t, obs.previews, 1)
	// 500 chars plus the ellipsis marker.
	assert.Len(t, obs.previews[0], 503)
}
