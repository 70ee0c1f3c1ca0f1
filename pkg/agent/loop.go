// Package agent implements the bounded, resumable tool-use loop shared by all
// outreach agents: model call, parallel tool execution, result feedback,
// forced continuation and transcript reset until the task completes or the
// turn budget runs out.
package agent

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"outreach/pkg/llm"
	"outreach/pkg/logx"
	"outreach/pkg/metrics"
	"outreach/pkg/tools"
)

const (
	// DefaultMaxTurns bounds a run when the caller sets no budget.
	DefaultMaxTurns = 30
	// DefaultToolWorkers bounds the pool for parallel tool execution.
	DefaultToolWorkers = 8
	// resultPreviewLen is the observer preview size for tool results.
	resultPreviewLen = 500

	// MaxTurnsSentinel is returned when a run hits the turn budget. Callers
	// match on it to distinguish partial from complete runs.
	MaxTurnsSentinel = "(agent reached maximum turns — partial results saved)"

	truncationNudge = "Your previous response was cut off by the output limit. " +
		"Continue exactly where you stopped; do not repeat completed work."

	defaultSaveInstruction = "You are out of turns. Stop researching immediately and " +
		"save everything you have found so far with a single save call, then stop."
)

// Dispatcher executes one tool invocation and returns the result as a string.
// Failures are reported inside the string ("Error: ..."), never as an error:
// the model can read them and route around a broken tool.
type Dispatcher interface {
	Dispatch(ctx context.Context, call llm.ToolCall) string
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, call llm.ToolCall) string

func (f DispatchFunc) Dispatch(ctx context.Context, call llm.ToolCall) string {
	return f(ctx, call)
}

// Config assembles a Loop. Client, Dispatcher and Logger are required.
type Config struct {
	Client     llm.Client
	Retry      *RetryPolicy
	Policy     CompletionPolicy
	Dispatcher Dispatcher
	Catalogue  []tools.ToolDefinition
	Observer   Observer
	Logger     *logx.Logger

	// SystemPrompt is sent with every model call.
	SystemPrompt string
	// MaxTurns caps model calls per run; 0 means DefaultMaxTurns.
	MaxTurns int
	// ToolWorkers bounds parallel tool execution; 0 means DefaultToolWorkers.
	ToolWorkers int
	// MaxTokens is the response budget; 0 derives it from the model name.
	MaxTokens int
	// SaveInstruction overrides the message injected at the turn limit.
	SaveInstruction string
}

// Loop runs one agent conversation to completion.
type Loop struct {
	cfg Config
}

// New validates the config and applies defaults.
func New(cfg Config) (*Loop, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("agent: Client is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("agent: Dispatcher is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("agent: Logger is required")
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Retry == nil {
		cfg.Retry = NewRetryPolicy(cfg.Logger)
		cfg.Retry.Observer = cfg.Observer
	}
	if cfg.Policy == nil {
		cfg.Policy = NopPolicy{}
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.ToolWorkers <= 0 {
		cfg.ToolWorkers = DefaultToolWorkers
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = ResponseTokenBudget(cfg.Client.ModelName())
	}
	if cfg.SaveInstruction == "" {
		cfg.SaveInstruction = defaultSaveInstruction
	}
	return &Loop{cfg: cfg}, nil
}

// ResponseTokenBudget returns the per-response output budget for a model.
// Light models get a smaller budget; they start rambling near their limit.
func ResponseTokenBudget(model string) int {
	if strings.Contains(strings.ToLower(model), "haiku") {
		return 8192
	}
	return 16384
}

// Run executes the loop for one task and returns the agent's final text. The
// only errors returned are model-boundary failures (retry exhaustion, context
// cancellation, non-retryable API errors); tool failures are absorbed into
// the conversation as result strings.
func (l *Loop) Run(ctx context.Context, task string) (string, error) {
	transcript := NewTranscript(task)
	l.cfg.Logger.Info("run started: %d turn budget, tools: %s", l.cfg.MaxTurns, tools.Names(l.cfg.Catalogue))

	for turn := 0; turn < l.cfg.MaxTurns; turn++ {
		if fresh := l.cfg.Policy.MaybeReset(transcript); fresh != nil {
			transcript = fresh
		}

		resp, err := l.cfg.Retry.Call(ctx, l.cfg.Client, l.request(transcript))
		if err != nil {
			return "", err
		}
		transcript.Append(llm.AssistantContent(resp.Blocks))
		text := l.emitText(resp.Blocks)

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			// The policy gets first say even on a truncated response: its
			// corrective message names the remaining targets, which the
			// generic nudge cannot.
			if msg, force := l.cfg.Policy.ShouldContinue(); force {
				transcript.Append(llm.UserText(msg))
				continue
			}
			if resp.StopReason == llm.StopMaxTokens {
				// Truncated mid-thought with no complete invocation.
				transcript.Append(llm.UserText(truncationNudge))
				continue
			}
			l.cfg.Logger.Info("run finished after %d turns", turn+1)
			return text, nil
		}

		transcript.Append(llm.UserToolResults(l.executeAll(ctx, calls)))
	}

	return l.finishAtTurnLimit(ctx, transcript)
}

func (l *Loop) request(t *Transcript) llm.CompletionRequest {
	return llm.CompletionRequest{
		System:    l.cfg.SystemPrompt,
		Messages:  t.Messages(),
		Tools:     l.cfg.Catalogue,
		MaxTokens: l.cfg.MaxTokens,
	}
}

// emitText notifies the observer of each text block in order and returns the
// concatenated text of this response.
func (l *Loop) emitText(blocks []llm.ContentBlock) string {
	var parts []string
	for i := range blocks {
		if blocks[i].Type == llm.BlockText && blocks[i].Text != "" {
			l.cfg.Observer.OnText(blocks[i].Text)
			parts = append(parts, blocks[i].Text)
		}
	}
	return strings.Join(parts, "\n")
}

// executeAll runs the turn's invocations and returns id-matched results in
// invocation order. A single call runs synchronously; multiple calls share a
// bounded worker pool. Result slots are index-assigned, so ordering holds no
// matter which execution finishes first.
func (l *Loop) executeAll(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	for i := range calls {
		l.cfg.Observer.OnToolCall(calls[i].Name, calls[i].Args)
	}

	results := make([]llm.ToolResult, len(calls))
	if len(calls) == 1 {
		results[0] = llm.ToolResult{ToolCallID: calls[0].ID, Content: l.execute(ctx, calls[0])}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(min(len(calls), l.cfg.ToolWorkers))
		for i := range calls {
			g.Go(func() error {
				results[i] = llm.ToolResult{ToolCallID: calls[i].ID, Content: l.execute(ctx, calls[i])}
				return nil
			})
		}
		_ = g.Wait() // workers never return errors
	}

	for i := range calls {
		l.cfg.Observer.OnToolResult(calls[i].Name, preview(results[i].Content, resultPreviewLen))
	}
	return results
}

// execute fault-isolates one invocation: dispatcher panics become "Error: ..."
// result strings so a broken tool cannot take the whole run down.
func (l *Loop) execute(ctx context.Context, call llm.ToolCall) (out string) {
	defer func() {
		if r := recover(); r != nil {
			l.cfg.Logger.Error("tool %s panicked: %v", call.Name, r)
			out = fmt.Sprintf("Error: tool %s failed: %v", call.Name, r)
		}
		outcome := "ok"
		if strings.HasPrefix(out, "Error:") {
			outcome = "error"
		}
		metrics.ToolExecutions.WithLabelValues(call.Name, outcome).Inc()
	}()
	return l.cfg.Dispatcher.Dispatch(ctx, call)
}

// finishAtTurnLimit gives the model one last chance to persist partial work:
// inject the save instruction, make a single model call, execute whatever it
// invokes, then return the fixed sentinel.
func (l *Loop) finishAtTurnLimit(ctx context.Context, transcript *Transcript) (string, error) {
	l.cfg.Logger.Warn("turn budget exhausted, forcing a final save")
	transcript.Append(llm.UserText(l.cfg.SaveInstruction))

	resp, err := l.cfg.Retry.Call(ctx, l.cfg.Client, l.request(transcript))
	if err != nil {
		// Partial results already persisted by earlier saves are kept.
		l.cfg.Logger.Error("final save call failed: %v", err)
		return MaxTurnsSentinel, nil
	}
	transcript.Append(llm.AssistantContent(resp.Blocks))
	l.emitText(resp.Blocks)
	if calls := resp.ToolCalls(); len(calls) > 0 {
		transcript.Append(llm.UserToolResults(l.executeAll(ctx, calls)))
	}
	return MaxTurnsSentinel, nil
}
