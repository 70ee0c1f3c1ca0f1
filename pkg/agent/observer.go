package agent

import (
	"encoding/json"
	"fmt"
	"io"
)

// Observer receives progress notifications from a running loop. Implementations
// must be safe for concurrent use; tool results are reported sequentially but
// callers may share one observer across agents.
type Observer interface {
	// OnText is called for each text block the model emits, in order.
	OnText(text string)
	// OnToolCall is called before a tool invocation executes.
	OnToolCall(name string, args map[string]any)
	// OnToolResult is called after an invocation completes, with a preview of
	// the result truncated to 500 chars.
	OnToolResult(name string, preview string)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) OnText(string)                     {}
func (NopObserver) OnToolCall(string, map[string]any) {}
func (NopObserver) OnToolResult(string, string)       {}

// WriterObserver streams progress to an io.Writer. Used by the CLI.
type WriterObserver struct {
	W io.Writer
}

func (o WriterObserver) OnText(text string) {
	fmt.Fprintf(o.W, "%s\n", text)
}

func (o WriterObserver) OnToolCall(name string, args map[string]any) {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	fmt.Fprintf(o.W, "-> %s %s\n", name, preview(string(raw), 200))
}

func (o WriterObserver) OnToolResult(name string, p string) {
	fmt.Fprintf(o.W, "<- %s: %s\n", name, p)
}

// preview truncates s to at most n characters for display.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
