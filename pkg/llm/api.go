// Package llm defines the provider-agnostic completion interface shared by all
// agents, with ordered content blocks so tool invocations keep their position
// relative to surrounding text.
package llm

import (
	"context"

	"outreach/pkg/tools"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason reports why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult carries the string output of one tool execution back to the
// model, matched to its invocation by id.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// BlockType discriminates ContentBlock variants.
type BlockType string

const (
	BlockText    BlockType = "text"
	BlockToolUse BlockType = "tool_use"
)

// ContentBlock is one ordered element of an assistant message: either prose or
// a tool invocation.
type ContentBlock struct {
	Type    BlockType `json:"type"`
	Text    string    `json:"text,omitempty"`
	ToolUse *ToolCall `json:"tool_use,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool-use content block.
func ToolUseBlock(call ToolCall) ContentBlock {
	c := call
	return ContentBlock{Type: BlockToolUse, ToolUse: &c}
}

// Message is one transcript turn. A user turn carries either plain text blocks
// or a batch of tool results, never both; an assistant turn carries the
// model's ordered content blocks.
type Message struct {
	Role        Role           `json:"role"`
	Blocks      []ContentBlock `json:"blocks,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
}

// UserText builds a plain-text user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Blocks: []ContentBlock{TextBlock(text)}}
}

// UserToolResults builds a user message carrying a tool-result batch.
func UserToolResults(results []ToolResult) Message {
	return Message{Role: RoleUser, ToolResults: results}
}

// AssistantContent builds an assistant message from response blocks.
func AssistantContent(blocks []ContentBlock) Message {
	return Message{Role: RoleAssistant, Blocks: blocks}
}

// ToolCalls returns the tool invocations of a message, in block order.
func (m *Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for i := range m.Blocks {
		if m.Blocks[i].Type == BlockToolUse && m.Blocks[i].ToolUse != nil {
			calls = append(calls, *m.Blocks[i].ToolUse)
		}
	}
	return calls
}

// Text concatenates the text blocks of a message, newline separated.
func (m *Message) Text() string {
	var parts []string
	for i := range m.Blocks {
		if m.Blocks[i].Type == BlockText && m.Blocks[i].Text != "" {
			parts = append(parts, m.Blocks[i].Text)
		}
	}
	return joinNonEmpty(parts)
}

func joinNonEmpty(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out
}

// CompletionRequest is a single model call.
type CompletionRequest struct {
	System    string
	Messages  []Message
	Tools     []tools.ToolDefinition
	MaxTokens int
}

// CompletionResponse is the model's reply: ordered blocks plus the stop reason.
type CompletionResponse struct {
	Blocks     []ContentBlock
	StopReason StopReason
}

// ToolCalls returns the tool invocations of the response, in block order.
func (r *CompletionResponse) ToolCalls() []ToolCall {
	msg := Message{Role: RoleAssistant, Blocks: r.Blocks}
	return msg.ToolCalls()
}

// Client is implemented by provider backends (Anthropic, OpenAI-compatible).
type Client interface {
	// Complete performs one blocking completion call.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	// ModelName returns the configured model identifier.
	ModelName() string
}
