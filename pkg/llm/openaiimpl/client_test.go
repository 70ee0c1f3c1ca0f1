package openaiimpl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"outreach/pkg/llm"
)

func TestStopReasonMapsOutputBudgetTruncation(t *testing.T) {
	assert.Equal(t, llm.StopMaxTokens, stopReason("incomplete", "max_output_tokens", false))
	// Truncation wins even when tool invocations made it out.
	assert.Equal(t, llm.StopMaxTokens, stopReason("incomplete", "max_output_tokens", true))
}

func TestStopReasonToolUseAndEndTurn(t *testing.T) {
	assert.Equal(t, llm.StopToolUse, stopReason("completed", "", true))
	assert.Equal(t, llm.StopEndTurn, stopReason("completed", "", false))
	// Incomplete for any other reason is not a truncation.
	assert.Equal(t, llm.StopEndTurn, stopReason("incomplete", "content_filter", false))
}

func TestFlattenMessagesInlinesToolTraffic(t *testing.T) {
	req := llm.CompletionRequest{
		System: "be brief",
		Messages: []llm.Message{
			llm.UserText("draft an email"),
			llm.AssistantContent([]llm.ContentBlock{
				llm.TextBlock("saving a draft"),
				llm.ToolUseBlock(llm.ToolCall{ID: "tc_1", Name: "save_draft", Args: map[string]any{"email": "a@b.co"}}),
			}),
			llm.UserToolResults([]llm.ToolResult{{ToolCallID: "tc_1", Content: "Draft saved."}}),
		},
	}

	out := flattenMessages(req)
	assert.Contains(t, out, "System: be brief")
	assert.Contains(t, out, "User: draft an email")
	assert.Contains(t, out, "Assistant: saving a draft")
	assert.Contains(t, out, `Assistant called save_draft({"email":"a@b.co"})`)
	assert.Contains(t, out, "Tool result: Draft saved.")
}
