// Package openaiimpl implements llm.Client on the official OpenAI SDK, using
// the Responses API. It backs the drafting agent when an OpenAI model is
// configured; the transcript is flattened to a single input because the
// Responses API manages tool state differently from the Messages API.
package openaiimpl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"outreach/pkg/llm"
	"outreach/pkg/llm/llmerrors"
	"outreach/pkg/tools"
)

// Client wraps the OpenAI SDK behind the llm.Client interface.
type Client struct {
	client openai.Client
	model  string
}

// New creates a client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.model
}

// Complete performs one Responses API call.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(flattenMessages(req))},
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "nil response")
	}

	var blocks []llm.ContentBlock
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		args := make(map[string]any)
		if fc.Arguments != "" {
			if uerr := json.Unmarshal([]byte(fc.Arguments), &args); uerr != nil {
				continue // unparseable invocation, let the model retry
			}
		}
		blocks = append(blocks, llm.ToolUseBlock(llm.ToolCall{ID: fc.CallID, Name: fc.Name, Args: args}))
	}
	if text := resp.OutputText(); text != "" {
		blocks = append([]llm.ContentBlock{llm.TextBlock(text)}, blocks...)
	}
	if len(blocks) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "no usable output items")
	}

	hasToolUse := false
	for i := range blocks {
		if blocks[i].Type == llm.BlockToolUse {
			hasToolUse = true
			break
		}
	}
	stop := stopReason(string(resp.Status), string(resp.IncompleteDetails.Reason), hasToolUse)
	return llm.CompletionResponse{Blocks: blocks, StopReason: stop}, nil
}

// stopReason maps the Responses API terminal state onto the shared taxonomy.
// A response the API marks incomplete because it hit the output budget is a
// truncation, even when it managed to emit tool invocations first.
func stopReason(status, incompleteReason string, hasToolUse bool) llm.StopReason {
	if status == "incomplete" && incompleteReason == "max_output_tokens" {
		return llm.StopMaxTokens
	}
	if hasToolUse {
		return llm.StopToolUse
	}
	return llm.StopEndTurn
}

// flattenMessages serializes the transcript into a single labeled input
// string, with tool results inlined after their invocations.
func flattenMessages(req llm.CompletionRequest) string {
	var b strings.Builder
	if req.System != "" {
		fmt.Fprintf(&b, "System: %s\n\n", req.System)
	}
	for i := range req.Messages {
		msg := &req.Messages[i]
		switch {
		case msg.Role == llm.RoleAssistant:
			if text := msg.Text(); text != "" {
				fmt.Fprintf(&b, "Assistant: %s\n\n", text)
			}
			for _, call := range msg.ToolCalls() {
				raw, _ := json.Marshal(call.Args)
				fmt.Fprintf(&b, "Assistant called %s(%s)\n\n", call.Name, raw)
			}
		case len(msg.ToolResults) > 0:
			for j := range msg.ToolResults {
				fmt.Fprintf(&b, "Tool result: %s\n\n", msg.ToolResults[j].Content)
			}
		default:
			fmt.Fprintf(&b, "User: %s\n\n", msg.Text())
		}
	}
	return b.String()
}

func convertTools(defs []tools.ToolDefinition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		props := make(map[string]any, len(def.InputSchema.Properties))
		for name, p := range def.InputSchema.Properties {
			props[name] = propertySchema(&p)
		}
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters: openai.FunctionParameters(map[string]any{
					"type":       "object",
					"properties": props,
					"required":   def.InputSchema.Required,
				}),
			},
		})
	}
	return out
}

func propertySchema(p *tools.Property) map[string]any {
	schema := map[string]any{"type": p.Type}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		schema["enum"] = p.Enum
	}
	if p.Type == "array" && p.Items != nil {
		schema["items"] = propertySchema(p.Items)
	}
	if p.Type == "object" && len(p.Properties) > 0 {
		props := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			props[name] = propertySchema(&child)
		}
		schema["properties"] = props
	}
	return schema
}

func classifyError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return llmerrors.NewWithCause(llmerrors.TypeRateLimit, err, "openai rate limited")
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "503"):
		return llmerrors.NewWithCause(llmerrors.TypeOverloaded, err, "openai overloaded")
	case strings.Contains(msg, "401") || strings.Contains(msg, "invalid api key"):
		return llmerrors.NewWithCause(llmerrors.TypeAuth, err, "openai auth failed")
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "504"):
		return llmerrors.NewWithCause(llmerrors.TypeTransient, err, "openai server error")
	default:
		return llmerrors.NewWithCause(llmerrors.TypeUnknown, err, "openai call failed")
	}
}
