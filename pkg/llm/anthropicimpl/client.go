// Package anthropicimpl implements llm.Client on the official Anthropic SDK.
package anthropicimpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"outreach/pkg/llm"
	"outreach/pkg/llm/llmerrors"
	"outreach/pkg/tools"
)

// Client wraps the Anthropic SDK behind the llm.Client interface.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// ModelName returns the configured model identifier.
func (c *Client) ModelName() string {
	return c.model
}

// Complete performs one Messages API call.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewWithCause(llmerrors.TypeBadPrompt, err, "invalid transcript")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "no content blocks in response")
	}

	blocks, err := convertResponseBlocks(resp.Content)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	return llm.CompletionResponse{
		Blocks:     blocks,
		StopReason: convertStopReason(resp.StopReason),
	}, nil
}

// convertMessages maps transcript turns to SDK params, validating the
// tool-use pairing as it goes: the API rejects a tool_use block whose result
// is not in the immediately following user message.
func convertMessages(messages []llm.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var pendingToolIDs []string

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleUser:
			if len(msg.ToolResults) > 0 {
				if err := checkResultPairing(pendingToolIDs, msg.ToolResults); err != nil {
					return nil, err
				}
				pendingToolIDs = nil
				blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolResults))
				for j := range msg.ToolResults {
					r := &msg.ToolResults[j]
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfToolResult: &anthropic.ToolResultBlockParam{
							ToolUseID: r.ToolCallID,
							Content: []anthropic.ToolResultBlockParamContentUnion{
								{OfText: &anthropic.TextBlockParam{Text: r.Content}},
							},
						},
					})
				}
				out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: blocks})
				continue
			}
			if len(pendingToolIDs) > 0 {
				return nil, fmt.Errorf("tool results missing for %d invocation(s)", len(pendingToolIDs))
			}
			out = append(out, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{OfText: &anthropic.TextBlockParam{Text: msg.Text()}}},
			})

		case llm.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))
			for j := range msg.Blocks {
				b := &msg.Blocks[j]
				switch b.Type {
				case llm.BlockText:
					if b.Text == "" {
						continue
					}
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfText: &anthropic.TextBlockParam{Text: b.Text},
					})
				case llm.BlockToolUse:
					pendingToolIDs = append(pendingToolIDs, b.ToolUse.ID)
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    b.ToolUse.ID,
							Name:  b.ToolUse.Name,
							Input: b.ToolUse.Args,
						},
					})
				}
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})

		default:
			return nil, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}
	return out, nil
}

func checkResultPairing(pending []string, results []llm.ToolResult) error {
	if len(pending) != len(results) {
		return fmt.Errorf("tool result count %d does not match %d invocation(s)", len(results), len(pending))
	}
	for i := range results {
		if results[i].ToolCallID != pending[i] {
			return fmt.Errorf("tool result %d id %q does not match invocation id %q",
				i, results[i].ToolCallID, pending[i])
		}
	}
	return nil
}

func convertTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		props := make(map[string]any, len(def.InputSchema.Properties))
		for name, p := range def.InputSchema.Properties {
			props[name] = propertySchema(&p)
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   def.InputSchema.Required,
				},
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

func convertResponseBlocks(content []anthropic.ContentBlockUnion) ([]llm.ContentBlock, error) {
	var blocks []llm.ContentBlock
	for i := range content {
		block := &content[i]
		switch block.Type {
		case "text":
			blocks = append(blocks, llm.TextBlock(block.AsText().Text))
		case "tool_use":
			tu := block.AsToolUse()
			args := make(map[string]any)
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					return nil, llmerrors.NewWithCause(llmerrors.TypeUnknown, err,
						"undecodable input for tool %s", tu.Name)
				}
			}
			blocks = append(blocks, llm.ToolUseBlock(llm.ToolCall{ID: tu.ID, Name: tu.Name, Args: args}))
		default:
			// thinking and other block types are not part of the transcript
		}
	}
	return blocks, nil
}

func convertStopReason(r anthropic.StopReason) llm.StopReason {
	switch r {
	case anthropic.StopReasonMaxTokens:
		return llm.StopMaxTokens
	case anthropic.StopReasonToolUse:
		return llm.StopToolUse
	default:
		return llm.StopEndTurn
	}
}

// classifyError maps SDK failures onto the retry taxonomy.
func classifyError(err error) error {
	statusCode := 0
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		statusCode = apierr.StatusCode
	}

	msg := strings.ToLower(err.Error())
	switch {
	case statusCode == 429 || strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return llmerrors.NewWithCause(llmerrors.TypeRateLimit, err, "anthropic rate limited")
	case statusCode == 529 || strings.Contains(msg, "overloaded") || strings.Contains(msg, "529"):
		return llmerrors.NewWithCause(llmerrors.TypeOverloaded, err, "anthropic overloaded")
	case statusCode == 401 || statusCode == 403 || strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		return llmerrors.NewWithCause(llmerrors.TypeAuth, err, "anthropic auth failed")
	case statusCode == 400 || strings.Contains(msg, "invalid_request"):
		return llmerrors.NewWithCause(llmerrors.TypeBadPrompt, err, "anthropic rejected request")
	case statusCode >= 500:
		return llmerrors.NewWithStatus(llmerrors.TypeTransient, statusCode, "anthropic server error: %v", err)
	default:
		return llmerrors.NewWithCause(llmerrors.TypeUnknown, err, "anthropic call failed")
	}
}
