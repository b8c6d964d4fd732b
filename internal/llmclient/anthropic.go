package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient adapts Client to the Anthropic Messages API, grounded on
// features/model/anthropic/client.go in the teacher — trimmed to a single
// non-streaming turn (no thinking, no citations, no prompt caching) since
// AgentRunner's session loop (spec.md §4.6) never needs those.
type AnthropicClient struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

// MessagesClient is the subset of the Anthropic SDK this adapter calls,
// narrowed so tests can substitute a fake (same seam as the teacher's
// MessagesClient interface).
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// NewAnthropicClient builds an AnthropicClient from an Anthropic Messages
// client and defaults.
func NewAnthropicClient(msg MessagesClient, defaultModel string, maxTokens int, temperature float64) (*AnthropicClient, error) {
	if msg == nil {
		return nil, errors.New("llmclient: anthropic client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llmclient: default model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicClient{msg: msg, defaultModel: defaultModel, maxTokens: maxTokens, temperature: temperature}, nil
}

// NewAnthropicClientFromAPIKey builds an AnthropicClient using the SDK's
// default HTTP client configured from apiKey.
func NewAnthropicClientFromAPIKey(apiKey, defaultModel string, maxTokens int, temperature float64) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("llmclient: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClient(&c.Messages, defaultModel, maxTokens, temperature)
}

// Complete issues one Messages.New call and translates the result back into
// the provider-agnostic Response.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llmclient: messages are required")
	}
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("llmclient: anthropic messages.new: %w", err)
	}
	return translateAnthropicResponse(msg), nil
}

func (c *AnthropicClient) buildParams(req *Request) (*sdk.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := encodeAnthropicBlocks(m)
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleUser, RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("llmclient: at least one user/assistant message is required")
	}

	params := &sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
		Model:     sdk.Model(model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if t := req.Temperature; t > 0 {
		params.Temperature = sdk.Float(t)
	} else if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, 0, len(req.Tools))
		for _, def := range req.Tools {
			schema, err := anthropicInputSchema(def.ParamSchema)
			if err != nil {
				return nil, fmt.Errorf("llmclient: tool %q schema: %w", def.Name, err)
			}
			u := sdk.ToolUnionParamOfTool(schema, def.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(def.Description)
			}
			tools = append(tools, u)
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeAnthropicBlocks(m Message) []sdk.ContentBlockParamUnion {
	var blocks []sdk.ContentBlockParamUnion
	if m.Text != "" {
		blocks = append(blocks, sdk.NewTextBlock(m.Text))
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
	}
	for _, tr := range m.ToolResults {
		blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
	}
	return blocks
}

func anthropicInputSchema(schema []byte) (sdk.ToolInputSchemaParam, error) {
	if len(schema) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(schema, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateAnthropicResponse(msg *sdk.Message) *Response {
	resp := &Response{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			args, _ := block.Input.(map[string]any)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	resp.Usage = Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return resp
}
