package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client this
// adapter calls, grounded on features/model/bedrock/client.go in the
// teacher — trimmed to Converse only (no ConverseStream, no reasoning
// content, no prompt-cache checkpoints).
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockClient adapts Client to the AWS Bedrock Converse API.
type BedrockClient struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int
	temperature  float32
}

// NewBedrockClient builds a BedrockClient from a RuntimeClient and defaults.
func NewBedrockClient(runtime RuntimeClient, defaultModel string, maxTokens int, temperature float32) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("llmclient: bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("llmclient: default model identifier is required")
	}
	return &BedrockClient{runtime: runtime, defaultModel: defaultModel, maxTokens: maxTokens, temperature: temperature}, nil
}

// Complete issues one Converse call and translates the result.
func (c *BedrockClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llmclient: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	conversation, system := encodeBedrockMessages(req.Messages)
	if len(conversation) == 0 {
		return nil, errors.New("llmclient: at least one user/assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: conversation,
	}
	if len(system) > 0 {
		input.System = system
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temp := c.temperature
	if req.Temperature > 0 {
		temp = float32(req.Temperature)
	}
	if maxTokens > 0 || temp > 0 {
		cfg := &brtypes.InferenceConfiguration{}
		if maxTokens > 0 {
			mt := int32(maxTokens)
			cfg.MaxTokens = &mt
		}
		if temp > 0 {
			cfg.Temperature = &temp
		}
		input.InferenceConfig = cfg
	}

	if toolConfig, err := encodeBedrockTools(req.Tools); err != nil {
		return nil, err
	} else if toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("llmclient: bedrock converse: %w", err)
	}
	return translateBedrockResponse(out), nil
}

func encodeBedrockMessages(msgs []Message) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	var system []brtypes.SystemContentBlock

	for _, m := range msgs {
		var blocks []brtypes.ContentBlock
		if m.Text != "" {
			blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Text})
		}
		for _, tc := range m.ToolCalls {
			doc := document.NewLazyDocument(tc.Arguments)
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Name), Input: doc},
			})
		}
		for _, tr := range m.ToolResults {
			status := brtypes.ToolResultStatusSuccess
			if tr.IsError {
				status = brtypes.ToolResultStatusError
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Status:    status,
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleSystem:
			if m.Text != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Text})
			}
		case RoleUser, RoleTool:
			conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: blocks})
		case RoleAssistant:
			conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
		}
	}
	return conversation, system
}

func encodeBedrockTools(defs []ToolDef) (*brtypes.ToolConfiguration, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	var tools []brtypes.Tool
	for _, def := range defs {
		var schema map[string]any
		if len(def.ParamSchema) > 0 {
			if err := json.Unmarshal(def.ParamSchema, &schema); err != nil {
				return nil, fmt.Errorf("llmclient: tool %q schema: %w", def.Name, err)
			}
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(def.Name),
				Description: aws.String(def.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}, nil
}

func translateBedrockResponse(out *bedrockruntime.ConverseOutput) *Response {
	resp := &Response{StopReason: string(out.StopReason)}
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}
	for _, block := range msgOutput.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			resp.Text += v.Value
		case *brtypes.ContentBlockMemberToolUse:
			var args map[string]any
			_ = v.Value.Input.UnmarshalSmithyDocument(&args)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        aws.ToString(v.Value.ToolUseId),
				Name:      aws.ToString(v.Value.Name),
				Arguments: args,
			})
		}
	}
	if out.Usage != nil {
		resp.Usage = Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
		}
	}
	return resp
}
