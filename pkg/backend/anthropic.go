package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MessagesClient is the subset of the Anthropic SDK used by the adapter. It is
// satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Stop        []string
	Timeout     time.Duration
}

func (c *AnthropicConfig) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if c.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.Timeout))
	}
	client := sdk.NewClient(opts...)
	return NewAnthropicChatModel(&client.Messages, *c)
}

// AnthropicChatModel adapts the Messages API to eino's tool-calling chat model.
type AnthropicChatModel struct {
	client MessagesClient
	cfg    AnthropicConfig
	tools  []sdk.ToolUnionParam
}

var _ model.ToolCallingChatModel = (*AnthropicChatModel)(nil)

func NewAnthropicChatModel(client MessagesClient, cfg AnthropicConfig) (*AnthropicChatModel, error) {
	if client == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("anthropic: model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	return &AnthropicChatModel{client: client, cfg: cfg}, nil
}

func (m *AnthropicChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	conversation, system, err := encodeAnthropicMessages(input)
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(m.cfg.MaxTokens),
		Messages:  conversation,
		Model:     sdk.Model(m.cfg.Model),
		System:    system,
		Tools:     m.tools,
	}
	if m.cfg.Temperature >= 0 {
		params.Temperature = sdk.Float(float64(m.cfg.Temperature))
	}
	if len(m.cfg.Stop) > 0 {
		params.StopSequences = m.cfg.Stop
	}

	msg, err := m.client.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return decodeAnthropicMessage(msg)
}

func (m *AnthropicChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("anthropic: streaming is not supported")
}

func (m *AnthropicChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	encoded, err := encodeAnthropicTools(tools)
	if err != nil {
		return nil, err
	}
	out := *m
	out.tools = encoded
	return &out, nil
}

func encodeAnthropicMessages(msgs []*schema.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var system []sdk.TextBlockParam
	var pendingResults []sdk.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			conversation = append(conversation, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, sdk.TextBlockParam{Text: text})
			}
		case schema.Tool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case schema.User:
			flushResults()
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		case schema.Assistant:
			flushResults()
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Function.Arguments)
				if len(strings.TrimSpace(call.Function.Arguments)) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, input, call.Function.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", msg.Role)
		}
	}
	flushResults()

	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user message is required")
	}
	return conversation, system, nil
}

func encodeAnthropicTools(tools []*schema.ToolInfo) ([]sdk.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, info := range tools {
		if info == nil || strings.TrimSpace(info.Name) == "" {
			continue
		}
		inputSchema, err := anthropicInputSchema(info)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", info.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(inputSchema, info.Name)
		if u.OfTool != nil && info.Desc != "" {
			u.OfTool.Description = sdk.String(info.Desc)
		}
		out = append(out, u)
	}
	return out, nil
}

func anthropicInputSchema(info *schema.ToolInfo) (sdk.ToolInputSchemaParam, error) {
	if info.ParamsOneOf == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	s, err := info.ParamsOneOf.ToOpenAPIV3()
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: fields}, nil
}

func decodeAnthropicMessage(msg *sdk.Message) (*schema.Message, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	var text strings.Builder
	var calls []schema.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			calls = append(calls, schema.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	return schema.AssistantMessage(text.String(), calls), nil
}
