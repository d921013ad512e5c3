package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicSDKBackend is an alternate AnthropicBackend built directly on
// the official SDK rather than the hand-rolled HTTP/SSE client, useful
// when the deployment wants SDK-managed retries and request options.
type AnthropicSDKBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int
	caps      Capabilities
}

// NewAnthropicSDKBackend builds a Backend over the anthropic-sdk-go
// client.
func NewAnthropicSDKBackend(apiKey, model string, maxTokens int) *AnthropicSDKBackend {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &AnthropicSDKBackend{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
		caps: Capabilities{
			Streaming:       true,
			Multimodal:      true,
			FunctionCalling: true,
			MaxContext:      200000,
			Modalities:      []string{"text", "image"},
			ThinkingDisplay: true,
		},
	}
}

// AnthropicSDKBackendFactory builds an AnthropicSDKBackend from a config
// map with keys "api_key" (required), "model" and "max_tokens" (optional).
func AnthropicSDKBackendFactory(cfg map[string]any) (Backend, error) {
	apiKey, _ := cfg["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("llm: anthropic-sdk backend requires api_key")
	}
	model, _ := cfg["model"].(string)
	maxTokens, _ := cfg["max_tokens"].(int)
	return NewAnthropicSDKBackend(apiKey, model, maxTokens), nil
}

func (b *AnthropicSDKBackend) ID() string                  { return "anthropic-sdk" }
func (b *AnthropicSDKBackend) ModelName() string            { return b.model }
func (b *AnthropicSDKBackend) Capabilities() Capabilities   { return b.caps }
func (b *AnthropicSDKBackend) MaxContextLength() int        { return b.caps.MaxContext }

func (b *AnthropicSDKBackend) Ping(ctx context.Context) error {
	_, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: 1,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
	})
	return err
}

func (b *AnthropicSDKBackend) buildParams(in Input) anthropic.MessageNewParams {
	maxTokens := b.maxTokens
	if in.Params.MaxTokens > 0 {
		maxTokens = in.Params.MaxTokens
	}
	model := b.model
	if in.Model != "" {
		model = in.Model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if in.Params.Temperature > 0 {
		params.Temperature = anthropic.Float(in.Params.Temperature)
	}
	if in.Params.TopP > 0 {
		params.TopP = anthropic.Float(in.Params.TopP)
	}
	if len(in.Params.Stop) > 0 {
		params.StopSequences = in.Params.Stop
	}

	var msgs []anthropic.MessageParam
	for _, m := range in.Messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Function.Arguments, tc.Function.Name))
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params.Messages = msgs

	if len(in.Tools) > 0 {
		var tools []anthropic.ToolUnionParam
		for _, t := range in.Tools {
			schema := anthropic.ToolInputSchemaParam{}
			if props, ok := t.Parameters["properties"]; ok {
				schema.Properties = props
			}
			tp := anthropic.ToolUnionParamOfTool(schema, t.Name)
			tools = append(tools, tp)
		}
		params.Tools = tools
	}
	return params
}

func (b *AnthropicSDKBackend) Generate(ctx context.Context, in Input) (*Output, error) {
	resp, err := b.client.Messages.New(ctx, b.buildParams(in))
	if err != nil {
		return nil, fmt.Errorf("anthropic-sdk generate: %w", err)
	}

	var content string
	var toolCalls []ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			content += block.Text
		case "tool_use":
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err != nil {
				args = map[string]any{}
			}
			tc := ToolCall{ID: block.ID}
			tc.Function.Name = block.Name
			tc.Function.Arguments = args
			toolCalls = append(toolCalls, tc)
		}
	}

	return &Output{
		Message: Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		},
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Model:        string(resp.Model),
	}, nil
}

func (b *AnthropicSDKBackend) GenerateStream(ctx context.Context, in Input, callback StreamCallback) (*Output, error) {
	stream := b.client.Messages.NewStreaming(ctx, b.buildParams(in))

	var content string
	var toolCalls []ToolCall
	var currentTool *ToolCall
	var toolArgsJSON string
	var inputTokens, outputTokens int
	var model string

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			if event.Message.Model != "" {
				model = string(event.Message.Model)
			}
			inputTokens = int(event.Message.Usage.InputTokens)
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				currentTool = &ToolCall{ID: event.ContentBlock.ID}
				currentTool.Function.Name = event.ContentBlock.Name
				toolArgsJSON = ""
			}
		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				content += event.Delta.Text
				if callback != nil {
					if err := callback(StreamChunk{Text: event.Delta.Text}); err != nil {
						return nil, fmt.Errorf("stream callback: %w", err)
					}
				}
			case "input_json_delta":
				toolArgsJSON += event.Delta.PartialJSON
			}
		case "content_block_stop":
			if currentTool != nil {
				var args map[string]any
				if toolArgsJSON != "" {
					if err := json.Unmarshal([]byte(toolArgsJSON), &args); err != nil {
						args = map[string]any{"_raw": toolArgsJSON}
					}
				}
				currentTool.Function.Arguments = args
				toolCalls = append(toolCalls, *currentTool)
				currentTool = nil
			}
		case "message_delta":
			outputTokens = int(event.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic-sdk stream: %w", err)
	}

	return &Output{
		Message: Message{
			Role:      "assistant",
			Content:   content,
			ToolCalls: toolCalls,
		},
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Model:        model,
	}, nil
}
