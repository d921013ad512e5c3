package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// toolDefsToMap converts provider-neutral ToolDefinition values into the
// OpenAI-style function-call maps the legacy wire clients expect.
func toolDefsToMap(tools []ToolDefinition) []map[string]any {
	if len(tools) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return out
}

func chatResponseToOutput(r *ChatResponse) *Output {
	return &Output{
		Message:      r.Message,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		Model:        r.Model,
	}
}

// AnthropicBackend adapts AnthropicClient to the Backend interface.
type AnthropicBackend struct {
	client *AnthropicClient
	model  string
	caps   Capabilities
}

// NewAnthropicBackend wraps an AnthropicClient as a Backend targeting
// model by default, advertising caps.
func NewAnthropicBackend(client *AnthropicClient, model string, caps Capabilities) *AnthropicBackend {
	return &AnthropicBackend{client: client, model: model, caps: caps}
}

// AnthropicBackendFactory builds an AnthropicBackend from a config map
// with keys "api_key" (string, required) and "model" (string, optional).
func AnthropicBackendFactory(logger *slog.Logger) Factory {
	return func(cfg map[string]any) (Backend, error) {
		apiKey, _ := cfg["api_key"].(string)
		if apiKey == "" {
			return nil, fmt.Errorf("llm: anthropic backend requires api_key")
		}
		model, _ := cfg["model"].(string)
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		client := NewAnthropicClient(apiKey, logger)
		return NewAnthropicBackend(client, model, Capabilities{
			Streaming:       true,
			Multimodal:      true,
			FunctionCalling: true,
			MaxContext:      200000,
			Modalities:      []string{"text", "image"},
			ThinkingDisplay: true,
		}), nil
	}
}

func (b *AnthropicBackend) ID() string                  { return "anthropic" }
func (b *AnthropicBackend) ModelName() string            { return b.model }
func (b *AnthropicBackend) Capabilities() Capabilities   { return b.caps }
func (b *AnthropicBackend) MaxContextLength() int        { return b.caps.MaxContext }
func (b *AnthropicBackend) Ping(ctx context.Context) error { return b.client.Ping(ctx) }

func (b *AnthropicBackend) model_(in Input) string {
	if in.Model != "" {
		return in.Model
	}
	return b.model
}

func (b *AnthropicBackend) Generate(ctx context.Context, in Input) (*Output, error) {
	resp, err := b.client.Chat(ctx, b.model_(in), in.Messages, toolDefsToMap(in.Tools))
	if err != nil {
		return nil, err
	}
	return chatResponseToOutput(resp), nil
}

func (b *AnthropicBackend) GenerateStream(ctx context.Context, in Input, callback StreamCallback) (*Output, error) {
	var cb StreamCallback
	if callback != nil {
		cb = func(chunk StreamChunk) error { return callback(chunk) }
	}
	resp, err := b.client.ChatStream(ctx, b.model_(in), in.Messages, toolDefsToMap(in.Tools), cb)
	if err != nil {
		return nil, err
	}
	return chatResponseToOutput(resp), nil
}

// OllamaBackend adapts OllamaClient to the Backend interface.
type OllamaBackend struct {
	client *OllamaClient
	model  string
	caps   Capabilities
}

// NewOllamaBackend wraps an OllamaClient as a Backend targeting model
// by default, advertising caps.
func NewOllamaBackend(client *OllamaClient, model string, caps Capabilities) *OllamaBackend {
	return &OllamaBackend{client: client, model: model, caps: caps}
}

// OllamaBackendFactory builds an OllamaBackend from a config map with
// keys "base_url" and "model" (both optional).
func OllamaBackendFactory(logger *slog.Logger) Factory {
	return func(cfg map[string]any) (Backend, error) {
		baseURL, _ := cfg["base_url"].(string)
		model, _ := cfg["model"].(string)
		if model == "" {
			model = "llama3.1"
		}
		client := NewOllamaClient(baseURL, logger)
		return NewOllamaBackend(client, model, Capabilities{
			Streaming:       true,
			Multimodal:      false,
			FunctionCalling: true,
			MaxContext:      32768,
			Modalities:      []string{"text"},
		}), nil
	}
}

func (b *OllamaBackend) ID() string                  { return "ollama" }
func (b *OllamaBackend) ModelName() string            { return b.model }
func (b *OllamaBackend) Capabilities() Capabilities   { return b.caps }
func (b *OllamaBackend) MaxContextLength() int        { return b.caps.MaxContext }
func (b *OllamaBackend) Ping(ctx context.Context) error { return b.client.Ping(ctx) }

func (b *OllamaBackend) model_(in Input) string {
	if in.Model != "" {
		return in.Model
	}
	return b.model
}

func (b *OllamaBackend) Generate(ctx context.Context, in Input) (*Output, error) {
	resp, err := b.client.Chat(ctx, b.model_(in), in.Messages, toolDefsToMap(in.Tools))
	if err != nil {
		return nil, err
	}
	return chatResponseToOutput(resp), nil
}

func (b *OllamaBackend) GenerateStream(ctx context.Context, in Input, callback StreamCallback) (*Output, error) {
	var cb StreamCallback
	if callback != nil {
		cb = func(chunk StreamChunk) error { return callback(chunk) }
	}
	resp, err := b.client.ChatStream(ctx, b.model_(in), in.Messages, toolDefsToMap(in.Tools), cb)
	if err != nil {
		return nil, err
	}
	return chatResponseToOutput(resp), nil
}
