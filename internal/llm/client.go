package llm

import "context"

// Client is the legacy wire-client surface implemented by
// AnthropicClient and OllamaClient.
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)
	ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error)
	Ping(ctx context.Context) error
}

// Backend is the capability surface every LLM provider implements.
// It generalizes the legacy Client interface (Chat/ChatStream/Ping)
// into the provider-neutral Input/Output/StreamChunk shape so backends
// can be selected by capability rather than wired by name.
type Backend interface {
	// ID returns the backend's stable identifier (e.g. "anthropic", "ollama").
	ID() string

	// ModelName returns the default model this backend targets.
	ModelName() string

	// Capabilities reports what this backend supports.
	Capabilities() Capabilities

	// MaxContextLength returns the backend's context window, in tokens.
	MaxContextLength() int

	// Generate performs a non-streaming generation.
	Generate(ctx context.Context, in Input) (*Output, error)

	// GenerateStream performs a streaming generation, invoking callback
	// for each chunk. Returns the final assembled Output once the
	// stream completes.
	GenerateStream(ctx context.Context, in Input, callback StreamCallback) (*Output, error)

	// Ping checks whether the backend is currently reachable.
	Ping(ctx context.Context) error
}
