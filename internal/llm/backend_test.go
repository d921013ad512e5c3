package llm

import "testing"

func TestAnthropicBackendIdentity(t *testing.T) {
	b := NewAnthropicBackend(NewAnthropicClient("key", nil), "claude-sonnet-4-20250514", Capabilities{Streaming: true, MaxContext: 200000})
	if b.ID() != "anthropic" {
		t.Errorf("ID() = %q, want anthropic", b.ID())
	}
	if b.ModelName() != "claude-sonnet-4-20250514" {
		t.Errorf("ModelName() = %q", b.ModelName())
	}
	if b.MaxContextLength() != 200000 {
		t.Errorf("MaxContextLength() = %d, want 200000", b.MaxContextLength())
	}
}

func TestAnthropicBackendModelOverride(t *testing.T) {
	b := NewAnthropicBackend(NewAnthropicClient("key", nil), "default-model", Capabilities{})
	if got := b.model_(Input{}); got != "default-model" {
		t.Errorf("model_ with no override = %q, want default-model", got)
	}
	if got := b.model_(Input{Model: "override-model"}); got != "override-model" {
		t.Errorf("model_ with override = %q, want override-model", got)
	}
}

func TestOllamaBackendIdentity(t *testing.T) {
	b := NewOllamaBackend(NewOllamaClient("", nil), "llama3.1", Capabilities{Streaming: true, MaxContext: 32768})
	if b.ID() != "ollama" {
		t.Errorf("ID() = %q, want ollama", b.ID())
	}
	if b.ModelName() != "llama3.1" {
		t.Errorf("ModelName() = %q", b.ModelName())
	}
}

func TestAnthropicBackendFactoryRequiresAPIKey(t *testing.T) {
	factory := AnthropicBackendFactory(nil)
	if _, err := factory(map[string]any{}); err == nil {
		t.Fatal("expected error with no api_key")
	}
	b, err := factory(map[string]any{"api_key": "sk-test"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if b.ID() != "anthropic" {
		t.Errorf("factory built backend ID = %q", b.ID())
	}
}

func TestOllamaBackendFactoryDefaults(t *testing.T) {
	factory := OllamaBackendFactory(nil)
	b, err := factory(map[string]any{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if b.ModelName() != "llama3.1" {
		t.Errorf("default model = %q, want llama3.1", b.ModelName())
	}
}
