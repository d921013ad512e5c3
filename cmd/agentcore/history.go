package main

import (
	"sync"

	"github.com/cuemby/edgemind/internal/agentrt"
	"github.com/cuemby/edgemind/internal/llm"
	"github.com/cuemby/edgemind/internal/memory"
)

// sessionHistory implements agentrt.HistoryStore over one short-term
// buffer per session. tokenBudget in Messages is ignored: the buffer
// already self-trims to its own configured token budget on Append, so
// there is nothing further to cut here.
type sessionHistory struct {
	maxTokens int

	mu      sync.Mutex
	buffers map[string]*memory.ShortTermBuffer
}

func newSessionHistory(maxTokens int) *sessionHistory {
	return &sessionHistory{maxTokens: maxTokens, buffers: make(map[string]*memory.ShortTermBuffer)}
}

func (h *sessionHistory) buffer(sessionID string) *memory.ShortTermBuffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.buffers[sessionID]
	if !ok {
		b = memory.NewShortTermBuffer(h.maxTokens)
		h.buffers[sessionID] = b
	}
	return b
}

func (h *sessionHistory) Messages(sessionID string, _ int) []llm.Message {
	msgs := h.buffer(sessionID).Messages()
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func (h *sessionHistory) Append(sessionID string, msg llm.Message) error {
	h.buffer(sessionID).Append(memory.Message{Role: msg.Role, Content: msg.Content})
	return nil
}

var _ agentrt.HistoryStore = (*sessionHistory)(nil)
