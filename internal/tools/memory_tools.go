package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/edgemind/internal/memory"
)

// MemoryTools wires the agent-facing recall/remember tools to the
// tiered memory engine and its long-term knowledge store.
type MemoryTools struct {
	engine    *memory.Engine
	longTerm  *memory.LongTermStore
}

// NewMemoryTools builds a MemoryTools over an already-constructed
// engine and long-term store (the same *LongTermStore the engine was
// built with, passed separately since writes bypass Engine.Query).
func NewMemoryTools(engine *memory.Engine, longTerm *memory.LongTermStore) *MemoryTools {
	return &MemoryTools{engine: engine, longTerm: longTerm}
}

func (r *Registry) registerMemoryTools() {
	if r.memory == nil {
		return
	}

	r.Register(&Tool{
		Name: "recall_memory",
		Description: "Search memory for relevant context: recent conversation, past sessions, or durable " +
			"knowledge (facts, procedures, preferences, best practices). Layer routing is automatic unless " +
			"you specify one.",
		Category: CategoryData,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search for",
				},
				"layer": map[string]any{
					"type":        "string",
					"enum":        []string{"short", "mid", "long", "all"},
					"description": "Restrict the search to one memory layer (optional — default is heuristic routing)",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (default 5)",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleRecallMemory,
	})

	r.Register(&Tool{
		Name: "remember_knowledge",
		Description: "Store a durable piece of knowledge for later recall: a fact, a procedure, a best " +
			"practice, or a preference. Use for information that should persist beyond the current session.",
		Category: CategoryData,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"enum":        []string{"BestPractice", "Fact", "Procedure", "Preference"},
					"description": "Category for organizing the knowledge entry",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Short title for this knowledge entry",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "The information to remember",
				},
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional tags for search",
				},
			},
			"required": []string{"category", "title", "content"},
		},
		Handler: r.handleRememberKnowledge,
	})
}

func (r *Registry) handleRecallMemory(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	layer := memory.Layer("")
	if l, ok := args["layer"].(string); ok && l != "" {
		layer = memory.Layer(l)
	}

	maxResults := 5
	if m, ok := args["max_results"].(float64); ok && m > 0 {
		maxResults = int(m)
	}

	results, err := r.memory.engine.Query(memory.MemoryQuery{
		Query:      query,
		Layer:      layer,
		MaxResults: maxResults,
	})
	if err != nil {
		return "", fmt.Errorf("query memory: %w", err)
	}

	if len(results) == 0 {
		return "No matching memory found.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n", len(results)))
	for _, res := range results {
		sb.WriteString(fmt.Sprintf("- [%s, score %.2f] %s\n", res.Layer, res.Score, res.Content))
	}
	return sb.String(), nil
}

func (r *Registry) handleRememberKnowledge(ctx context.Context, args map[string]any) (string, error) {
	category, _ := args["category"].(string)
	title, _ := args["title"].(string)
	content, _ := args["content"].(string)
	if category == "" || title == "" || content == "" {
		return "", fmt.Errorf("category, title, and content are required")
	}

	var tags []string
	if raw, ok := args["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	id, err := r.memory.longTerm.Add(memory.KnowledgeEntry{
		Category: memory.KnowledgeCategory(category),
		Title:    title,
		Content:  content,
		Tags:     tags,
	})
	if err != nil {
		return "", fmt.Errorf("remember knowledge: %w", err)
	}

	return fmt.Sprintf("Knowledge entry '%s' saved (ID: %s).", title, id), nil
}
