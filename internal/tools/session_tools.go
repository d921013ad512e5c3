package tools

import (
	"context"
	"fmt"
)

// SessionManager is the seam between the tool registry and the
// streaming agent runtime's session lifecycle. Implementations own the
// actual conversation state (message history, checkpoints, forked
// sessions); this package only dispatches into it.
type SessionManager interface {
	// CloseSession ends a conversation, archiving its history. carryForward,
	// when non-empty, is injected as context into whatever session follows.
	CloseSession(conversationID, reason, carryForward string) error
	// CheckpointSession records a named restore point without closing
	// the conversation.
	CheckpointSession(conversationID, label string) error
	// SplitSession forks the conversation at messageIndex into a new
	// conversation seeded with carryForward, leaving the original intact.
	SplitSession(conversationID string, messageIndex int, carryForward string) error
}

// SetSessionManager adds session lifecycle tools to the registry.
func (r *Registry) SetSessionManager(mgr SessionManager) {
	r.Register(&Tool{
		Name: "session_close",
		Description: "Close the current session, archiving its history. ONLY use when the user " +
			"EXPLICITLY asks to end the conversation, start over, or clear history. NEVER call this " +
			"tool on your own initiative. Pass carry_forward with anything the next session needs to " +
			"know — it will NOT inherit this session's context automatically.",
		Category: CategoryAgent,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Brief reason for closing the session (logged for debugging)",
				},
				"carry_forward": map[string]any{
					"type":        "string",
					"description": "Context to inject into the next session, if any",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			reason, _ := args["reason"].(string)
			if reason == "" {
				reason = "user request"
			}

			carryForward := firstNonEmptyString(args, "carry_forward", "handoff_note", "summary", "handoff")

			conversationID := ConversationIDFromContext(ctx)
			if err := mgr.CloseSession(conversationID, reason, carryForward); err != nil {
				return "", err
			}

			if carryForward == "" {
				return fmt.Sprintf(
					"Session closed. Reason: %s. WARNING: No carry-forward content received — "+
						"the next session will start with no memory of this one.", reason,
				), nil
			}
			return fmt.Sprintf(
				"Session closed. Reason: %s. Carry-forward injected into the next session.", reason,
			), nil
		},
	})

	r.Register(&Tool{
		Name:        "session_checkpoint",
		Description: "Record a named checkpoint in the current session without closing it, so it can be restored later.",
		Category:    CategoryAgent,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"label": map[string]any{
					"type":        "string",
					"description": "Short label identifying this checkpoint",
				},
			},
			"required": []string{"label"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			label, _ := args["label"].(string)
			if label == "" {
				return "", fmt.Errorf("label is required")
			}
			conversationID := ConversationIDFromContext(ctx)
			if err := mgr.CheckpointSession(conversationID, label); err != nil {
				return "", err
			}
			return fmt.Sprintf("Checkpoint '%s' recorded.", label), nil
		},
	})

	r.Register(&Tool{
		Name: "session_split",
		Description: "Fork the conversation at a given message index into a new session, carrying forward " +
			"the given context. Use to branch off a tangent without losing the main thread.",
		Category: CategoryAgent,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message_index": map[string]any{
					"type":        "integer",
					"description": "Index of the message to split at",
				},
				"carry_forward": map[string]any{
					"type":        "string",
					"description": "Context to seed the new session with",
				},
			},
			"required": []string{"message_index"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			idx, _ := args["message_index"].(float64)
			carryForward, _ := args["carry_forward"].(string)
			conversationID := ConversationIDFromContext(ctx)
			if err := mgr.SplitSession(conversationID, int(idx), carryForward); err != nil {
				return "", err
			}
			return "Session split.", nil
		},
	})
}

// firstNonEmptyString returns the first non-empty string value found
// among keys, in order. The canonical key always wins when present and
// non-empty; later keys are aliases used by less disciplined callers.
func firstNonEmptyString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
