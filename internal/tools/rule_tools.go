package tools

import (
	"context"
	"fmt"
	"strings"
)

// RuleInfo is a summary of one automation rule as seen by the tool layer.
type RuleInfo struct {
	ID          string
	Name        string
	Description string
	Enabled     bool
}

// RuleManager is the seam between the tool registry and the rule
// validator/generator package. Implementations own persistence and
// validation; this package only dispatches.
type RuleManager interface {
	ListRules(ctx context.Context) ([]RuleInfo, error)
	GetRule(ctx context.Context, id string) (RuleInfo, error)
	// CreateRuleFromText validates and stores a rule described in
	// natural language, returning the created rule's ID.
	CreateRuleFromText(ctx context.Context, name, description string) (string, error)
	DeleteRule(ctx context.Context, id string) error
	SetRuleEnabled(ctx context.Context, id string, enabled bool) error
}

func (r *Registry) registerRuleTools() {
	if r.rules == nil {
		return
	}

	r.Register(&Tool{
		Name:        "list_rules",
		Description: "List configured automation rules.",
		Category:    CategoryRule,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			rules, err := r.rules.ListRules(ctx)
			if err != nil {
				return "", err
			}
			if len(rules) == 0 {
				return "No rules configured.", nil
			}
			var lines []string
			for _, rl := range rules {
				status := "enabled"
				if !rl.Enabled {
					status = "disabled"
				}
				lines = append(lines, fmt.Sprintf("- %s (%s): %s [%s]", rl.Name, rl.ID, rl.Description, status))
			}
			return fmt.Sprintf("Found %d rule(s):\n%s", len(rules), strings.Join(lines, "\n")), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_rule",
		Description: "Get details of a specific automation rule by ID.",
		Category:    CategoryRule,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rule_id": map[string]any{
					"type":        "string",
					"description": "The rule ID",
				},
			},
			"required": []string{"rule_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ruleID, _ := args["rule_id"].(string)
			if ruleID == "" {
				return "", fmt.Errorf("rule_id is required")
			}
			rl, err := r.rules.GetRule(ctx, ruleID)
			if err != nil {
				return "", err
			}
			status := "enabled"
			if !rl.Enabled {
				status = "disabled"
			}
			return fmt.Sprintf("%s (%s): %s [%s]", rl.Name, rl.ID, rl.Description, status), nil
		},
	})

	r.Register(&Tool{
		Name: "create_rule",
		Description: "Create a new automation rule from a natural-language description " +
			"(e.g., 'when the front door opens after 10pm, turn on the porch light'). " +
			"The description is parsed into trigger conditions and actions and validated before saving.",
		Category: CategoryRule,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Short name for the rule",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Natural-language description of the trigger and action",
				},
			},
			"required": []string{"name", "description"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["name"].(string)
			description, _ := args["description"].(string)
			if name == "" || description == "" {
				return "", fmt.Errorf("name and description are required")
			}
			id, err := r.rules.CreateRuleFromText(ctx, name, description)
			if err != nil {
				return "", fmt.Errorf("create rule: %w", err)
			}
			return fmt.Sprintf("Rule '%s' created (ID: %s).", name, id), nil
		},
	})

	r.Register(&Tool{
		Name:        "delete_rule",
		Description: "Delete an automation rule by ID.",
		Category:    CategoryRule,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rule_id": map[string]any{
					"type":        "string",
					"description": "The rule ID to delete",
				},
			},
			"required": []string{"rule_id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ruleID, _ := args["rule_id"].(string)
			if ruleID == "" {
				return "", fmt.Errorf("rule_id is required")
			}
			if err := r.rules.DeleteRule(ctx, ruleID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Rule %s deleted.", ruleID), nil
		},
	})

	r.Register(&Tool{
		Name:        "set_rule_enabled",
		Description: "Enable or disable an automation rule without deleting it.",
		Category:    CategoryRule,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rule_id": map[string]any{
					"type":        "string",
					"description": "The rule ID",
				},
				"enabled": map[string]any{
					"type":        "boolean",
					"description": "Whether the rule should be enabled",
				},
			},
			"required": []string{"rule_id", "enabled"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			ruleID, _ := args["rule_id"].(string)
			enabled, _ := args["enabled"].(bool)
			if ruleID == "" {
				return "", fmt.Errorf("rule_id is required")
			}
			if err := r.rules.SetRuleEnabled(ctx, ruleID, enabled); err != nil {
				return "", err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			return fmt.Sprintf("Rule %s %s.", ruleID, state), nil
		},
	})
}
