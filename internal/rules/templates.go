package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// TemplateParam describes one {parameter} placeholder in a template's
// skeleton text.
type TemplateParam struct {
	Name     string
	Required bool
	Default  string
	Description string
}

// RuleTemplate is a named, parameterized rule skeleton: free text with
// {parameter} placeholders, filled in by Fill to produce a concrete
// description suitable for GenerateRule.
type RuleTemplate struct {
	ID          string
	Name        string
	Description string
	Skeleton    string
	Params      []TemplateParam
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

func (t *RuleTemplate) param(name string) *TemplateParam {
	for i := range t.Params {
		if t.Params[i].Name == name {
			return &t.Params[i]
		}
	}
	return nil
}

// Fill substitutes every {parameter} placeholder in the skeleton with
// a supplied value, falling back to the parameter's default if unset.
// It errors on any required parameter left unresolved.
func (t *RuleTemplate) Fill(values map[string]string) (string, error) {
	var missing []string
	result := placeholderRe.ReplaceAllStringFunc(t.Skeleton, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := values[name]; ok && v != "" {
			return v
		}
		if p := t.param(name); p != nil {
			if p.Default != "" {
				return p.Default
			}
			if p.Required {
				missing = append(missing, name)
				return match
			}
			return ""
		}
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required parameter(s): %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// DefaultTemplates returns the built-in template catalog covering the
// common automation shapes: threshold alerts, sustained-threshold
// alerts, and switching a device when a metric condition is met.
func DefaultTemplates() []RuleTemplate {
	return []RuleTemplate{
		{
			ID:          "threshold_alert",
			Name:        "Threshold alert",
			Description: "Notify when a device metric crosses a threshold",
			Skeleton:    "When {device} {metric} is {operator} {threshold}, notify me",
			Params: []TemplateParam{
				{Name: "device", Required: true, Description: "device name"},
				{Name: "metric", Required: true, Description: "metric name"},
				{Name: "operator", Required: false, Default: "above", Description: "comparison operator"},
				{Name: "threshold", Required: true, Description: "numeric threshold"},
			},
		},
		{
			ID:          "sustained_threshold",
			Name:        "Sustained threshold alert",
			Description: "Notify when a metric stays past a threshold for a duration",
			Skeleton:    "When {device} {metric} is {operator} {threshold} for {duration}, notify me",
			Params: []TemplateParam{
				{Name: "device", Required: true},
				{Name: "metric", Required: true},
				{Name: "operator", Required: false, Default: "above"},
				{Name: "threshold", Required: true},
				{Name: "duration", Required: false, Default: "5 minutes"},
			},
		},
		{
			ID:          "switch_on_condition",
			Name:        "Switch on condition",
			Description: "Turn a device on or off when a metric condition is met",
			Skeleton:    "When {device} {metric} is {operator} {threshold}, turn on {target}",
			Params: []TemplateParam{
				{Name: "device", Required: true},
				{Name: "metric", Required: true},
				{Name: "operator", Required: false, Default: "above"},
				{Name: "threshold", Required: true},
				{Name: "target", Required: true, Description: "device to switch"},
			},
		},
	}
}

// FindTemplate looks up a template by id from DefaultTemplates.
func FindTemplate(id string) (*RuleTemplate, bool) {
	for _, t := range DefaultTemplates() {
		if t.ID == id {
			tc := t
			return &tc, true
		}
	}
	return nil, false
}
