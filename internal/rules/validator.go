package rules

import (
	"fmt"
	"net/url"
)

// Severity distinguishes a hard validation failure from an advisory.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, tagged with the field it concerns
// so a UI can highlight it.
type Issue struct {
	Code     string
	Message  string
	Field    string
	Severity Severity
}

// MetricDataType is the declared wire type of a device or extension
// metric, used to decide which operators and threshold shapes are
// valid for it.
type MetricDataType string

const (
	MetricNumber  MetricDataType = "number"
	MetricBoolean MetricDataType = "boolean"
	MetricString  MetricDataType = "string"
	MetricEnum    MetricDataType = "enum"
)

// MetricInfo describes one metric a device or extension exposes.
type MetricInfo struct {
	Name       string
	DataType   MetricDataType
	Min, Max   *float64
	EnumValues []string
}

// CommandParam describes one parameter a device command accepts.
type CommandParam struct {
	Name     string
	Required bool
}

// CommandInfo describes one command a device accepts.
type CommandInfo struct {
	Name       string
	Parameters []CommandParam
}

// PropertyInfo describes one writable device property.
type PropertyInfo struct {
	Name     string
	Writable bool
}

// DeviceInfo is the validation-time view of a device: its metrics,
// commands, properties, and current online state.
type DeviceInfo struct {
	ID         string
	Name       string
	Online     bool
	Metrics    []MetricInfo
	Commands   []CommandInfo
	Properties []PropertyInfo
}

func (d *DeviceInfo) metric(name string) *MetricInfo {
	for i := range d.Metrics {
		if d.Metrics[i].Name == name {
			return &d.Metrics[i]
		}
	}
	return nil
}

func (d *DeviceInfo) command(name string) *CommandInfo {
	for i := range d.Commands {
		if d.Commands[i].Name == name {
			return &d.Commands[i]
		}
	}
	return nil
}

func (d *DeviceInfo) property(name string) *PropertyInfo {
	for i := range d.Properties {
		if d.Properties[i].Name == name {
			return &d.Properties[i]
		}
	}
	return nil
}

// ValidationContext carries the resources a rule's condition/action
// tree is checked against.
type ValidationContext struct {
	Devices      map[string]*DeviceInfo
	Extensions   map[string]bool // registered extension ids
	AlertChannels map[string]bool
}

// ValidateCondition walks a condition tree, accumulating issues. It
// returns a hard error when a referenced device doesn't exist, when a
// device doesn't expose the referenced metric, when a not-condition
// doesn't have exactly one child, or when a condition kind is unknown;
// every other defect is reported as an Issue so the caller can decide
// severity itself.
func ValidateCondition(cond Condition, ctx *ValidationContext) ([]Issue, error) {
	var issues []Issue

	switch cond.Kind {
	case CondDevice:
		subIssues, err := validateDeviceCondition(cond.DeviceID, cond.Metric, cond.Operator, cond.Threshold, ctx)
		if err != nil {
			return nil, err
		}
		issues = append(issues, subIssues...)

	case CondDeviceRange:
		device, ok := ctx.Devices[cond.DeviceID]
		if !ok {
			return nil, fmt.Errorf("device not found: %s", cond.DeviceID)
		}
		if !device.Online {
			issues = append(issues, Issue{"DEVICE_OFFLINE", fmt.Sprintf("Device '%s' is currently offline", device.Name), "condition.device_id", SeverityWarning})
		}
		if device.metric(cond.Metric) == nil {
			return nil, fmt.Errorf("metric '%s' not supported by device '%s'", cond.Metric, cond.DeviceID)
		}

	case CondExtension, CondExtensionRange:
		if !ctx.Extensions[cond.ExtensionID] {
			issues = append(issues, Issue{"EXTENSION_NOT_FOUND", fmt.Sprintf("Extension '%s' is not registered", cond.ExtensionID), "condition.extension_id", SeverityError})
		}

	case CondAnd, CondOr:
		for _, child := range cond.Children {
			sub, err := ValidateCondition(child, ctx)
			if err != nil {
				return nil, err
			}
			issues = append(issues, sub...)
		}

	case CondNot:
		if len(cond.Children) != 1 {
			return nil, fmt.Errorf("not condition must have exactly one child")
		}
		sub, err := ValidateCondition(cond.Children[0], ctx)
		if err != nil {
			return nil, err
		}
		issues = append(issues, sub...)

	default:
		return nil, fmt.Errorf("unknown condition kind: %s", cond.Kind)
	}

	return issues, nil
}

func validateDeviceCondition(deviceID, metric string, op ComparisonOperator, threshold float64, ctx *ValidationContext) ([]Issue, error) {
	var issues []Issue

	device, ok := ctx.Devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device not found: %s", deviceID)
	}

	if !device.Online {
		issues = append(issues, Issue{"DEVICE_OFFLINE", fmt.Sprintf("Device '%s' is currently offline", device.Name), "condition.device_id", SeverityWarning})
	}

	m := device.metric(metric)
	if m == nil {
		return nil, fmt.Errorf("metric '%s' not supported by device '%s'", metric, deviceID)
	}

	if m.Min != nil && m.Max != nil && (threshold < *m.Min || threshold > *m.Max) {
		issues = append(issues, Issue{"THRESHOLD_OUT_OF_RANGE",
			fmt.Sprintf("Threshold %v is outside valid range [%v, %v]", threshold, *m.Min, *m.Max),
			"condition.threshold", SeverityWarning})
	}

	switch m.DataType {
	case MetricBoolean:
		if op != OpEqual && op != OpNotEqual {
			issues = append(issues, Issue{"OPERATOR_NOT_COMPATIBLE", "Only == and != operators are supported for boolean metrics", "condition.operator", SeverityError})
		}
		if threshold != 0 && threshold != 1 {
			issues = append(issues, Issue{"INVALID_BOOLEAN_THRESHOLD", "Boolean thresholds should be 0 (false) or 1 (true)", "condition.threshold", SeverityWarning})
		}
	case MetricEnum:
		idx := int(threshold)
		if idx < 0 || idx >= len(m.EnumValues) {
			issues = append(issues, Issue{"INVALID_ENUM_VALUE",
				fmt.Sprintf("Threshold %v is not a valid enum value (max: %d)", threshold, len(m.EnumValues)-1),
				"condition.threshold", SeverityError})
		}
	}

	return issues, nil
}

// ValidateAction checks one action against available resources.
func ValidateAction(a Action, ctx *ValidationContext) ([]Issue, error) {
	var issues []Issue

	switch a.Kind {
	case ActionNotify, ActionLog, ActionDelay, ActionCreateAlert:
		// No specific resources required.

	case ActionExecute:
		device, ok := ctx.Devices[a.DeviceID]
		if !ok {
			return nil, fmt.Errorf("device not found: %s", a.DeviceID)
		}
		cmd := device.command(a.Command)
		if cmd == nil {
			return nil, fmt.Errorf("command '%s' not supported by device '%s'", a.Command, a.DeviceID)
		}
		for _, p := range cmd.Parameters {
			if p.Required {
				if _, has := a.Params[p.Name]; !has {
					issues = append(issues, Issue{"MISSING_PARAMETER", fmt.Sprintf("Missing required parameter: %s", p.Name),
						fmt.Sprintf("actions.%s.params.%s", a.Command, p.Name), SeverityError})
				}
			}
		}
		for name := range a.Params {
			known := false
			for _, p := range cmd.Parameters {
				if p.Name == name {
					known = true
					break
				}
			}
			if !known {
				issues = append(issues, Issue{"UNKNOWN_PARAMETER", fmt.Sprintf("Unknown parameter: %s", name),
					fmt.Sprintf("actions.%s.params.%s", a.Command, name), SeverityWarning})
			}
		}

	case ActionSet:
		device, ok := ctx.Devices[a.DeviceID]
		if !ok {
			return nil, fmt.Errorf("device not found: %s", a.DeviceID)
		}
		prop := device.property(a.Property)
		if prop == nil || !prop.Writable {
			issues = append(issues, Issue{"PROPERTY_NOT_WRITABLE", fmt.Sprintf("Property '%s' is not writable or doesn't exist", a.Property),
				"actions.set.property", SeverityError})
		}

	case ActionHTTPRequest:
		if _, err := url.ParseRequestURI(a.URL); err != nil {
			issues = append(issues, Issue{"INVALID_URL", fmt.Sprintf("Invalid URL: %s", a.URL), "actions.http.url", SeverityError})
		}

	default:
		return nil, fmt.Errorf("unknown action kind: %s", a.Kind)
	}

	return issues, nil
}

// ValidationResult is the outcome of validating a full rule: issues
// split by severity, plus whether the rule is usable (no errors).
type ValidationResult struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// ValidateRule validates a rule's condition tree and every action,
// splitting the accumulated issues by severity. A hard error from
// ValidateCondition/ValidateAction (a missing device, an unknown kind)
// short-circuits validation with Valid=false and a single synthetic
// error issue carrying the message.
func ValidateRule(rule Rule, ctx *ValidationContext) ValidationResult {
	var errors, warnings []Issue

	condIssues, err := ValidateCondition(rule.Condition, ctx)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []Issue{{"VALIDATION_ERROR", err.Error(), "condition", SeverityError}}}
	}
	splitIssues(condIssues, &errors, &warnings)

	for i, a := range rule.Actions {
		actionIssues, err := ValidateAction(a, ctx)
		if err != nil {
			return ValidationResult{Valid: false, Errors: []Issue{{"VALIDATION_ERROR", fmt.Sprintf("action %d: %v", i, err), fmt.Sprintf("actions.%d", i), SeverityError}}}
		}
		splitIssues(actionIssues, &errors, &warnings)
	}

	return ValidationResult{Valid: len(errors) == 0, Errors: errors, Warnings: warnings}
}

func splitIssues(issues []Issue, errors, warnings *[]Issue) {
	for _, i := range issues {
		if i.Severity == SeverityError {
			*errors = append(*errors, i)
		} else {
			*warnings = append(*warnings, i)
		}
	}
}
