// Package rules validates and generates automation rules: a condition
// tree over device/extension metrics, a list of actions to take when
// it's satisfied, and a deterministic natural-language generator that
// turns a plain-text description into a draft rule.
package rules

// ComparisonOperator is the set of operators a condition's threshold
// check may use.
type ComparisonOperator string

const (
	OpGreaterThan  ComparisonOperator = ">"
	OpLessThan     ComparisonOperator = "<"
	OpGreaterEqual ComparisonOperator = ">="
	OpLessEqual    ComparisonOperator = "<="
	OpEqual        ComparisonOperator = "=="
	OpNotEqual     ComparisonOperator = "!="
)

// ConditionKind distinguishes the condition tree's node types.
type ConditionKind string

const (
	CondDevice        ConditionKind = "device"
	CondDeviceRange   ConditionKind = "device_range"
	CondExtension     ConditionKind = "extension"
	CondExtensionRange ConditionKind = "extension_range"
	CondAnd          ConditionKind = "and"
	CondOr           ConditionKind = "or"
	CondNot          ConditionKind = "not"
)

// Condition is a node in the rule's condition tree. Only the fields
// relevant to Kind are populated; And/Or carry Children, Not carries
// exactly Children[0].
type Condition struct {
	Kind ConditionKind

	DeviceID    string
	ExtensionID string
	Metric      string
	Operator    ComparisonOperator
	Threshold   float64
	Min         float64
	Max         float64

	Children []Condition
}

// ActionKind distinguishes the action list's entry types.
type ActionKind string

const (
	ActionNotify      ActionKind = "notify"
	ActionExecute     ActionKind = "execute"
	ActionLog         ActionKind = "log"
	ActionSet         ActionKind = "set"
	ActionDelay       ActionKind = "delay"
	ActionCreateAlert ActionKind = "create_alert"
	ActionHTTPRequest ActionKind = "http_request"
)

// Action is one effect a rule takes when its condition is satisfied.
type Action struct {
	Kind ActionKind

	Message  string   // Notify, Log, CreateAlert
	Channels []string // Notify, CreateAlert

	DeviceID string            // Execute, Set
	Command  string            // Execute
	Params   map[string]string // Execute

	Property string // Set
	Value    string // Set

	DelaySeconds int // Delay

	URL    string // HTTPRequest
	Method string // HTTPRequest
}

// Rule is a complete, parsed automation rule: a condition tree, the
// actions to run when it's satisfied, and an optional sustained-for
// duration.
type Rule struct {
	Name        string
	Condition   Condition
	Actions     []Action
	ForSeconds  int
	Description string
}
