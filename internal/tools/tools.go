// Package tools implements the callable-tool registry the agent runtime
// briefs the model with and dispatches `<tool_calls>` against. A Tool is
// polymorphic over name/description/JSON-Schema parameters/category, and
// the registry validates arguments against that schema before handing off
// to the tool's handler.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cuemby/edgemind/internal/scheduler"
	"github.com/cuemby/edgemind/internal/usage"
)

// Category classifies a tool for briefing and search filtering.
type Category string

const (
	CategoryDevice   Category = "device"
	CategoryData     Category = "data"
	CategoryAnalysis Category = "analysis"
	CategoryRule     Category = "rule"
	CategoryAlert    Category = "alert"
	CategoryAgent    Category = "agent"
	CategoryConfig   Category = "config"
	CategorySystem   Category = "system"
)

// Output is the structured result of a tool execution.
type Output struct {
	Success  bool           `json:"success"`
	Data     string         `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                       `json:"name"`
	Description string                                                       `json:"description"`
	Category    Category                                                    `json:"category,omitempty"`
	Parameters  map[string]any                                               `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`

	// AlwaysAvailable marks a tool that should survive tag-based filtering
	// even when untagged — meta-tools like request_capability that manage
	// the tag set itself rather than belonging to one.
	AlwaysAvailable bool `json:"-"`

	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
}

// compiledSchema lazily compiles Parameters into a jsonschema.Schema.
// A tool with no parameters has nothing to validate and always passes.
func (t *Tool) compiledSchema() (*jsonschema.Schema, error) {
	t.schemaOnce.Do(func() {
		if len(t.Parameters) == 0 {
			return
		}
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			t.schemaErr = fmt.Errorf("marshal schema for %s: %w", t.Name, err)
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.schemaErr = fmt.Errorf("decode schema for %s: %w", t.Name, err)
			return
		}
		c := jsonschema.NewCompiler()
		resource := "tool:" + t.Name
		if err := c.AddResource(resource, doc); err != nil {
			t.schemaErr = fmt.Errorf("add schema resource for %s: %w", t.Name, err)
			return
		}
		schema, err := c.Compile(resource)
		if err != nil {
			t.schemaErr = fmt.Errorf("compile schema for %s: %w", t.Name, err)
			return
		}
		t.schema = schema
	})
	return t.schema, t.schemaErr
}

// validate checks args against the tool's declared parameter schema.
// A nil schema (no parameters declared) always validates.
func (t *Tool) validate(args map[string]any) error {
	schema, err := t.compiledSchema()
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	// jsonschema validates decoded JSON values; round-trip through
	// encoding/json so numeric types match what Unmarshal would produce.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("argument validation: %w", err)
	}
	return nil
}

// Registry holds available tools.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*Tool
	tagIndex map[string][]string // tag → tool names

	devices    DeviceController
	rules      RuleManager
	scheduler  *scheduler.Scheduler
	fileTools  *FileTools
	shellExec  *ShellExec
	memory     *MemoryTools
	usageStore *usage.Store
}

// NewEmptyRegistry creates an empty tool registry with no built-in tools.
// Use this for testing or when constructing a registry manually.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// NewRegistry creates a tool registry with the ambient system tools
// (scheduling) registered. Domain-specific tool groups are
// wired in afterward via the Set* methods.
func NewRegistry(sched *scheduler.Scheduler) *Registry {
	r := &Registry{
		tools:     make(map[string]*Tool),
		scheduler: sched,
	}
	r.registerBuiltins()
	return r
}

// SetDeviceController adds device discovery/state/command tools to the
// registry, backed by dc. The controller is the one seam this package
// exposes toward whatever owns the live device graph (onboarding
// registry, a protocol bridge, or a test double) — tools never talk to
// a specific protocol directly.
func (r *Registry) SetDeviceController(dc DeviceController) {
	r.devices = dc
	r.registerDeviceTools()
}

// SetRuleManager adds rule listing/creation/deletion tools to the registry.
func (r *Registry) SetRuleManager(rm RuleManager) {
	r.rules = rm
	r.registerRuleTools()
}

// SetFileTools adds file operation tools to the registry.
func (r *Registry) SetFileTools(ft *FileTools) {
	r.fileTools = ft
	r.registerFileTools()
}

// SetShellExec adds shell execution tools to the registry.
func (r *Registry) SetShellExec(se *ShellExec) {
	r.shellExec = se
	r.registerShellExec()
}

// SetMemoryTools adds recall/remember tools backed by the tiered memory
// engine to the registry.
func (r *Registry) SetMemoryTools(mt *MemoryTools) {
	r.memory = mt
	r.registerMemoryTools()
}

// SetUsageStore adds the cost_summary tool to the registry.
func (r *Registry) SetUsageStore(store *usage.Store) {
	r.usageStore = store
	r.registerCostSummary()
}

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "schedule_task",
		Description: "Schedule a future action. Use for reminders, delayed automations, or recurring tasks.",
		Category:    CategoryAgent,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Human-readable name for the task",
				},
				"when": map[string]any{
					"type":        "string",
					"description": "When to run: ISO timestamp, duration (e.g., '30m', '2h'), or 'in 30 minutes'",
				},
				"action": map[string]any{
					"type":        "string",
					"description": "What to do when the task fires (message to process)",
				},
				"repeat": map[string]any{
					"type":        "string",
					"description": "Optional: repeat interval (e.g., '1h', '24h', 'daily')",
				},
			},
			"required": []string{"name", "when", "action"},
		},
		Handler: r.handleScheduleTask,
	})

	r.Register(&Tool{
		Name:        "list_tasks",
		Description: "List scheduled tasks.",
		Category:    CategoryAgent,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"enabled_only": map[string]any{
					"type":        "boolean",
					"description": "Only show enabled tasks (default: true)",
				},
			},
		},
		Handler: r.handleListTasks,
	})

	r.Register(&Tool{
		Name:        "cancel_task",
		Description: "Cancel a scheduled task.",
		Category:    CategoryAgent,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "The task ID to cancel",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleCancelTask,
	})
}

// Register adds a tool to the registry. Duplicate registration by name
// replaces the previous entry.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = make(map[string]*Tool)
	}
	r.tools[t.Name] = t
}

// Unregister removes a tool by name. A no-op if the tool is absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all tools for the LLM in OpenAI-style function schema form.
func (r *Registry) List() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Definitions returns the tool schema list used to brief the LLM,
// including the category. This is the canonical briefing surface;
// List() remains for the OpenAI-function-call wire shape.
func (r *Registry) Definitions() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]map[string]any, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"category":    t.Category,
			"parameters":  t.Parameters,
		})
	}
	return defs
}

// AllToolNames returns the names of all registered tools.
func (r *Registry) AllToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Search returns tools whose name or description contains keyword
// (case-insensitive). If categoryPrefix is non-empty, results are
// further restricted to tools whose category starts with it.
func (r *Registry) Search(keyword string, categoryPrefix string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keyword = strings.ToLower(keyword)
	categoryPrefix = strings.ToLower(categoryPrefix)

	var matches []*Tool
	for _, t := range r.tools {
		if categoryPrefix != "" && !strings.HasPrefix(strings.ToLower(string(t.Category)), categoryPrefix) {
			continue
		}
		if keyword == "" ||
			strings.Contains(strings.ToLower(t.Name), keyword) ||
			strings.Contains(strings.ToLower(t.Description), keyword) {
			matches = append(matches, t)
		}
	}
	return matches
}

// FilteredCopy creates a new Registry containing only the named tools.
// Tools not found in the source are silently skipped. The returned
// registry shares tool handlers with the source but has its own map.
func (r *Registry) FilteredCopy(names []string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	filtered := &Registry{tools: make(map[string]*Tool, len(names))}
	for _, name := range names {
		if t := r.tools[name]; t != nil {
			filtered.tools[name] = t
		}
	}
	return filtered
}

// FilteredCopyExcluding creates a new Registry containing all tools
// except those in the exclude list.
func (r *Registry) FilteredCopyExcluding(exclude []string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	filtered := &Registry{tools: make(map[string]*Tool, len(r.tools))}
	for name, t := range r.tools {
		if !skip[name] {
			filtered.tools[name] = t
		}
	}
	return filtered
}

// SetTagIndex builds the tag-to-tool mapping from config. Each tag
// name maps to a list of tool names. Tools not found in the registry
// are silently skipped (they may not be registered yet).
func (r *Registry) SetTagIndex(tags map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tagIndex = make(map[string][]string, len(tags))
	for tag, toolNames := range tags {
		r.tagIndex[tag] = toolNames
	}
}

// FilterByTags creates a new Registry containing only the tools that
// belong to at least one of the given tags. If tags is empty or the
// tag index is nil, returns a copy of the full registry.
func (r *Registry) FilterByTags(tags []string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(tags) == 0 || r.tagIndex == nil {
		filtered := &Registry{tools: make(map[string]*Tool, len(r.tools))}
		for name, t := range r.tools {
			filtered.tools[name] = t
		}
		return filtered
	}

	allowed := make(map[string]bool)
	for _, tag := range tags {
		for _, name := range r.tagIndex[tag] {
			allowed[name] = true
		}
	}

	filtered := &Registry{tools: make(map[string]*Tool, len(allowed))}
	for name := range allowed {
		if t := r.tools[name]; t != nil {
			filtered.tools[name] = t
		}
	}
	for name, t := range r.tools {
		if t.AlwaysAvailable {
			filtered.tools[name] = t
		}
	}
	return filtered
}

// TaggedToolNames returns the tool names belonging to a tag. Returns
// nil for unknown tags.
func (r *Registry) TaggedToolNames(tag string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tagIndex == nil {
		return nil
	}
	return r.tagIndex[tag]
}

// Execute runs a tool by name with given arguments, validating them
// against the tool's declared schema first. Returns *ErrToolUnavailable
// if name is not registered.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	r.mu.RLock()
	tool := r.tools[name]
	r.mu.RUnlock()
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	if err := tool.validate(args); err != nil {
		return "", err
	}

	return tool.Handler(ctx, args)
}

// Call is one request in an ExecuteParallel batch.
type Call struct {
	Name     string
	ArgsJSON string
}

// CallResult is the outcome of one Call, positioned at the same index
// as its Call in the input slice.
type CallResult struct {
	Name   string
	Result string
	Err    error
}

// ExecuteParallel runs each call concurrently and collects results in
// call order (not completion order).
func (r *Registry) ExecuteParallel(ctx context.Context, calls []Call) []CallResult {
	results := make([]CallResult, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c Call) {
			defer wg.Done()
			out, err := r.Execute(ctx, c.Name, c.ArgsJSON)
			results[i] = CallResult{Name: c.Name, Result: out, Err: err}
		}(i, c)
	}
	wg.Wait()
	return results
}

func (r *Registry) handleScheduleTask(ctx context.Context, args map[string]any) (string, error) {
	if r.scheduler == nil {
		return "", fmt.Errorf("scheduler not configured")
	}

	name, _ := args["name"].(string)
	when, _ := args["when"].(string)
	action, _ := args["action"].(string)
	repeat, _ := args["repeat"].(string)

	if name == "" || when == "" || action == "" {
		return "", fmt.Errorf("name, when, and action are required")
	}

	schedule, err := parseWhen(when, repeat)
	if err != nil {
		return "", fmt.Errorf("invalid schedule: %w", err)
	}

	task := &scheduler.Task{
		Name:     name,
		Schedule: schedule,
		Payload: scheduler.Payload{
			Kind: scheduler.PayloadWake,
			Data: map[string]any{"message": action},
		},
		Enabled:   true,
		CreatedBy: "agent",
	}

	if err := r.scheduler.CreateTask(task); err != nil {
		return "", err
	}

	nextRun, _ := task.NextRun(time.Now())
	return fmt.Sprintf("Task '%s' scheduled (ID: %s). Next run: %s", name, task.ID, nextRun.Format(time.RFC3339)), nil
}

func (r *Registry) handleListTasks(ctx context.Context, args map[string]any) (string, error) {
	if r.scheduler == nil {
		return "", fmt.Errorf("scheduler not configured")
	}

	enabledOnly := true
	if e, ok := args["enabled_only"].(bool); ok {
		enabledOnly = e
	}

	tasks, err := r.scheduler.ListTasks(enabledOnly)
	if err != nil {
		return "", err
	}

	if len(tasks) == 0 {
		return "No scheduled tasks.", nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Found %d task(s):\n", len(tasks)))

	for _, t := range tasks {
		next, hasNext := t.NextRun(time.Now())
		status := "enabled"
		if !t.Enabled {
			status = "disabled"
		}

		result.WriteString(fmt.Sprintf("- %s (%s): %s", t.Name, t.ID[:8], status))
		if hasNext {
			result.WriteString(fmt.Sprintf(", next: %s", next.Format("2006-01-02 15:04")))
		}
		result.WriteString("\n")
	}

	return result.String(), nil
}

func (r *Registry) handleCancelTask(ctx context.Context, args map[string]any) (string, error) {
	if r.scheduler == nil {
		return "", fmt.Errorf("scheduler not configured")
	}

	taskID, _ := args["task_id"].(string)
	if taskID == "" {
		return "", fmt.Errorf("task_id is required")
	}

	tasks, err := r.scheduler.ListTasks(false)
	if err != nil {
		return "", fmt.Errorf("failed to list tasks: %w", err)
	}
	var found *scheduler.Task
	for _, t := range tasks {
		if t.ID == taskID || strings.HasPrefix(t.ID, taskID) {
			found = t
			break
		}
	}

	if found == nil {
		return "", fmt.Errorf("task not found: %s", taskID)
	}

	if err := r.scheduler.DeleteTask(found.ID); err != nil {
		return "", err
	}

	return fmt.Sprintf("Task '%s' cancelled.", found.Name), nil
}

// parseWhen converts a human-friendly time specification to a Schedule.
func parseWhen(when, repeat string) (scheduler.Schedule, error) {
	now := time.Now()

	if dur, err := time.ParseDuration(when); err == nil {
		if repeat != "" {
			repeatDur, err := parseDuration(repeat)
			if err != nil {
				return scheduler.Schedule{}, fmt.Errorf("invalid repeat: %w", err)
			}
			return scheduler.Schedule{
				Kind:  scheduler.ScheduleEvery,
				Every: &scheduler.Duration{Duration: repeatDur},
			}, nil
		}
		at := now.Add(dur)
		return scheduler.Schedule{
			Kind: scheduler.ScheduleAt,
			At:   &at,
		}, nil
	}

	if strings.HasPrefix(strings.ToLower(when), "in ") {
		durStr := strings.TrimPrefix(strings.ToLower(when), "in ")
		dur, err := parseHumanDuration(durStr)
		if err == nil {
			at := now.Add(dur)
			return scheduler.Schedule{
				Kind: scheduler.ScheduleAt,
				At:   &at,
			}, nil
		}
	}

	if t, err := time.Parse(time.RFC3339, when); err == nil {
		return scheduler.Schedule{
			Kind: scheduler.ScheduleAt,
			At:   &t,
		}, nil
	}

	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"15:04",
		"3:04pm",
		"3:04 pm",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, when); err == nil {
			if format == "15:04" || format == "3:04pm" || format == "3:04 pm" {
				t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
				if t.Before(now) {
					t = t.Add(24 * time.Hour)
				}
			}
			return scheduler.Schedule{
				Kind: scheduler.ScheduleAt,
				At:   &t,
			}, nil
		}
	}

	return scheduler.Schedule{}, fmt.Errorf("could not parse time: %s", when)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "daily":
		return 24 * time.Hour, nil
	case "hourly":
		return time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}

func parseHumanDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.Fields(s)

	if len(parts) < 2 {
		return 0, fmt.Errorf("expected '<number> <unit>'")
	}

	var num int
	_, err := fmt.Sscanf(parts[0], "%d", &num)
	if err != nil {
		return 0, err
	}

	unit := strings.ToLower(parts[1])
	switch {
	case strings.HasPrefix(unit, "second"):
		return time.Duration(num) * time.Second, nil
	case strings.HasPrefix(unit, "minute"):
		return time.Duration(num) * time.Minute, nil
	case strings.HasPrefix(unit, "hour"):
		return time.Duration(num) * time.Hour, nil
	case strings.HasPrefix(unit, "day"):
		return time.Duration(num) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}
