package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/edgemind/internal/store"
	"github.com/cuemby/edgemind/internal/tools"
)

// DeviceCatalog supplies the device/extension inventory a rule is
// validated and generated against. A real implementation backs this
// with the device registry; tests can use a static map.
type DeviceCatalog interface {
	ValidationContext() (*ValidationContext, error)
	GeneratorDevices() ([]GeneratorDevice, error)
}

// storedRule is the persisted shape of one rule record.
type storedRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Rule        Rule   `json:"rule"`
}

// Engine is the concrete rule manager: it owns rule persistence
// (via the shared KV substrate), validation, and natural-language
// rule creation, and implements tools.RuleManager so the tool
// registry can dispatch list_rules/create_rule/etc. directly against
// it.
type Engine struct {
	catalog DeviceCatalog
	kv      *store.Store

	mu    sync.Mutex
	rules map[string]*storedRule
}

// NewEngine creates a rule engine backed by kv. Existing rules are
// loaded from TableRules immediately.
func NewEngine(kv *store.Store, catalog DeviceCatalog) (*Engine, error) {
	e := &Engine{catalog: catalog, kv: kv, rules: make(map[string]*storedRule)}
	if kv == nil {
		return e, nil
	}
	err := kv.ForEach(store.TableRules, func(key string, value []byte) error {
		var r storedRule
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("rules: decode %s: %w", key, err)
		}
		e.rules[r.ID] = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) save(r *storedRule) error {
	if e.kv == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return e.kv.Put(store.TableRules, r.ID, data)
}

// ListRules implements tools.RuleManager.
func (e *Engine) ListRules(_ context.Context) ([]tools.RuleInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]tools.RuleInfo, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, tools.RuleInfo{ID: r.ID, Name: r.Name, Description: r.Description, Enabled: r.Enabled})
	}
	return out, nil
}

// GetRule implements tools.RuleManager.
func (e *Engine) GetRule(_ context.Context, id string) (tools.RuleInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return tools.RuleInfo{}, fmt.Errorf("rule not found: %s", id)
	}
	return tools.RuleInfo{ID: r.ID, Name: r.Name, Description: r.Description, Enabled: r.Enabled}, nil
}

// CreateRuleFromText generates a rule from a natural-language
// description, validates it against the current device catalog, and
// persists it only if validation reports no errors.
func (e *Engine) CreateRuleFromText(_ context.Context, name, description string) (string, error) {
	devices, err := e.catalog.GeneratorDevices()
	if err != nil {
		return "", fmt.Errorf("load device catalog: %w", err)
	}
	generated := GenerateRule(description, devices)
	if len(generated.Missing) > 0 {
		return "", fmt.Errorf("could not resolve %v from the description; be more specific", generated.Missing)
	}

	vctx, err := e.catalog.ValidationContext()
	if err != nil {
		return "", fmt.Errorf("load validation context: %w", err)
	}
	result := ValidateRule(generated.Rule, vctx)
	if !result.Valid {
		return "", fmt.Errorf("rule failed validation: %+v", result.Errors)
	}

	id := uuid.NewString()
	r := &storedRule{ID: id, Name: name, Description: description, Enabled: true, Rule: generated.Rule}

	e.mu.Lock()
	e.rules[id] = r
	e.mu.Unlock()

	if err := e.save(r); err != nil {
		return "", fmt.Errorf("persist rule: %w", err)
	}
	return id, nil
}

// DeleteRule implements tools.RuleManager.
func (e *Engine) DeleteRule(_ context.Context, id string) error {
	e.mu.Lock()
	_, ok := e.rules[id]
	delete(e.rules, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	if e.kv != nil {
		return e.kv.Delete(store.TableRules, id)
	}
	return nil
}

// SetRuleEnabled implements tools.RuleManager.
func (e *Engine) SetRuleEnabled(_ context.Context, id string, enabled bool) error {
	e.mu.Lock()
	r, ok := e.rules[id]
	if ok {
		r.Enabled = enabled
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	return e.save(r)
}
