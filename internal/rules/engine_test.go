package rules

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/edgemind/internal/store"
	"github.com/cuemby/edgemind/internal/tools"
)

// staticCatalog is a fixed device inventory for engine tests: one
// thermostat with a numeric temperature metric.
type staticCatalog struct{}

func (staticCatalog) ValidationContext() (*ValidationContext, error) {
	return &ValidationContext{
		Devices: map[string]*DeviceInfo{
			"thermostat-1": {
				ID:     "thermostat-1",
				Name:   "thermostat",
				Online: true,
				Metrics: []MetricInfo{
					{Name: "temperature", DataType: MetricNumber},
				},
			},
		},
		Extensions:    map[string]bool{},
		AlertChannels: map[string]bool{},
	}, nil
}

func (staticCatalog) GeneratorDevices() ([]GeneratorDevice, error) {
	return []GeneratorDevice{
		{ID: "thermostat-1", Name: "thermostat", Metrics: []string{"temperature"}},
	}, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEngine_CreateListGetDelete(t *testing.T) {
	kv := openTestStore(t)
	e, err := NewEngine(kv, staticCatalog{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	id, err := e.CreateRuleFromText(context.Background(), "hot room",
		"when thermostat temperature is above 28 notify me")
	if err != nil {
		t.Fatalf("CreateRuleFromText: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty rule id")
	}

	list, err := e.ListRules(context.Background())
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("ListRules = %+v, want one rule with id %s", list, id)
	}

	got, err := e.GetRule(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Name != "hot room" || !got.Enabled {
		t.Fatalf("GetRule = %+v, want name=hot room enabled=true", got)
	}

	if err := e.SetRuleEnabled(context.Background(), id, false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}
	got, err = e.GetRule(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRule after disable: %v", err)
	}
	if got.Enabled {
		t.Fatal("expected rule to be disabled")
	}

	if err := e.DeleteRule(context.Background(), id); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := e.GetRule(context.Background(), id); err == nil {
		t.Fatal("expected GetRule to fail after delete")
	}
}

func TestEngine_CreateRuleFromText_RejectsUnresolvedDescription(t *testing.T) {
	kv := openTestStore(t)
	e, err := NewEngine(kv, staticCatalog{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = e.CreateRuleFromText(context.Background(), "nonsense",
		"do the thing when the sprocket whirls funny")
	if err == nil {
		t.Fatal("expected an error for a description the generator can't resolve")
	}
}

func TestEngine_CreateRuleFromText_RejectsUnknownDevice(t *testing.T) {
	kv := openTestStore(t)
	e, err := NewEngine(kv, emptyCatalog{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	_, err = e.CreateRuleFromText(context.Background(), "ghost device",
		"when thermostat temperature is above 28 notify me")
	if err == nil {
		t.Fatal("expected validation to fail: thermostat is not in the validation context")
	}
}

// emptyCatalog reports the same generator device list as staticCatalog
// (so GenerateRule resolves the description) but an empty validation
// context, so ValidateRule fails with a missing-device error.
type emptyCatalog struct{}

func (emptyCatalog) ValidationContext() (*ValidationContext, error) {
	return &ValidationContext{Devices: map[string]*DeviceInfo{}}, nil
}

func (emptyCatalog) GeneratorDevices() ([]GeneratorDevice, error) {
	return staticCatalog{}.GeneratorDevices()
}

func TestEngine_PersistsAcrossInstances(t *testing.T) {
	kv := openTestStore(t)

	e1, err := NewEngine(kv, staticCatalog{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	id, err := e1.CreateRuleFromText(context.Background(), "hot room",
		"when thermostat temperature is above 28 notify me")
	if err != nil {
		t.Fatalf("CreateRuleFromText: %v", err)
	}

	e2, err := NewEngine(kv, staticCatalog{})
	if err != nil {
		t.Fatalf("NewEngine (reload): %v", err)
	}
	got, err := e2.GetRule(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRule on reloaded engine: %v", err)
	}
	if got.Name != "hot room" {
		t.Fatalf("reloaded rule name = %q, want %q", got.Name, "hot room")
	}
}

var _ tools.RuleManager = (*Engine)(nil)
