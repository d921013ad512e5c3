package rules

import "testing"

func testDevices() []GeneratorDevice {
	return []GeneratorDevice{
		{ID: "therm-1", Name: "Living Room Thermostat", Metrics: []string{"temp_c"}, Commands: []string{"set_mode"}},
		{ID: "fan-1", Name: "Bedroom Fan", Metrics: []string{"status"}, Commands: []string{"turn_on", "turn_off"}},
	}
}

func TestGenerateRule_BasicThreshold(t *testing.T) {
	r := GenerateRule("Notify me when Living Room Thermostat temperature is above 28", testDevices())
	if r.Rule.Condition.DeviceID != "therm-1" {
		t.Errorf("device id = %q, want therm-1", r.Rule.Condition.DeviceID)
	}
	if r.Rule.Condition.Metric != "temperature" {
		t.Errorf("metric = %q, want temperature", r.Rule.Condition.Metric)
	}
	if r.Rule.Condition.Operator != OpGreaterThan {
		t.Errorf("operator = %q, want >", r.Rule.Condition.Operator)
	}
	if r.Rule.Condition.Threshold != 28 {
		t.Errorf("threshold = %v, want 28", r.Rule.Condition.Threshold)
	}
	if len(r.Missing) != 0 {
		t.Errorf("missing = %v, want none", r.Missing)
	}
}

func TestGenerateRule_ChineseKeywords(t *testing.T) {
	r := GenerateRule("当 Living Room Thermostat 温度 大于 30, 通知我", testDevices())
	if r.Rule.Condition.Metric != "temperature" {
		t.Errorf("metric = %q, want temperature", r.Rule.Condition.Metric)
	}
	if r.Rule.Condition.Operator != OpGreaterThan {
		t.Errorf("operator = %q, want >", r.Rule.Condition.Operator)
	}
	if r.Rule.Condition.Threshold != 30 {
		t.Errorf("threshold = %v, want 30", r.Rule.Condition.Threshold)
	}
}

func TestGenerateRule_MissingDeviceReportsConfidenceGap(t *testing.T) {
	r := GenerateRule("when temperature is above 28, notify me", testDevices())
	found := false
	for _, m := range r.Missing {
		if m == "device" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'device' in missing, got %v", r.Missing)
	}
	if r.Confidence >= 1.0 {
		t.Errorf("confidence = %v, expected less than 1.0 without a matched device", r.Confidence)
	}
}

func TestGenerateRule_DurationExtraction(t *testing.T) {
	r := GenerateRule("when Living Room Thermostat temperature is above 28 for 5 minutes, notify me", testDevices())
	if r.Rule.ForSeconds != 300 {
		t.Errorf("for_seconds = %d, want 300", r.Rule.ForSeconds)
	}
}

func TestGenerateRule_SwitchActionInference(t *testing.T) {
	r := GenerateRule("when Bedroom Fan status is equals 1, turn on Bedroom Fan", testDevices())
	if len(r.Rule.Actions) != 1 {
		t.Fatalf("expected one action, got %d", len(r.Rule.Actions))
	}
	a := r.Rule.Actions[0]
	if a.Kind != ActionExecute || a.Command != "turn_on" {
		t.Errorf("action = %+v, want execute/turn_on", a)
	}
}

func TestGenerateRule_DefaultsToNotifyAction(t *testing.T) {
	r := GenerateRule("when Living Room Thermostat temperature is above 28", testDevices())
	if r.Rule.Actions[0].Kind != ActionNotify {
		t.Errorf("action kind = %v, want notify default", r.Rule.Actions[0].Kind)
	}
}

func TestSupportedMetricKeywords_SortedAndDeduped(t *testing.T) {
	kws := SupportedMetricKeywords()
	for i := 1; i < len(kws); i++ {
		if kws[i-1] >= kws[i] {
			t.Fatalf("not sorted/deduped at index %d: %v", i, kws)
		}
	}
}
