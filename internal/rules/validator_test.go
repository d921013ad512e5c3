package rules

import "testing"

func testContext() *ValidationContext {
	min0, max100 := 0.0, 100.0
	return &ValidationContext{
		Devices: map[string]*DeviceInfo{
			"therm-1": {
				ID: "therm-1", Name: "Living Room Thermostat", Online: true,
				Metrics: []MetricInfo{
					{Name: "temp_c", DataType: MetricNumber, Min: &min0, Max: &max100},
					{Name: "occupied", DataType: MetricBoolean},
					{Name: "mode", DataType: MetricEnum, EnumValues: []string{"off", "heat", "cool"}},
				},
				Commands: []CommandInfo{
					{Name: "set_mode", Parameters: []CommandParam{{Name: "mode", Required: true}}},
				},
				Properties: []PropertyInfo{
					{Name: "brightness", Writable: true},
					{Name: "firmware_version", Writable: false},
				},
			},
			"sensor-offline": {ID: "sensor-offline", Name: "Offline Sensor", Online: false,
				Metrics: []MetricInfo{{Name: "temp_c", DataType: MetricNumber}}},
		},
		Extensions:    map[string]bool{"weather": true},
		AlertChannels: map[string]bool{"email": true},
	}
}

func TestValidateCondition_UnknownDevice(t *testing.T) {
	cond := Condition{Kind: CondDevice, DeviceID: "nope", Metric: "temp_c", Operator: OpGreaterThan, Threshold: 20}
	if _, err := ValidateCondition(cond, testContext()); err == nil {
		t.Fatal("expected error for unknown device")
	}
}

func TestValidateCondition_OfflineDeviceWarns(t *testing.T) {
	cond := Condition{Kind: CondDevice, DeviceID: "sensor-offline", Metric: "temp_c", Operator: OpGreaterThan, Threshold: 20}
	issues, err := ValidateCondition(cond, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(issues, "DEVICE_OFFLINE") {
		t.Error("expected DEVICE_OFFLINE warning")
	}
}

func TestValidateCondition_ThresholdOutOfRangeWarns(t *testing.T) {
	cond := Condition{Kind: CondDevice, DeviceID: "therm-1", Metric: "temp_c", Operator: OpGreaterThan, Threshold: 500}
	issues, err := ValidateCondition(cond, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(issues, "THRESHOLD_OUT_OF_RANGE") {
		t.Error("expected THRESHOLD_OUT_OF_RANGE warning")
	}
}

func TestValidateCondition_BooleanMetricRejectsBadOperator(t *testing.T) {
	cond := Condition{Kind: CondDevice, DeviceID: "therm-1", Metric: "occupied", Operator: OpGreaterThan, Threshold: 1}
	issues, err := ValidateCondition(cond, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssueSeverity(issues, "OPERATOR_NOT_COMPATIBLE", SeverityError) {
		t.Error("expected OPERATOR_NOT_COMPATIBLE error")
	}
}

func TestValidateCondition_BooleanMetricAllowsEquals(t *testing.T) {
	cond := Condition{Kind: CondDevice, DeviceID: "therm-1", Metric: "occupied", Operator: OpEqual, Threshold: 1}
	issues, err := ValidateCondition(cond, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasIssue(issues, "OPERATOR_NOT_COMPATIBLE") {
		t.Error("did not expect OPERATOR_NOT_COMPATIBLE for == on boolean")
	}
}

func TestValidateCondition_EnumOutOfBounds(t *testing.T) {
	cond := Condition{Kind: CondDevice, DeviceID: "therm-1", Metric: "mode", Operator: OpEqual, Threshold: 9}
	issues, err := ValidateCondition(cond, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssueSeverity(issues, "INVALID_ENUM_VALUE", SeverityError) {
		t.Error("expected INVALID_ENUM_VALUE error")
	}
}

func TestValidateCondition_AndOrRecurse(t *testing.T) {
	cond := Condition{Kind: CondAnd, Children: []Condition{
		{Kind: CondDevice, DeviceID: "therm-1", Metric: "temp_c", Operator: OpGreaterThan, Threshold: 20},
		{Kind: CondDevice, DeviceID: "nope", Metric: "temp_c", Operator: OpGreaterThan, Threshold: 20},
	}}
	if _, err := ValidateCondition(cond, testContext()); err == nil {
		t.Fatal("expected propagated error from child condition")
	}
}

func TestValidateCondition_NotRequiresSingleChild(t *testing.T) {
	cond := Condition{Kind: CondNot, Children: []Condition{}}
	if _, err := ValidateCondition(cond, testContext()); err == nil {
		t.Fatal("expected error for not condition with no children")
	}
}

func TestValidateCondition_ExtensionNotFound(t *testing.T) {
	cond := Condition{Kind: CondExtension, ExtensionID: "missing", Metric: "x", Operator: OpEqual, Threshold: 1}
	issues, err := ValidateCondition(cond, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssueSeverity(issues, "EXTENSION_NOT_FOUND", SeverityError) {
		t.Error("expected EXTENSION_NOT_FOUND error")
	}
}

func TestValidateAction_ExecuteMissingRequiredParam(t *testing.T) {
	a := Action{Kind: ActionExecute, DeviceID: "therm-1", Command: "set_mode", Params: map[string]string{}}
	issues, err := ValidateAction(a, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssueSeverity(issues, "MISSING_PARAMETER", SeverityError) {
		t.Error("expected MISSING_PARAMETER error")
	}
}

func TestValidateAction_ExecuteUnknownParamWarns(t *testing.T) {
	a := Action{Kind: ActionExecute, DeviceID: "therm-1", Command: "set_mode", Params: map[string]string{"mode": "heat", "extra": "x"}}
	issues, err := ValidateAction(a, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(issues, "UNKNOWN_PARAMETER") {
		t.Error("expected UNKNOWN_PARAMETER warning")
	}
}

func TestValidateAction_SetNonWritablePropertyErrors(t *testing.T) {
	a := Action{Kind: ActionSet, DeviceID: "therm-1", Property: "firmware_version", Value: "2.0"}
	issues, err := ValidateAction(a, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssueSeverity(issues, "PROPERTY_NOT_WRITABLE", SeverityError) {
		t.Error("expected PROPERTY_NOT_WRITABLE error")
	}
}

func TestValidateAction_HTTPRequestInvalidURL(t *testing.T) {
	a := Action{Kind: ActionHTTPRequest, URL: "not a url", Method: "GET"}
	issues, err := ValidateAction(a, testContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasIssue(issues, "INVALID_URL") {
		t.Error("expected INVALID_URL error")
	}
}

func TestValidateRule_ValidRuleHasNoErrors(t *testing.T) {
	rule := Rule{
		Name:      "high temp alert",
		Condition: Condition{Kind: CondDevice, DeviceID: "therm-1", Metric: "temp_c", Operator: OpGreaterThan, Threshold: 28},
		Actions:   []Action{{Kind: ActionNotify, Message: "hot", Channels: []string{"email"}}},
	}
	result := ValidateRule(rule, testContext())
	if !result.Valid {
		t.Errorf("expected valid rule, got errors: %+v", result.Errors)
	}
}

func TestValidateRule_PropagatesHardErrorAsInvalid(t *testing.T) {
	rule := Rule{
		Name:      "broken",
		Condition: Condition{Kind: CondDevice, DeviceID: "missing", Metric: "x", Operator: OpEqual, Threshold: 1},
		Actions:   []Action{{Kind: ActionNotify, Message: "x"}},
	}
	result := ValidateRule(rule, testContext())
	if result.Valid {
		t.Fatal("expected invalid rule")
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected a single synthetic error, got %d", len(result.Errors))
	}
}

func hasIssue(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func hasIssueSeverity(issues []Issue, code string, sev Severity) bool {
	for _, i := range issues {
		if i.Code == code && i.Severity == sev {
			return true
		}
	}
	return false
}
