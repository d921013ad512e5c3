package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// GeneratorDevice is the device-catalog view the generator matches
// free text against: a name plus the metrics and commands it exposes.
type GeneratorDevice struct {
	ID      string
	Name    string
	Metrics []string
	Commands []string
}

// GeneratedRule is the generator's output: a best-effort rule plus a
// confidence score and a list of things it couldn't resolve, so a
// caller can decide whether to ask the user for clarification.
type GeneratedRule struct {
	Rule       Rule
	Confidence float64
	Missing    []string
}

var metricKeywords = map[string]string{
	"temperature": "temperature", "temp": "temperature", "温度": "temperature",
	"humidity": "humidity", "湿度": "humidity",
	"motion": "motion", "occupancy": "motion",
	"status": "status", "state": "status", "状态": "status",
	"power": "power", "watt": "power", "功率": "power",
	"energy": "energy", "kwh": "energy",
	"battery": "battery",
	"brightness": "brightness", "light": "brightness", "lux": "brightness",
}

var operatorKeywords = []struct {
	keywords []string
	op       ComparisonOperator
}{
	{[]string{"above", "greater than", "more than", "exceeds", "over", "大于", "超过"}, OpGreaterThan},
	{[]string{"below", "less than", "under", "小于"}, OpLessThan},
	{[]string{"at least", "or more", ">="}, OpGreaterEqual},
	{[]string{"at most", "or less", "<="}, OpLessEqual},
	{[]string{"is not", "not equal", "!=", "不等于"}, OpNotEqual},
	{[]string{"is", "equals", "等于"}, OpEqual},
}

var numberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)
var durationRe = regexp.MustCompile(`(?:for|持续)\s*(\d+)\s*(second|minute|hour|秒|分钟|小时)`)

// GenerateRule turns a plain-language description into a best-effort
// Rule, matching device names by substring, metrics and operators by
// keyword (English and Chinese), and numeric thresholds by regex. It
// never errors: unresolvable parts are reported in Missing and the
// confidence score reflects how much of the description was understood.
func GenerateRule(text string, devices []GeneratorDevice) GeneratedRule {
	lower := strings.ToLower(text)
	var missing []string
	confidence := 0.0

	device, ok := matchDevice(lower, devices)
	if !ok {
		missing = append(missing, "device")
	} else {
		confidence += 0.3
	}

	metric, ok := matchMetric(lower)
	if !ok {
		missing = append(missing, "metric")
	} else {
		confidence += 0.25
	}

	op, ok := matchOperator(lower)
	if !ok {
		op = OpGreaterThan // sensible default, doesn't earn confidence
	} else {
		confidence += 0.15
	}

	threshold, ok := matchThreshold(lower)
	if !ok {
		missing = append(missing, "threshold")
	} else {
		confidence += 0.2
	}

	forSeconds, hasDuration := matchDuration(lower)
	if hasDuration {
		confidence += 0.1
	}

	action := inferAction(lower, device)
	if action.Kind != "" {
		confidence += 0.1 // room above the base components, so a fully-resolved rule can approach 1.0
	} else {
		action = Action{Kind: ActionNotify, Message: fmt.Sprintf("%s condition met", metric)}
	}

	cond := Condition{
		Kind:      CondDevice,
		DeviceID:  device.ID,
		Metric:    metric,
		Operator:  op,
		Threshold: threshold,
	}

	rule := Rule{
		Name:        fmt.Sprintf("%s %s", device.Name, metric),
		Condition:   cond,
		Actions:     []Action{action},
		ForSeconds:  forSeconds,
		Description: text,
	}

	return GeneratedRule{Rule: rule, Confidence: min1(confidence), Missing: missing}
}

func matchDevice(lower string, devices []GeneratorDevice) (GeneratorDevice, bool) {
	var best GeneratorDevice
	bestLen := 0
	for _, d := range devices {
		name := strings.ToLower(d.Name)
		if name == "" {
			continue
		}
		if strings.Contains(lower, name) && len(name) > bestLen {
			best = d
			bestLen = len(name)
		}
	}
	if bestLen > 0 {
		return best, true
	}
	return GeneratorDevice{}, false
}

func matchMetric(lower string) (string, bool) {
	var best string
	bestLen := 0
	for kw, metric := range metricKeywords {
		if strings.Contains(lower, kw) && len(kw) > bestLen {
			best = metric
			bestLen = len(kw)
		}
	}
	if bestLen > 0 {
		return best, true
	}
	return "", false
}

func matchOperator(lower string) (ComparisonOperator, bool) {
	for _, entry := range operatorKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.op, true
			}
		}
	}
	return "", false
}

func matchThreshold(lower string) (float64, bool) {
	m := numberRe.FindString(lower)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func matchDuration(lower string) (int, bool) {
	m := durationRe.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "minute", "分钟":
		return n * 60, true
	case "hour", "小时":
		return n * 3600, true
	default:
		return n, true
	}
}

func inferAction(lower string, device GeneratorDevice) Action {
	switch {
	case strings.Contains(lower, "notify") || strings.Contains(lower, "alert") || strings.Contains(lower, "send"):
		return Action{Kind: ActionNotify, Message: "Rule triggered"}
	case strings.Contains(lower, "turn on") || strings.Contains(lower, "turn off") || strings.Contains(lower, "switch"):
		cmd := "turn_on"
		if strings.Contains(lower, "turn off") {
			cmd = "turn_off"
		}
		if hasCommand(device, cmd) {
			return Action{Kind: ActionExecute, DeviceID: device.ID, Command: cmd}
		}
		return Action{}
	case strings.Contains(lower, "log"):
		return Action{Kind: ActionLog, Message: "Rule triggered"}
	default:
		return Action{}
	}
}

func hasCommand(device GeneratorDevice, cmd string) bool {
	for _, c := range device.Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// SupportedMetricKeywords returns the sorted, deduplicated list of
// metric names the generator can recognize, for help text or UI
// autocomplete.
func SupportedMetricKeywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range metricKeywords {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
