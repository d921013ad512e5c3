package onboarding

import (
	"fmt"
	"sort"
	"strings"
)

// semanticKeywords maps path/key substrings to the semantic type they
// suggest, checked in order so more specific terms win ties (e.g.
// "humidity" before a bare "hum" would be ambiguous, so only distinct
// tokens are listed).
var semanticKeywords = []struct {
	substr   string
	semantic SemanticType
}{
	{"temp", SemanticTemperature},
	{"humid", SemanticHumidity},
	{"motion", SemanticMotion},
	{"occupancy", SemanticMotion},
	{"lux", SemanticLight},
	{"illuminance", SemanticLight},
	{"brightness", SemanticLight},
	{"switch", SemanticSwitch},
	{"relay", SemanticSwitch},
	{"power", SemanticPower},
	{"watt", SemanticPower},
	{"energy", SemanticEnergy},
	{"kwh", SemanticEnergy},
	{"battery", SemanticBattery},
}

// ExtractMetrics walks a set of sample payloads and infers a
// DiscoveredMetric for each distinct leaf path, using a deterministic
// rule-based classifier: value shape decides DataType, and path/key
// text decides SemanticType. This is the fallback path the spec
// describes for an LLM-backed analyzer; Manager.AnalyzeDevice prefers
// an injected MetricClassifier when one is given and only falls back to
// this when the classifier returns no metrics at all.
func ExtractMetrics(samples []DeviceSample) []DiscoveredMetric {
	seen := make(map[string]DiscoveredMetric)
	order := make([]string, 0)

	for _, s := range samples {
		walkJSON("", s.Parsed, func(path string, key string, v any) {
			if _, ok := seen[path]; ok {
				return
			}
			dt := inferDataType(v)
			sem := inferSemanticType(key, path)
			seen[path] = DiscoveredMetric{
				Name:         key,
				Path:         path,
				DataType:     dt,
				SemanticType: sem,
				DisplayName:  strings.Title(strings.ReplaceAll(key, "_", " ")),
			}
			order = append(order, path)
		})
	}

	sort.Strings(order)
	out := make([]DiscoveredMetric, 0, len(order))
	for _, p := range order {
		out = append(out, seen[p])
	}
	return out
}

// walkJSON recursively visits every leaf value in a decoded JSON
// object, calling visit with a JSON-pointer-like path ("/state/temp")
// and the final key segment.
func walkJSON(prefix string, v any, visit func(path, key string, v any)) {
	m, ok := v.(map[string]any)
	if !ok {
		if prefix != "" {
			visit(prefix, lastSegment(prefix), v)
		}
		return
	}
	for k, val := range m {
		path := prefix + "/" + k
		switch val.(type) {
		case map[string]any:
			walkJSON(path, val, visit)
		default:
			visit(path, k, val)
		}
	}
}

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// inferDataType classifies a decoded JSON value by its Go shape.
// Numbers decode as float64 via encoding/json; a value that is
// mathematically an integer is still reported as float (kept simple
// per the rule-based fallback's stated scope: numeric/boolean/string
// only).
func inferDataType(v any) DataType {
	switch v.(type) {
	case bool:
		return DataTypeBool
	case float64:
		return DataTypeFloat
	case string:
		return DataTypeString
	default:
		return DataTypeString
	}
}

// inferSemanticType matches path/key text against a keyword table.
func inferSemanticType(key, path string) SemanticType {
	lowerKey := strings.ToLower(key)
	lowerPath := strings.ToLower(path)
	for _, kw := range semanticKeywords {
		if strings.Contains(lowerKey, kw.substr) || strings.Contains(lowerPath, kw.substr) {
			return kw.semantic
		}
	}
	return SemanticUnknown
}

// InferCategory classifies a device by a priority ladder over its
// metrics' semantic types and raw paths, checked most-specific first.
func InferCategory(metrics []DiscoveredMetric) DeviceCategory {
	has := func(sem SemanticType) bool {
		for _, m := range metrics {
			if m.SemanticType == sem {
				return true
			}
		}
		return false
	}
	pathContains := func(substrs ...string) bool {
		for _, m := range metrics {
			lower := strings.ToLower(m.Path)
			for _, s := range substrs {
				if strings.Contains(lower, s) {
					return true
				}
			}
		}
		return false
	}

	switch {
	case pathContains("image", "frame") && pathContains("detection", "object"):
		return CategoryCamera
	case has(SemanticTemperature) && has(SemanticHumidity):
		return CategoryMultiSensor
	case has(SemanticTemperature):
		return CategoryTemperatureSensor
	case has(SemanticHumidity):
		return CategoryHumiditySensor
	case has(SemanticMotion):
		return CategoryMotionSensor
	case has(SemanticLight):
		return CategoryLightSensor
	case has(SemanticSwitch):
		return CategorySwitch
	case has(SemanticPower) || has(SemanticEnergy):
		return CategoryEnergyMonitor
	default:
		return CategoryUnknown
	}
}

// GenerateDeviceName builds a display name from a device id's leading
// token and its inferred category.
func GenerateDeviceName(deviceID string, category DeviceCategory) string {
	base := deviceID
	for _, sep := range []string{"-", "_"} {
		if idx := strings.Index(base, sep); idx >= 0 {
			base = base[:idx]
		}
	}
	if base == "" {
		base = "device"
	}
	return fmt.Sprintf("%s %s", category.DisplayName(), base)
}
