// Package onboarding implements zero-config discovery of unknown edge
// devices: sample collection into a draft, metric and semantic-type
// inference, device-category classification, and type-signature
// matching so devices sharing a data shape reuse the same registered
// type instead of minting a new one each time.
package onboarding

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// DataType is the inferred wire type of a discovered metric value.
type DataType string

const (
	DataTypeFloat  DataType = "float"
	DataTypeInt    DataType = "int"
	DataTypeBool   DataType = "bool"
	DataTypeString DataType = "string"
	DataTypeEnum   DataType = "enum"
)

// SemanticType is the inferred meaning of a metric, independent of its
// wire representation.
type SemanticType string

const (
	SemanticTemperature SemanticType = "temperature"
	SemanticHumidity    SemanticType = "humidity"
	SemanticMotion      SemanticType = "motion"
	SemanticLight       SemanticType = "light"
	SemanticSwitch      SemanticType = "switch"
	SemanticPower       SemanticType = "power"
	SemanticEnergy      SemanticType = "energy"
	SemanticBattery     SemanticType = "battery"
	SemanticUnknown     SemanticType = "unknown"
)

// DeviceCategory coarsely classifies a device for filtering and UI
// grouping. Inferred by a priority ladder over a metric set's semantic
// types, not freely assigned.
type DeviceCategory string

const (
	CategoryCamera            DeviceCategory = "camera"
	CategoryMultiSensor       DeviceCategory = "multi_sensor"
	CategoryTemperatureSensor DeviceCategory = "temperature_sensor"
	CategoryHumiditySensor    DeviceCategory = "humidity_sensor"
	CategoryMotionSensor      DeviceCategory = "motion_sensor"
	CategoryLightSensor       DeviceCategory = "light_sensor"
	CategorySwitch            DeviceCategory = "switch"
	CategoryEnergyMonitor     DeviceCategory = "energy_monitor"
	CategoryUnknown           DeviceCategory = "unknown"
)

// DisplayName returns a human-readable label for the category.
func (c DeviceCategory) DisplayName() string {
	switch c {
	case CategoryCamera:
		return "Camera"
	case CategoryMultiSensor:
		return "Multi-Sensor"
	case CategoryTemperatureSensor:
		return "Temperature Sensor"
	case CategoryHumiditySensor:
		return "Humidity Sensor"
	case CategoryMotionSensor:
		return "Motion Sensor"
	case CategoryLightSensor:
		return "Light Sensor"
	case CategorySwitch:
		return "Switch"
	case CategoryEnergyMonitor:
		return "Energy Monitor"
	default:
		return "Device"
	}
}

// MetricRange optionally bounds a numeric or enum metric.
type MetricRange struct {
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
	EnumValues []string `json:"enum_values,omitempty"`
}

// DiscoveredMetric is one inferred metric path within a device's
// sample payload. Path is a JSON-pointer-like accessor (e.g.
// "/state/temp_c") into the sample; (SemanticType, DataType)
// participates in type-signature hashing.
type DiscoveredMetric struct {
	Name         string       `json:"name"`
	Path         string       `json:"path"`
	DataType     DataType     `json:"data_type"`
	SemanticType SemanticType `json:"semantic_type"`
	Unit         string       `json:"unit,omitempty"`
	DisplayName  string       `json:"display_name"`
	Description  string       `json:"description,omitempty"`
	Range        *MetricRange `json:"range,omitempty"`
}

// TypeSignature fingerprints a device type by the sorted list of its
// metrics' (semantic_type, data_type) pairs plus its category. Devices
// that produce the same signature resolve to the same registered
// type, per spec.
type TypeSignature struct {
	MetricSignatures [][2]string `json:"metric_signatures"` // (semantic_type, data_type)
	Category         string      `json:"category"`
}

// Hash computes a stable fingerprint for the signature. Metric pairs
// must already be sorted by the caller (computeTypeSignature does
// this) so that two equivalent metric sets always hash identically
// regardless of discovery order.
func (s TypeSignature) Hash() string {
	h := sha256.New()
	for _, pair := range s.MetricSignatures {
		h.Write([]byte(pair[0]))
		h.Write([]byte{0})
		h.Write([]byte(pair[1]))
		h.Write([]byte{0xff})
	}
	h.Write([]byte(s.Category))
	return hex.EncodeToString(h.Sum(nil))
}

// computeTypeSignature sorts metrics by (semantic_type, data_type) for
// order-independent, stable hashing.
func computeTypeSignature(metrics []DiscoveredMetric, category DeviceCategory) TypeSignature {
	sorted := make([]DiscoveredMetric, len(metrics))
	copy(sorted, metrics)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SemanticType != sorted[j].SemanticType {
			return sorted[i].SemanticType < sorted[j].SemanticType
		}
		return sorted[i].DataType < sorted[j].DataType
	})

	pairs := make([][2]string, len(sorted))
	for i, m := range sorted {
		pairs[i] = [2]string{string(m.SemanticType), string(m.DataType)}
	}

	return TypeSignature{MetricSignatures: pairs, Category: string(category)}
}

// DraftDeviceStatus tracks a draft's position in the onboarding
// lifecycle. Status only moves forward along the declared graph;
// Rejected and Registered are sinks.
type DraftDeviceStatus string

const (
	StatusCollecting   DraftDeviceStatus = "collecting"
	StatusAnalyzing    DraftDeviceStatus = "analyzing"
	StatusPendingReview DraftDeviceStatus = "pending_review"
	StatusRegistering  DraftDeviceStatus = "registering"
	StatusRegistered   DraftDeviceStatus = "registered"
	StatusRejected     DraftDeviceStatus = "rejected"
)

// DeviceSample is one raw observation collected from an unknown
// device.
type DeviceSample struct {
	Source    string         `json:"source"`
	Parsed    map[string]any `json:"parsed"`
	Timestamp time.Time      `json:"timestamp"`
}

// GeneratedDeviceType is the type definition produced by analysis,
// ready to hand to a device-type registry.
type GeneratedDeviceType struct {
	DeviceType    string             `json:"device_type"`
	DisplayName   string             `json:"display_name"`
	Metrics       []DiscoveredMetric `json:"metrics"`
	Category      DeviceCategory     `json:"category"`
	Confidence    float64            `json:"confidence"`
	SampleCount   int                `json:"sample_count"`
	MDLDefinition map[string]any     `json:"mdl_definition"`
}

// DraftDevice is an unknown device under observation, accumulating
// samples until enough have arrived to attempt analysis.
type DraftDevice struct {
	ID          string
	DeviceID    string
	Source      string
	Samples     []DeviceSample
	MaxSamples  int
	Status      DraftDeviceStatus
	Generated   *GeneratedDeviceType
	UserName    string
	Description string
	Error       string
	AutoApprove bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AddSample appends a sample if under MaxSamples, returning whether it
// was accepted. Invariant: sample count never exceeds MaxSamples.
func (d *DraftDevice) AddSample(s DeviceSample) bool {
	if len(d.Samples) >= d.MaxSamples {
		return false
	}
	d.Samples = append(d.Samples, s)
	d.UpdatedAt = time.Now()
	return true
}

// ReadyForAnalysis reports whether enough samples have accumulated.
func (d *DraftDevice) ReadyForAnalysis(minSamples int) bool {
	return d.Status == StatusCollecting && len(d.Samples) >= minSamples
}

// Config tunes onboarding behavior.
type Config struct {
	Enabled             bool
	MaxDraftDevices     int
	MaxSamples          int
	MinSamples          int
	AutoApproveThresh   float64
	DraftRetentionSecs  int64
}

// DefaultConfig matches the teacher-adjacent reference implementation's
// defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MaxDraftDevices:    50,
		MaxSamples:         10,
		MinSamples:         3,
		AutoApproveThresh:  0.85,
		DraftRetentionSecs: 24 * 60 * 60,
	}
}
