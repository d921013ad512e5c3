package onboarding

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/edgemind/internal/store"
)

// MetricClassifier is the LLM-backed analysis seam: given a device id
// and its collected samples, it may return inferred metrics. A nil
// classifier, or one returning no metrics, falls back to the
// deterministic rule-based extractor in analyzer.go — the spec's
// "LLM pass with deterministic rule-based fallback" behavior.
type MetricClassifier interface {
	ClassifyMetrics(deviceID string, samples []DeviceSample) ([]DiscoveredMetric, error)
}

// Manager owns the draft-device lifecycle: sample collection, analysis,
// type-signature matching, and registration/rejection. GetDraft and
// GetDrafts return shallow copies: a copy's Samples slice and Generated
// pointer are shared with the manager's own draft.
type Manager struct {
	cfg        Config
	classifier MetricClassifier
	logger     *slog.Logger
	registrar  Registrar

	mu     sync.Mutex
	drafts map[string]*DraftDevice // device_id -> draft

	sigs    *SignatureRegistry
	persist *store.Store // optional; nil means in-memory only
}

// Registrar is the seam a device/type registry plugs into for the
// final registration step. Kept narrow: write the type, add the
// device.
type Registrar interface {
	RegisterType(def map[string]any) error
	RegisterDevice(deviceID, deviceType string) error
}

// NewManager creates a manager with the given config and collaborators.
// classifier and registrar may be nil; without a registrar,
// RegisterDevice only updates draft status and does not fail.
func NewManager(cfg Config, classifier MetricClassifier, registrar Registrar, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		cfg:        cfg,
		classifier: classifier,
		registrar:  registrar,
		logger:     logger,
		drafts:     make(map[string]*DraftDevice),
		sigs:       NewSignatureRegistry(),
	}
}

// Signatures exposes the manager's signature registry for inspection
// (e.g. by an admin tool listing known type fingerprints).
func (m *Manager) Signatures() *SignatureRegistry { return m.sigs }

// ProcessUnknownDevice ingests one sample from device_id, creating a
// draft if none exists (subject to the global draft cap) or appending
// to an existing one (subject to max_samples). Returns whether the
// sample was accepted.
func (m *Manager) ProcessUnknownDevice(deviceID, source string, sample map[string]any) (bool, error) {
	if !m.cfg.Enabled {
		return false, nil
	}

	m.mu.Lock()
	draft, exists := m.drafts[deviceID]
	if !exists && len(m.drafts) >= m.cfg.MaxDraftDevices {
		m.mu.Unlock()
		return false, nil
	}
	if !exists {
		draft = &DraftDevice{
			ID:         uuid.NewString(),
			DeviceID:   deviceID,
			Source:     source,
			MaxSamples: m.cfg.MaxSamples,
			Status:     StatusCollecting,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		m.drafts[deviceID] = draft
	}
	m.mu.Unlock()

	if !exists {
		m.saveDraft(draft)
	}

	if draft.Status != StatusCollecting {
		return false, nil
	}

	m.mu.Lock()
	added := draft.AddSample(DeviceSample{Source: source, Parsed: sample, Timestamp: time.Now()})
	ready := draft.ReadyForAnalysis(m.cfg.MinSamples)
	if ready {
		draft.Status = StatusAnalyzing
	}
	samplesCopy := append([]DeviceSample(nil), draft.Samples...)
	m.mu.Unlock()

	if !added {
		return false, nil
	}

	m.saveDraft(draft)

	if ready {
		if _, err := m.AnalyzeDevice(deviceID, samplesCopy); err != nil {
			m.logger.Error("device analysis failed", "device_id", deviceID, "error", err)
		}
	}

	return true, nil
}

// AnalyzeDevice runs metric extraction, category inference, and
// signature matching against a draft's samples, producing a
// GeneratedDeviceType and deciding whether the draft auto-registers or
// awaits review.
func (m *Manager) AnalyzeDevice(deviceID string, samples []DeviceSample) (*GeneratedDeviceType, error) {
	metrics, err := m.classifyOrFallback(deviceID, samples)
	if err != nil {
		return nil, err
	}

	category := InferCategory(metrics)
	signature := computeTypeSignature(metrics, category)

	var typeID, displayName string
	var reusing bool
	if existing, ok := m.sigs.Find(signature); ok {
		typeID = existing
		displayName = existing + " (reused)"
		reusing = true
	} else {
		typeID = "auto_" + sanitizeID(deviceID)
		displayName = GenerateDeviceName(deviceID, category)
	}

	confidence := scoreConfidence(metrics)
	mdl := buildMDL(typeID, displayName, metrics, category)

	generated := &GeneratedDeviceType{
		DeviceType:    typeID,
		DisplayName:   displayName,
		Metrics:       metrics,
		Category:      category,
		Confidence:    confidence,
		SampleCount:   len(samples),
		MDLDefinition: mdl,
	}

	if !reusing {
		m.sigs.Register(signature, typeID)
		m.saveSignature(typeID, signature.Hash())
	}

	effective := confidence
	if reusing {
		effective = min1(confidence + 0.1)
	}

	m.mu.Lock()
	draft, ok := m.drafts[deviceID]
	if ok {
		draft.Generated = generated
		if effective >= m.cfg.AutoApproveThresh || draft.AutoApprove {
			draft.Status = StatusRegistering
		} else {
			draft.Status = StatusPendingReview
		}
	}
	m.mu.Unlock()

	if ok {
		m.saveDraft(draft)
	}

	if ok && (effective >= m.cfg.AutoApproveThresh || draft.AutoApprove) {
		if err := m.RegisterDevice(deviceID); err != nil {
			m.logger.Error("auto-registration failed", "device_id", deviceID, "error", err)
		}
	}

	return generated, nil
}

func (m *Manager) classifyOrFallback(deviceID string, samples []DeviceSample) ([]DiscoveredMetric, error) {
	if m.classifier != nil {
		metrics, err := m.classifier.ClassifyMetrics(deviceID, samples)
		if err != nil {
			return nil, err
		}
		if len(metrics) > 0 {
			return metrics, nil
		}
	}
	return ExtractMetrics(samples), nil
}

// RegisterDevice finalizes a draft whose analysis produced a type,
// writing it to the registrar (if any) and marking the draft
// Registered.
func (m *Manager) RegisterDevice(deviceID string) error {
	m.mu.Lock()
	draft, ok := m.drafts[deviceID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("draft not found: %s", deviceID)
	}
	if draft.Generated == nil {
		return fmt.Errorf("no generated type for draft: %s", deviceID)
	}

	if m.registrar != nil {
		if err := m.registrar.RegisterType(draft.Generated.MDLDefinition); err != nil {
			return err
		}
		if err := m.registrar.RegisterDevice(deviceID, draft.Generated.DeviceType); err != nil {
			return err
		}
	}

	m.mu.Lock()
	draft.Status = StatusRegistered
	draft.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.saveDraft(draft)
	return nil
}

// RejectDevice marks a draft Rejected, preventing further sample
// collection.
func (m *Manager) RejectDevice(deviceID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft, ok := m.drafts[deviceID]
	if !ok {
		return fmt.Errorf("draft not found: %s", deviceID)
	}
	draft.Status = StatusRejected
	draft.Error = reason
	draft.UpdatedAt = time.Now()
	m.saveDraft(draft)
	return nil
}

// GetDraft returns a copy of one draft, or nil if unknown.
func (m *Manager) GetDraft(deviceID string) *DraftDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[deviceID]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// GetDrafts returns copies of all tracked drafts.
func (m *Manager) GetDrafts() []*DraftDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*DraftDevice, 0, len(m.drafts))
	for _, d := range m.drafts {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

// UpdateDraft applies a user's edits (name/description) to a draft.
func (m *Manager) UpdateDraft(deviceID, userName, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft, ok := m.drafts[deviceID]
	if !ok {
		return fmt.Errorf("draft not found: %s", deviceID)
	}
	if userName != "" {
		draft.UserName = userName
	}
	if description != "" {
		draft.Description = description
	}
	draft.UpdatedAt = time.Now()
	m.saveDraft(draft)
	return nil
}

// CleanupOldDrafts removes drafts whose last update exceeds
// draft_retention_secs, returning the count removed.
func (m *Manager) CleanupOldDrafts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, d := range m.drafts {
		if now.Sub(d.UpdatedAt) > time.Duration(m.cfg.DraftRetentionSecs)*time.Second {
			delete(m.drafts, id)
			m.deleteDraft(id)
			removed++
		}
	}
	return removed
}

func sanitizeID(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			out[i] = '_'
		} else {
			out[i] = id[i]
		}
	}
	return string(out)
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// scoreConfidence scores a metric set by how much of it resolved to a
// known semantic type rather than Unknown; an all-unknown metric set
// scores a low floor rather than zero so review is still possible.
func scoreConfidence(metrics []DiscoveredMetric) float64 {
	if len(metrics) == 0 {
		return 0.2
	}
	known := 0
	for _, m := range metrics {
		if m.SemanticType != SemanticUnknown {
			known++
		}
	}
	ratio := float64(known) / float64(len(metrics))
	// Floor at 0.3 (a metric set with zero known semantics still
	// represents *something* discoverable) and leave headroom below
	// 1.0 for the "base" confidence; a full sweep of known types tops
	// out at 0.95, leaving the reused-type +0.1 bonus room to matter.
	return 0.3 + ratio*0.65
}

func buildMDL(typeID, displayName string, metrics []DiscoveredMetric, category DeviceCategory) map[string]any {
	metricDefs := make([]map[string]any, 0, len(metrics))
	for _, m := range metrics {
		metricDefs = append(metricDefs, map[string]any{
			"name":         m.Name,
			"path":         m.Path,
			"data_type":    string(m.DataType),
			"unit":         m.Unit,
			"display_name": m.DisplayName,
			"description":  m.Description,
		})
	}
	return map[string]any{
		"device_type": typeID,
		"name":        displayName,
		"description": fmt.Sprintf("Auto-generated %s definition", category.DisplayName()),
		"category":    category.DisplayName(),
		"version":     "1.0.0",
		"metrics":     metricDefs,
		"commands":    []any{},
		"generated_by": "edgemind-auto-onboard",
	}
}
