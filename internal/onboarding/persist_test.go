package onboarding

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/edgemind/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "onboarding.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAttachStore_PersistsAndReloadsDraft(t *testing.T) {
	s := openTestStore(t)

	cfg := DefaultConfig()
	cfg.MinSamples = 100 // stays in Collecting so we can inspect raw persisted state
	m := NewManager(cfg, nil, nil, nil)
	if err := m.AttachStore(s); err != nil {
		t.Fatalf("AttachStore: %v", err)
	}

	if _, err := m.ProcessUnknownDevice("d1", "mqtt", tempHumidSample(20, 30)); err != nil {
		t.Fatalf("ProcessUnknownDevice: %v", err)
	}

	reloaded := NewManager(cfg, nil, nil, nil)
	if err := reloaded.AttachStore(s); err != nil {
		t.Fatalf("AttachStore (reload): %v", err)
	}
	draft := reloaded.GetDraft("d1")
	if draft == nil {
		t.Fatal("draft not found after reload")
	}
	if len(draft.Samples) != 1 {
		t.Errorf("sample count after reload = %d, want 1", len(draft.Samples))
	}
}

func TestAttachStore_ReloadsSignatureRegistry(t *testing.T) {
	s := openTestStore(t)

	cfg := DefaultConfig()
	cfg.MinSamples = 1
	m := NewManager(cfg, nil, nil, nil)
	if err := m.AttachStore(s); err != nil {
		t.Fatalf("AttachStore: %v", err)
	}
	if _, err := m.ProcessUnknownDevice("temp-a", "mqtt", map[string]any{"state": map[string]any{"temp_c": 22.3}}); err != nil {
		t.Fatalf("ProcessUnknownDevice: %v", err)
	}
	first := m.GetDraft("temp-a")
	if first.Generated == nil {
		t.Fatal("expected analysis to complete")
	}

	reloaded := NewManager(cfg, nil, nil, nil)
	if err := reloaded.AttachStore(s); err != nil {
		t.Fatalf("AttachStore (reload): %v", err)
	}
	if _, err := reloaded.ProcessUnknownDevice("temp-b", "mqtt", map[string]any{"state": map[string]any{"temp_c": 19.5}}); err != nil {
		t.Fatalf("ProcessUnknownDevice: %v", err)
	}
	second := reloaded.GetDraft("temp-b")
	if second.Generated == nil {
		t.Fatal("expected analysis to complete for second device")
	}
	if second.Generated.DeviceType != first.Generated.DeviceType {
		t.Errorf("type id = %q, want reuse of %q across a fresh manager sharing the store",
			second.Generated.DeviceType, first.Generated.DeviceType)
	}
}

func TestAttachStore_CleanupDeletesFromStore(t *testing.T) {
	s := openTestStore(t)

	cfg := DefaultConfig()
	cfg.DraftRetentionSecs = 0
	m := NewManager(cfg, nil, nil, nil)
	if err := m.AttachStore(s); err != nil {
		t.Fatalf("AttachStore: %v", err)
	}
	if _, err := m.ProcessUnknownDevice("d1", "mqtt", tempHumidSample(20, 30)); err != nil {
		t.Fatalf("ProcessUnknownDevice: %v", err)
	}
	if removed := m.CleanupOldDrafts(); removed != 1 {
		t.Fatalf("CleanupOldDrafts removed = %d, want 1", removed)
	}

	n, err := s.Count(store.TableOnboarding)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("TableOnboarding count after cleanup = %d, want 0", n)
	}
}
