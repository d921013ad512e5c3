package onboarding

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/edgemind/internal/store"
)

// persistedSignature is the on-disk shape of one signature registry
// entry, keyed by type id in TableSignatures.
type persistedSignature struct {
	Hash   string `json:"hash"`
	TypeID string `json:"type_id"`
}

// AttachStore wires the manager to a KV substrate: every existing
// draft (TableOnboarding) and signature (TableSignatures) is loaded
// into memory, and subsequent mutations are written through. Call
// once, before serving traffic; a manager with no attached store runs
// entirely in memory, as it does in tests.
func (m *Manager) AttachStore(s *store.Store) error {
	m.mu.Lock()
	m.persist = s
	m.mu.Unlock()

	var loadErr error
	err := s.ForEach(store.TableSignatures, func(key string, value []byte) error {
		var ps persistedSignature
		if err := json.Unmarshal(value, &ps); err != nil {
			loadErr = fmt.Errorf("onboarding: decode signature %s: %w", key, err)
			return nil
		}
		m.sigs.RegisterHash(ps.Hash, ps.TypeID)
		return nil
	})
	if err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return s.ForEach(store.TableOnboarding, func(key string, value []byte) error {
		var d DraftDevice
		if err := json.Unmarshal(value, &d); err != nil {
			return fmt.Errorf("onboarding: decode draft %s: %w", key, err)
		}
		m.drafts[d.DeviceID] = &d
		return nil
	})
}

// saveDraft writes a draft's current state through to the attached
// store, if any. Best-effort: a failure is logged, not propagated, so
// a storage hiccup never blocks the in-memory onboarding pipeline.
func (m *Manager) saveDraft(d *DraftDevice) {
	if m.persist == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		m.logger.Error("onboarding: encode draft failed", "device_id", d.DeviceID, "error", err)
		return
	}
	if err := m.persist.Put(store.TableOnboarding, d.DeviceID, data); err != nil {
		m.logger.Error("onboarding: persist draft failed", "device_id", d.DeviceID, "error", err)
	}
}

func (m *Manager) deleteDraft(deviceID string) {
	if m.persist == nil {
		return
	}
	if err := m.persist.Delete(store.TableOnboarding, deviceID); err != nil {
		m.logger.Error("onboarding: delete draft failed", "device_id", deviceID, "error", err)
	}
}

func (m *Manager) saveSignature(typeID, hash string) {
	if m.persist == nil {
		return
	}
	data, err := json.Marshal(persistedSignature{Hash: hash, TypeID: typeID})
	if err != nil {
		m.logger.Error("onboarding: encode signature failed", "type_id", typeID, "error", err)
		return
	}
	if err := m.persist.Put(store.TableSignatures, typeID, data); err != nil {
		m.logger.Error("onboarding: persist signature failed", "type_id", typeID, "error", err)
	}
}
