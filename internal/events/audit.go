package events

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cuemby/edgemind/internal/store"
)

// StoreAuditSink persists deliveries into the event_log table of the
// persistent KV substrate, keyed "<timestamp>:<event_id>". It
// satisfies AuditSink.
type StoreAuditSink struct {
	kv *store.Store
}

// NewStoreAuditSink wraps kv as an AuditSink.
func NewStoreAuditSink(kv *store.Store) *StoreAuditSink {
	return &StoreAuditSink{kv: kv}
}

// auditRecord is the persisted shape: the envelope without embedding
// the event's Go type, since the stored type name is already present.
type auditRecord struct {
	Type     string          `json:"type"`
	Metadata Metadata        `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

// Append implements AuditSink.
func (s *StoreAuditSink) Append(d Delivery) error {
	data, err := json.Marshal(d.Event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	rec := auditRecord{Type: d.Event.TypeName(), Metadata: d.Metadata, Data: data}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	key := strconv.FormatInt(d.Event.Timestamp(), 10) + ":" + d.Metadata.EventID
	return s.kv.Put(store.TableEventLog, key, blob)
}
