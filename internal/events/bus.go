package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Metadata is attached to every delivered event by the bus itself —
// producers never set these fields.
type Metadata struct {
	EventID    string    `json:"event_id"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

// Delivery is a single item handed to a subscriber: the event plus the
// bus-assigned metadata.
type Delivery struct {
	Event    Event
	Metadata Metadata
}

// AuditSink persists a Delivery asynchronously. Implementations must
// not block the bus's publish path; Bus.Publish already dispatches the
// sink write on its own goroutine. A failing sink never blocks
// in-memory delivery — see Bus.LostAuditWrites.
type AuditSink interface {
	Append(d Delivery) error
}

// Subscription is an active filtered (or unfiltered) receiver handed
// out by Bus.Subscribe / Bus.Filter. A subscriber that cannot keep up
// with the publish rate drops the oldest undelivered items; Dropped
// reports how many have been lost so far.
type Subscription struct {
	ch      chan Delivery
	dropped atomic.Uint64
}

// C returns the channel to range over for deliveries.
func (s *Subscription) C() <-chan Delivery { return s.ch }

// Dropped returns the number of events dropped for this subscriber
// because its buffer was full at publish time.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Predicate is a custom subscription filter, evaluated against the raw
// event, in addition to any category filter.
type Predicate func(Event) bool

// FilterBuilder accumulates filter criteria for Bus.Filter.
type FilterBuilder struct {
	bus        *Bus
	bufSize    int
	categories map[Category]struct{}
	preds      []Predicate
}

// Category restricts the subscription to one coarse category. May be
// called multiple times to OR several categories together.
func (f *FilterBuilder) Category(c Category) *FilterBuilder {
	if f.categories == nil {
		f.categories = make(map[Category]struct{})
	}
	f.categories[c] = struct{}{}
	return f
}

// Where adds a custom predicate. All predicates must pass (AND), in
// addition to any category filter (OR'd together, then ANDed with
// predicates).
func (f *FilterBuilder) Where(p Predicate) *FilterBuilder {
	f.preds = append(f.preds, p)
	return f
}

// BufSize overrides the subscription channel buffer size.
func (f *FilterBuilder) BufSize(n int) *FilterBuilder {
	f.bufSize = n
	return f
}

// Subscribe finalizes the filter and returns the matching subscription.
func (f *FilterBuilder) Subscribe() *Subscription {
	match := func(e Event) bool {
		if len(f.categories) > 0 {
			ok := false
			for c := range f.categories {
				if matchesCategory(e, c) {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		for _, p := range f.preds {
			if !p(e) {
				return false
			}
		}
		return true
	}
	return f.bus.subscribeFiltered(f.bufSize, match)
}

// Bus is a non-blocking, category-filterable broadcast event bus with
// an asynchronous persistent audit mirror. Calling any method on a nil
// *Bus is a safe no-op, so producers never need guard checks.
type Bus struct {
	logger         *slog.Logger
	sink           AuditSink
	source         string
	defaultBufSize int

	mu   sync.RWMutex
	subs map[*Subscription]func(Event) bool

	lostAudit atomic.Uint64
}

// Config configures the bus's default subscriber buffer size and the
// source tag attached to every event published through this bus.
type Config struct {
	// Source identifies the bus owner for the Metadata.Source field,
	// e.g. "agent", "scheduler", "onboarding".
	Source string
	// DefaultBufSize sizes unfiltered Subscribe() channels. 64 if zero.
	DefaultBufSize int
}

// New creates a bus. sink may be nil, in which case audit persistence
// is skipped entirely (events still deliver in memory).
func New(logger *slog.Logger, sink AuditSink, cfg Config) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultBufSize <= 0 {
		cfg.DefaultBufSize = 64
	}
	return &Bus{
		logger: logger,
		sink:   sink,
		subs:   make(map[*Subscription]func(Event) bool),
		source: cfg.Source,

		defaultBufSize: cfg.DefaultBufSize,
	}
}

// Publish delivers e to every matching subscriber and mirrors it to
// the audit sink. Non-blocking from the producer's perspective: a full
// subscriber buffer causes that subscriber to drop its oldest
// undelivered event rather than block the publisher, and the audit
// write happens on its own
// goroutine so a slow or unavailable store never blocks delivery.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	eventID := ""
	if id, err := uuid.NewV7(); err == nil {
		eventID = id.String()
	}
	meta := Metadata{EventID: eventID, Source: b.source, ReceivedAt: time.Now()}
	d := Delivery{Event: e, Metadata: meta}

	b.mu.RLock()
	for sub, match := range b.subs {
		if !match(e) {
			continue
		}
		select {
		case sub.ch <- d:
		default:
			// Buffer full: evict the oldest undelivered item to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- d:
			default:
			}
			sub.dropped.Add(1)
		}
	}
	b.mu.RUnlock()

	if b.sink != nil {
		go func() {
			if err := b.sink.Append(d); err != nil {
				b.lostAudit.Add(1)
				b.logger.Error("audit sink write failed", "error", err, "event_id", eventID)
			}
		}()
	}
}

// Subscribe returns an unfiltered subscription with the bus's default
// buffer size. Callers must eventually call Unsubscribe.
func (b *Bus) Subscribe() *Subscription {
	return b.subscribeFiltered(b.defaultBufSize, func(Event) bool { return true })
}

// Filter begins building a filtered subscription.
func (b *Bus) Filter() *FilterBuilder {
	return &FilterBuilder{bus: b}
}

func (b *Bus) subscribeFiltered(bufSize int, match func(Event) bool) *Subscription {
	if bufSize <= 0 {
		bufSize = 64
	}
	sub := &Subscription{ch: make(chan Delivery, bufSize)}
	b.mu.Lock()
	b.subs[sub] = match
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to
// call more than once for the same subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if b == nil || sub == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// LostAuditWrites reports the cumulative count of audit sink failures.
// The bus keeps delivering in memory regardless of this counter; it
// exists so operators can detect a degraded audit store.
func (b *Bus) LostAuditWrites() uint64 {
	if b == nil {
		return 0
	}
	return b.lostAudit.Load()
}
