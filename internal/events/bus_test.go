package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	// Must not panic.
	b.Publish(DeviceOnline{DeviceID: "d1"})
}

func TestNilBusSubscriberCount(t *testing.T) {
	var b *Bus
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() on nil bus = %d, want 0", got)
	}
}

func TestPublishSingleSubscriber(t *testing.T) {
	b := New(nil, nil, Config{Source: "test"})
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	want := DeviceOnline{DeviceID: "d1"}
	b.Publish(want)

	select {
	case got := <-sub.C():
		do, ok := got.Event.(DeviceOnline)
		if !ok || do.DeviceID != "d1" {
			t.Errorf("got event %#v, want DeviceOnline{d1}", got.Event)
		}
		if got.Metadata.EventID == "" {
			t.Error("expected a non-empty event_id assigned by the bus")
		}
		if got.Metadata.Source != "test" {
			t.Errorf("metadata.source = %q, want %q", got.Metadata.Source, "test")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishMultipleSubscribers(t *testing.T) {
	b := New(nil, nil, Config{})
	const n = 5
	subs := make([]*Subscription, n)
	for i := range subs {
		subs[i] = b.Subscribe()
	}
	defer func() {
		for _, s := range subs {
			b.Unsubscribe(s)
		}
	}()

	evt := DeviceOnline{DeviceID: "d1"}
	b.Publish(evt)

	for i, s := range subs {
		select {
		case got := <-s.C():
			if got.Event.TypeName() != "DeviceOnline" {
				t.Errorf("subscriber %d: got %v, want DeviceOnline", i, got.Event)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestDropOnFull(t *testing.T) {
	b := New(nil, nil, Config{})
	sub := b.Filter().BufSize(1).Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(DeviceOnline{DeviceID: "first"})
	b.Publish(DeviceOnline{DeviceID: "second"})

	got := <-sub.C()
	if got.Event.(DeviceOnline).DeviceID != "second" {
		t.Errorf("got %v, want second (oldest dropped)", got.Event)
	}

	select {
	case evt := <-sub.C():
		t.Errorf("expected empty channel, got event %v", evt)
	default:
	}

	if sub.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", sub.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(nil, nil, Config{})
	sub := b.Subscribe()

	b.Unsubscribe(sub)

	_, ok := <-sub.C()
	if ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
}

func TestDoubleUnsubscribe(t *testing.T) {
	b := New(nil, nil, Config{})
	sub := b.Subscribe()

	b.Unsubscribe(sub)
	// Must not panic.
	b.Unsubscribe(sub)
}

func TestSubscriberCount(t *testing.T) {
	b := New(nil, nil, Config{})

	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("initial count = %d, want 0", got)
	}

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	if got := b.SubscriberCount(); got != 2 {
		t.Errorf("after 2 subscribes = %d, want 2", got)
	}

	b.Unsubscribe(s1)
	if got := b.SubscriberCount(); got != 1 {
		t.Errorf("after 1 unsubscribe = %d, want 1", got)
	}

	b.Unsubscribe(s2)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("after all unsubscribed = %d, want 0", got)
	}
}

func TestCategoryFilter(t *testing.T) {
	b := New(nil, nil, Config{})
	deviceSub := b.Filter().Category(CategoryDevice).Subscribe()
	ruleSub := b.Filter().Category(CategoryRule).Subscribe()
	defer b.Unsubscribe(deviceSub)
	defer b.Unsubscribe(ruleSub)

	b.Publish(DeviceOnline{DeviceID: "d1"})

	select {
	case got := <-deviceSub.C():
		if got.Event.TypeName() != "DeviceOnline" {
			t.Errorf("unexpected event on device sub: %v", got.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("device subscriber did not receive event")
	}

	select {
	case got := <-ruleSub.C():
		t.Errorf("rule subscriber should not have received a device event, got %v", got.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestToolCategoryAlsoMatchesLLM(t *testing.T) {
	b := New(nil, nil, Config{})
	llmSub := b.Filter().Category(CategoryLLM).Subscribe()
	defer b.Unsubscribe(llmSub)

	b.Publish(ToolExecutionStart{Tool: "list_devices"})

	select {
	case got := <-llmSub.C():
		if got.Event.TypeName() != "ToolExecutionStart" {
			t.Errorf("got %v", got.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected ToolExecutionStart to also match the llm category")
	}
}

func TestCustomPredicate(t *testing.T) {
	b := New(nil, nil, Config{})
	sub := b.Filter().Where(func(e Event) bool {
		dm, ok := e.(DeviceMetric)
		return ok && dm.Metric == "temperature"
	}).Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(DeviceMetric{DeviceID: "d1", Metric: "humidity", Value: 50})
	b.Publish(DeviceMetric{DeviceID: "d1", Metric: "temperature", Value: 21.5})

	select {
	case got := <-sub.C():
		if got.Event.(DeviceMetric).Metric != "temperature" {
			t.Errorf("got %v, want temperature metric", got.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for matching event")
	}

	select {
	case got := <-sub.C():
		t.Errorf("expected no further matches, got %v", got.Event)
	default:
	}
}

type fakeSink struct {
	mu  sync.Mutex
	got []Delivery
	err error
}

func (f *fakeSink) Append(d Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, d)
	return nil
}

func (f *fakeSink) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestAuditMirroring(t *testing.T) {
	sink := &fakeSink{}
	b := New(nil, sink, Config{})

	b.Publish(DeviceOnline{DeviceID: "d1"})

	deadline := time.Now().Add(time.Second)
	for sink.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sink.len() != 1 {
		t.Fatalf("sink received %d deliveries, want 1", sink.len())
	}
}

func TestAuditFailureDoesNotBlockDelivery(t *testing.T) {
	sink := &fakeSink{err: errBoom}
	b := New(nil, sink, Config{})
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(DeviceOnline{DeviceID: "d1"})

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("in-memory delivery blocked by failing audit sink")
	}

	deadline := time.Now().Add(time.Second)
	for b.LostAuditWrites() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.LostAuditWrites() != 1 {
		t.Errorf("LostAuditWrites() = %d, want 1", b.LostAuditWrites())
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

func TestEnvelopeStripsTypeFromData(t *testing.T) {
	b := New(nil, nil, Config{Source: "test"})
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(DeviceMetric{DeviceID: "d1", Metric: "temperature", Value: 21.5})

	d := <-sub.C()
	env, err := NewEnvelope(d)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.Type != "DeviceMetric" {
		t.Errorf("Type = %q", env.Type)
	}

	var data map[string]any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if v, ok := data["type"]; ok {
		t.Errorf("data contains a type key %v; it must be stripped", v)
	}
	if data["device_id"] != "d1" {
		t.Errorf("data.device_id = %v", data["device_id"])
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := New(nil, nil, Config{})
	const publishers = 10
	const eventsPerPublisher = 100

	var wg sync.WaitGroup

	sub := b.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range sub.C() {
			// We don't assert exact count because drops are expected.
		}
	}()

	var pubWg sync.WaitGroup
	for i := range publishers {
		pubWg.Add(1)
		go func(i int) {
			defer pubWg.Done()
			for j := range eventsPerPublisher {
				b.Publish(DeviceMetric{DeviceID: "d1", Metric: "seq", Value: float64(i*1000 + j)})
			}
		}(i)
	}

	pubWg.Wait()
	b.Unsubscribe(sub)
	wg.Wait()
}

func TestPublishNoSubscribers(t *testing.T) {
	b := New(nil, nil, Config{})
	// Must not panic when publishing with no subscribers.
	b.Publish(AlertCreated{AlertID: "a1"})
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	b := New(nil, nil, Config{})
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	// Publishing after the only subscriber is gone must not panic.
	b.Publish(AlertCreated{AlertID: "a1"})
}
