package llm

import (
	"context"
	"testing"
	"time"
)

func TestGovernorStateThinkingCharBudget(t *testing.T) {
	s := &governorState{cfg: StreamConfig{MaxThinkingChars: 10}}
	if s.thinkingSuppressed(StreamChunk{Text: "12345", IsThinking: true}, 0) {
		t.Fatal("first chunk under budget should not be suppressed")
	}
	if !s.thinkingSuppressed(StreamChunk{Text: "1234567890", IsThinking: true}, 0) {
		t.Fatal("chunk pushing cumulative chars over budget should be suppressed")
	}
}

func TestGovernorStateThinkingLoopSuppression(t *testing.T) {
	s := &governorState{cfg: StreamConfig{MaxThinkingLoop: 3}}
	chunk := StreamChunk{Text: "pondering...", IsThinking: true}
	if s.thinkingSuppressed(chunk, 0) {
		t.Fatal("1st repeat should not be suppressed")
	}
	if s.thinkingSuppressed(chunk, 0) {
		t.Fatal("2nd repeat should not be suppressed")
	}
	if !s.thinkingSuppressed(chunk, 0) {
		t.Fatal("3rd consecutive repeat should trip MaxThinkingLoop")
	}
}

func TestGovernorStateWarningThresholds(t *testing.T) {
	s := &governorState{cfg: StreamConfig{WarningThresholds: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}}}
	var events []GovernorEvent
	record := func(e GovernorEvent) { events = append(events, e) }

	s.checkWarnings(5*time.Millisecond, record)
	if len(events) != 0 {
		t.Fatalf("no threshold crossed yet, got %d events", len(events))
	}

	s.checkWarnings(15*time.Millisecond, record)
	if len(events) != 1 || events[0].ElapsedMS != 15 {
		t.Fatalf("expected one progress event at 15ms, got %+v", events)
	}

	s.checkWarnings(25*time.Millisecond, record)
	if len(events) != 2 {
		t.Fatalf("expected second threshold crossed, got %+v", events)
	}
}

func TestGovernorMaxStreamDurationAborts(t *testing.T) {
	backend := &slowStreamBackend{delay: 30 * time.Millisecond, chunks: 5}
	g := NewGovernor(StreamConfig{MaxStreamDuration: 10 * time.Millisecond})

	var gotErr error
	_, err := g.Generate(context.Background(), backend, Input{}, nil, func(e GovernorEvent) {
		if e.Err != nil {
			gotErr = e.Err
		}
	})
	if err == nil {
		t.Fatal("expected governor to abort the stream")
	}
	if gotErr == nil {
		t.Error("expected a terminal GovernorEvent with Err set")
	}
}

// slowStreamBackend emits chunks with a fixed delay between each, to
// exercise the governor's duration cutoff deterministically.
type slowStreamBackend struct {
	delay  time.Duration
	chunks int
}

func (b *slowStreamBackend) ID() string                  { return "slow" }
func (b *slowStreamBackend) ModelName() string            { return "slow-model" }
func (b *slowStreamBackend) Capabilities() Capabilities   { return Capabilities{Streaming: true} }
func (b *slowStreamBackend) MaxContextLength() int        { return 1000 }
func (b *slowStreamBackend) Ping(ctx context.Context) error { return nil }

func (b *slowStreamBackend) Generate(ctx context.Context, in Input) (*Output, error) {
	return &Output{}, nil
}

func (b *slowStreamBackend) GenerateStream(ctx context.Context, in Input, callback StreamCallback) (*Output, error) {
	for i := 0; i < b.chunks; i++ {
		time.Sleep(b.delay)
		if callback != nil {
			if err := callback(StreamChunk{Text: "x"}); err != nil {
				return nil, err
			}
		}
	}
	return &Output{}, nil
}
