// Package agentrt implements the streaming agent runtime: the
// session-scoped state machine that turns one user message into an
// ordered event stream, interleaving governed LLM invocation with
// concurrent tool dispatch through the tool registry.
package agentrt

// EventKind enumerates the closed set of events a session's stream can
// emit. The stream is guaranteed to terminate with exactly one End
// event under every path, including timeout, tool failure, and client
// disconnect.
type EventKind string

const (
	EventThinking      EventKind = "thinking"
	EventContent       EventKind = "content"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventIntent        EventKind = "intent"
	EventPlan          EventKind = "plan"
	EventProgress      EventKind = "progress"
	EventHeartbeat     EventKind = "heartbeat"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
	EventEnd           EventKind = "end"
)

// Event is one item on a session's event stream. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind

	// Thinking / Content
	Content string

	// ToolCallStart / ToolCallEnd
	ToolCallID string
	ToolName   string
	Arguments  map[string]any
	Result     string
	Success    bool

	// Intent
	Category    string
	DisplayName string
	Confidence  *float64
	Keywords    []string

	// Plan
	Step  int
	Stage string

	// Progress
	Message   string
	ElapsedMS int64

	// Heartbeat
	TimestampUnix int64

	// Warning / Error
	Err string
}

// EventStream is the channel a caller drains to observe a session's
// processing of one message. Send is buffered so the runtime never
// blocks on a slow or disconnected consumer for long; a disconnected
// consumer simply stops draining and the runtime keeps running to
// completion so history stays consistent (see PendingStream).
type EventStream struct {
	ch chan Event
}

func newEventStream(buffer int) *EventStream {
	return &EventStream{ch: make(chan Event, buffer)}
}

// Events returns the receive-only channel of events. It closes after
// the End event has been sent.
func (s *EventStream) Events() <-chan Event {
	return s.ch
}

func (s *EventStream) emit(e Event) {
	s.ch <- e
}

func (s *EventStream) close() {
	close(s.ch)
}
