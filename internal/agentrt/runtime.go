package agentrt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/edgemind/internal/llm"
	"github.com/cuemby/edgemind/internal/router"
	"github.com/cuemby/edgemind/internal/tools"
)

// defaultMaxToolRounds bounds the Invoke→ExecuteTools→Invoke loop so a
// misbehaving backend or tool can't keep a session running forever.
const defaultMaxToolRounds = 5

// defaultToolTimeout bounds a single tool execution; expiry produces a
// failure result, not cancellation of the overall stream.
const defaultToolTimeout = 30 * time.Second

// defaultHistoryBudget is the token budget given to HistoryStore.Messages
// when assembling context, leaving headroom in the backend's context
// window for the system prompt, tool definitions, and the response.
const defaultHistoryBudget = 6000

// Runtime drives the session state machine of spec §4.6: context
// assembly, governed streaming invocation, tool-call detection via the
// pushdown-automaton parser, concurrent tool dispatch, and bounded
// looping to a final response. It owns no package-level singletons —
// the backend registry, tool registry, and session registry are all
// explicit fields handed in at construction, per the "no global
// executor" design note.
type Runtime struct {
	Backends      *llm.BackendRegistry
	Governor      *llm.Governor
	Tools         *tools.Registry
	Sessions      *SessionRegistry
	History       HistoryStore
	Router        *router.Router
	SystemPrompt  string
	MaxToolRounds int
	ToolTimeout   time.Duration
	Pending       *PendingStreamStore
	Logger        *slog.Logger
}

// NewRuntime builds a Runtime with the given collaborators. Zero-value
// optional fields fall back to sane defaults (max tool rounds, tool
// timeout, a discard logger).
func NewRuntime(backends *llm.BackendRegistry, gov *llm.Governor, reg *tools.Registry, sessions *SessionRegistry, history HistoryStore) *Runtime {
	return &Runtime{
		Backends:      backends,
		Governor:      gov,
		Tools:         reg,
		Sessions:      sessions,
		History:       history,
		MaxToolRounds: defaultMaxToolRounds,
		ToolTimeout:   defaultToolTimeout,
		Pending:       NewPendingStreamStore(),
		Logger:        slog.New(slog.DiscardHandler),
	}
}

// ProcessMessage runs the Idle→AssembleContext→InvokeLLM→...→Finalising
// state machine for one user message and returns the event stream the
// caller should drain. The returned stream is fed by a goroutine that
// keeps running to completion even if the caller stops draining —
// disconnect never truncates history.
func (rt *Runtime) ProcessMessage(ctx context.Context, sessionID, text, backendOverride string) (*EventStream, error) {
	session := rt.Sessions.Get(sessionID)
	if session == nil {
		return nil, &SessionNotFoundError{SessionID: sessionID}
	}

	// Control messages (client-side commands) are filtered before
	// reaching the LLM. The HTTP/WebSocket boundary is expected to
	// intercept these; ProcessMessage treats one as a no-op stream
	// rather than guessing at command semantics it doesn't own.
	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		stream := newEventStream(1)
		stream.emit(Event{Kind: EventEnd})
		stream.close()
		return stream, nil
	}

	stream := newEventStream(64)
	pending := rt.Pending.Start(sessionID)

	go rt.run(ctx, session, text, backendOverride, stream, pending)

	return stream, nil
}

func (rt *Runtime) run(ctx context.Context, session *Session, text, backendOverride string, stream *EventStream, pending *PendingStream) {
	var finalContent string
	var toolsUsed []string
	var runErr error

	defer func() {
		rt.Pending.finish(pending, finalContent, toolsUsed, runErr)
		stream.emit(Event{Kind: EventEnd})
		stream.close()
	}()

	backend, err := rt.selectBackend(backendOverride)
	if err != nil {
		runErr = err
		stream.emit(Event{Kind: EventError, Err: err.Error()})
		return
	}

	if rt.Router != nil {
		_, decision := rt.Router.Route(ctx, router.Request{Query: text, NeedsTools: true})
		if decision != nil && decision.DetectedIntent != "" {
			stream.emit(Event{Kind: EventIntent, Category: decision.DetectedIntent, DisplayName: decision.DetectedIntent})
		}
	}

	messages := rt.assembleContext(session, text)
	_ = rt.History.Append(session.ID, llm.Message{Role: "user", Content: text})

	toolDefs := rt.toolDefinitions(backend, session)

	var assistantContent strings.Builder
	for round := 0; round <= rt.MaxToolRounds; round++ {
		out, invocations, err := rt.invokeOnce(ctx, backend, messages, toolDefs, stream)
		if err != nil {
			runErr = err
			stream.emit(Event{Kind: EventError, Err: err.Error()})
			return
		}

		if len(invocations) == 0 {
			assistantContent.WriteString(out)
			stream.emit(Event{Kind: EventContent, Content: out})
			break
		}

		messages = append(messages, llm.Message{Role: "assistant", Content: out})

		calls := make([]tools.Call, len(invocations))
		callIDs := make([]string, len(invocations))
		for i, inv := range invocations {
			callIDs[i] = uuid.NewString()
			calls[i] = tools.Call{Name: inv.Name, ArgsJSON: toJSON(inv.Arguments)}
			stream.emit(Event{Kind: EventToolCallStart, ToolCallID: callIDs[i], ToolName: inv.Name, Arguments: inv.Arguments})
		}

		toolCtx, cancel := context.WithTimeout(ctx, rt.ToolTimeout)
		results := rt.Tools.ExecuteParallel(toolCtx, calls)
		cancel()

		for i, res := range results {
			success := res.Err == nil
			resultText := res.Result
			if !success {
				resultText = res.Err.Error()
			}
			toolsUsed = append(toolsUsed, res.Name)
			stream.emit(Event{Kind: EventToolCallEnd, ToolCallID: callIDs[i], ToolName: res.Name, Result: resultText, Success: success})
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    resultText,
				ToolCallID: callIDs[i],
			})
		}

		if round == rt.MaxToolRounds {
			stream.emit(Event{Kind: EventWarning, Message: "max tool rounds reached"})
		}
	}

	finalContent = assistantContent.String()
	if finalContent != "" {
		_ = rt.History.Append(session.ID, llm.Message{Role: "assistant", Content: finalContent})
	}
}

// invokeOnce runs a single governed LLM invocation, streaming thinking
// chunks as they arrive and feeding content chunks through the
// tool-call parser; content is not emitted here. It returns the
// assembled visible content (with
// any <tool_calls> envelope stripped out) and the invocations found,
// if any.
func (rt *Runtime) invokeOnce(ctx context.Context, backend llm.Backend, messages []llm.Message, toolDefs []llm.ToolDefinition, stream *EventStream) (content string, invocations []ToolInvocation, err error) {
	parser := &ToolCallParser{}
	var contentBuf, thinkingBuf strings.Builder

	onChunk := func(chunk llm.StreamChunk) error {
		if chunk.IsThinking {
			thinkingBuf.WriteString(chunk.Text)
			stream.emit(Event{Kind: EventThinking, Content: chunk.Text})
			return nil
		}
		plain, found := parser.Feed(chunk.Text)
		if plain != "" {
			contentBuf.WriteString(plain)
		}
		invocations = append(invocations, found...)
		return nil
	}

	onEvent := func(ge llm.GovernorEvent) {
		if ge.Progress {
			stream.emit(Event{Kind: EventProgress, ElapsedMS: ge.ElapsedMS})
		}
		if ge.Err != nil && ge.Timeout {
			stream.emit(Event{Kind: EventWarning, Message: "stream duration limit reached"})
		}
	}

	in := llm.Input{Messages: messages, Tools: toolDefs, Streaming: true}
	if rt.Governor != nil {
		_, err = rt.Governor.Generate(ctx, backend, in, onChunk, onEvent)
	} else {
		_, err = backend.GenerateStream(ctx, in, onChunk)
	}
	if err != nil {
		return "", nil, err
	}

	if parser.Pending() {
		stream.emit(Event{Kind: EventWarning, Message: "unterminated tool_calls envelope"})
	}

	return contentBuf.String(), invocations, nil
}

func (rt *Runtime) selectBackend(override string) (llm.Backend, error) {
	if override != "" {
		return rt.Backends.BackendFor(override)
	}
	return rt.Backends.FindBestBackend(llm.Capabilities{Streaming: true})
}

func (rt *Runtime) assembleContext(session *Session, text string) []llm.Message {
	messages := make([]llm.Message, 0, 8)
	if rt.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: rt.SystemPrompt})
	}
	if rt.History != nil {
		messages = append(messages, rt.History.Messages(session.ID, defaultHistoryBudget)...)
	}
	messages = append(messages, llm.Message{Role: "user", Content: text})
	return messages
}

func (rt *Runtime) toolDefinitions(backend llm.Backend, session *Session) []llm.ToolDefinition {
	effective := rt.Tools
	if active := session.ActiveTags(); len(active) > 0 {
		tags := make([]string, 0, len(active))
		for t := range active {
			tags = append(tags, t)
		}
		effective = rt.Tools.FilterByTags(tags)
	}

	defs := effective.Definitions()
	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		name, _ := d["name"].(string)
		desc, _ := d["description"].(string)
		params, _ := d["parameters"].(map[string]any)
		out = append(out, llm.ToolDefinition{Name: name, Description: desc, Parameters: params})
	}
	return out
}

func toJSON(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
