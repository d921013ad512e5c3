package agentrt

import (
	"sync"
	"time"

	"github.com/cuemby/edgemind/internal/llm"
)

// SessionNotFoundError reports that ProcessMessage was called against
// an unknown session id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return "session not found: " + e.SessionID
}

// HistoryStore is the seam between a session and its durable message
// log. Implementations decide how much history to retain and how it
// is persisted (tiered memory, a flat log, nothing at all).
type HistoryStore interface {
	Messages(sessionID string, tokenBudget int) []llm.Message
	Append(sessionID string, msg llm.Message) error
}

// Session is one conversation's runtime state: its id, creation time,
// and the capability tags currently active for tool filtering.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	activeTags map[string]bool
}

// RequestCapability implements tools.CapabilityManager.
func (s *Session) RequestCapability(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTags == nil {
		s.activeTags = make(map[string]bool)
	}
	s.activeTags[tag] = true
	return nil
}

// DropCapability implements tools.CapabilityManager.
func (s *Session) DropCapability(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeTags, tag)
	return nil
}

// ActiveTags returns a copy of the currently active tag set,
// implementing tools.CapabilityManager.
func (s *Session) ActiveTags() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.activeTags))
	for k, v := range s.activeTags {
		out[k] = v
	}
	return out
}

// SessionRegistry tracks live sessions by id. It is the minimal
// counterpart to the registries the rest of the system already uses
// (tool registry, backend registry): a string-keyed dispatch table
// behind a mutex, with no package-level singleton — the Runtime holds
// the one instance it was constructed with.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty session registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Create registers a new session and returns it.
func (r *SessionRegistry) Create(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &Session{ID: id, CreatedAt: time.Now(), activeTags: make(map[string]bool)}
	r.sessions[id] = s
	return s
}

// Get retrieves a session by id, or nil if it doesn't exist.
func (r *SessionRegistry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Close removes a session from the registry.
func (r *SessionRegistry) Close(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
