package agentrt

import (
	"sync"
	"time"
)

// PendingStream is a summary of the last event stream produced for a
// session, kept around so a client that reconnects after a disconnect
// can retrieve what happened while it was away. The underlying
// goroutine is never cancelled by a disconnect — it runs to completion
// so history persists consistently — this record is just the mailbox
// a later caller can read instead of replaying the whole stream.
type PendingStream struct {
	SessionID    string
	StartedAt    time.Time
	FinishedAt   time.Time
	Done         bool
	FinalContent string
	ToolsUsed    []string
	Err          string
}

// PendingStreamStore keeps the most recent PendingStream per session.
type PendingStreamStore struct {
	mu    sync.RWMutex
	byID  map[string]*PendingStream
}

// NewPendingStreamStore creates an empty store.
func NewPendingStreamStore() *PendingStreamStore {
	return &PendingStreamStore{byID: make(map[string]*PendingStream)}
}

// Start records that a session has begun processing, returning the
// record for the runtime to update as the stream progresses.
func (s *PendingStreamStore) Start(sessionID string) *PendingStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &PendingStream{SessionID: sessionID, StartedAt: time.Now()}
	s.byID[sessionID] = p
	return p
}

// Get retrieves the most recent record for a session, or nil if none
// exists.
func (s *PendingStreamStore) Get(sessionID string) *PendingStream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[sessionID]
}

func (s *PendingStreamStore) finish(p *PendingStream, content string, tools []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.FinishedAt = time.Now()
	p.Done = true
	p.FinalContent = content
	p.ToolsUsed = tools
	if err != nil {
		p.Err = err.Error()
	}
}
