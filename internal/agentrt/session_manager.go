package agentrt

import (
	"fmt"

	"github.com/cuemby/edgemind/internal/llm"
)

// CloseSession implements tools.SessionManager: it ends a conversation
// by removing it from the session registry. The carryForward content is
// not stored here — it is the caller's responsibility to seed a new
// session with it, since this package has no opinion on what the next
// session looks like.
func (rt *Runtime) CloseSession(sessionID, reason, carryForward string) error {
	if rt.Sessions.Get(sessionID) == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	rt.Sessions.Close(sessionID)
	return nil
}

// CheckpointSession implements tools.SessionManager. Checkpointing is a
// no-op at the runtime level until a durable session log exists to
// record labels against; it validates the session exists so callers get
// an honest error rather than silent success.
func (rt *Runtime) CheckpointSession(sessionID, label string) error {
	if rt.Sessions.Get(sessionID) == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// SplitSession implements tools.SessionManager: it creates a new
// session seeded with carryForward as its first history entry. The
// original session is left untouched.
func (rt *Runtime) SplitSession(sessionID string, messageIndex int, carryForward string) error {
	if rt.Sessions.Get(sessionID) == nil {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	newID := sessionID + "-split"
	rt.Sessions.Create(newID)
	if carryForward != "" && rt.History != nil {
		return rt.History.Append(newID, llm.Message{Role: "user", Content: carryForward})
	}
	return nil
}
