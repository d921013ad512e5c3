// Package web is the HTTP/WS boundary onto the streaming agent
// runtime: a single upgrade endpoint that turns inbound chat messages
// into ProcessMessage calls and relays the resulting event stream back
// over the same connection as JSON frames.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cuemby/edgemind/internal/agentrt"
)

// Server drives agentrt.Runtime from inbound WebSocket connections.
type Server struct {
	runtime  *agentrt.Runtime
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a boundary server over runtime. logger defaults to
// slog.Default() if nil.
func NewServer(runtime *agentrt.Runtime, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runtime: runtime,
		logger:  logger.With("component", "web"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Same-origin is not enforced here; a reverse proxy in front
			// of this process is expected to own origin/auth policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes mounts the chat WS endpoint on mux at /ws.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
}

// inboundMessage is one client-to-server WS frame.
type inboundMessage struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Backend   string `json:"backend,omitempty"`
}

// outboundEvent is one server-to-client WS frame, a flattened view of
// agentrt.Event suited to JSON transport.
type outboundEvent struct {
	Kind       string         `json:"kind"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     string         `json:"result,omitempty"`
	Success    bool           `json:"success,omitempty"`
	Category   string         `json:"category,omitempty"`
	Step       int            `json:"step,omitempty"`
	Stage      string         `json:"stage,omitempty"`
	Message    string         `json:"message,omitempty"`
	Err        string         `json:"error,omitempty"`
}

func toOutbound(e agentrt.Event) outboundEvent {
	return outboundEvent{
		Kind:       string(e.Kind),
		Content:    e.Content,
		ToolCallID: e.ToolCallID,
		ToolName:   e.ToolName,
		Arguments:  e.Arguments,
		Result:     e.Result,
		Success:    e.Success,
		Category:   e.Category,
		Step:       e.Step,
		Stage:      e.Stage,
		Message:    e.Message,
		Err:        e.Err,
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if in.SessionID == "" || in.Text == "" {
			s.writeError(conn, "session_id and text are required")
			continue
		}

		if s.runtime.Sessions.Get(in.SessionID) == nil {
			s.runtime.Sessions.Create(in.SessionID)
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		stream, err := s.runtime.ProcessMessage(ctx, in.SessionID, in.Text, in.Backend)
		if err != nil {
			s.writeError(conn, err.Error())
			cancel()
			continue
		}

		for ev := range stream.Events() {
			if err := conn.WriteJSON(toOutbound(ev)); err != nil {
				s.logger.Debug("websocket write failed, dropping connection", "error", err)
				cancel()
				return
			}
		}
		cancel()
	}
}

func (s *Server) writeError(conn *websocket.Conn, msg string) {
	_ = conn.WriteJSON(outboundEvent{Kind: "error", Err: msg})
}

// MarshalEvent is exported for callers (e.g. an audit sink) that want
// the same JSON shape this server sends over the wire without going
// through a live connection.
func MarshalEvent(e agentrt.Event) ([]byte, error) {
	return json.Marshal(toOutbound(e))
}
