package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/orchestrator"
)

const (
	socketReadLimit    = 1 << 20
	socketWriteTimeout = 10 * time.Second
)

// SendMessageRequest is one learner message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// socketError is written on a WebSocket when a turn cannot start. Status is
// the HTTP status the same failure gets on the SSE endpoint.
type socketError struct {
	Type   orchestrator.EventType `json:"type"`
	Error  string                 `json:"error"`
	Status int                    `json:"status"`
}

// handleSendMessage runs one turn and streams its events as SSE
// POST /api/v1/sessions/{id}/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	// Errors before the stream starts get a plain status.
	events, err := s.svc.SendMessage(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Drain to the end even after a write fails; the orchestrator notices the
	// cancelled request context and closes the channel.
	broken := false
	for ev := range events {
		if broken {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode event", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			broken = true
			continue
		}
		flusher.Flush()
	}
}

// handleSessionSocket carries turns over a WebSocket
// GET /api/v1/sessions/{id}/ws
//
// Each client frame {"content": "..."} starts a turn; its events are
// written back as JSON frames ending with done or error. Turns on one
// connection run one at a time.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.svc.GetSession(r.Context(), sessionID); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(socketReadLimit)

	log := s.logger.With(zap.String("session_id", sessionID))
	ctx := context.WithoutCancel(r.Context())
	for {
		var req SendMessageRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if !s.socketTurn(ctx, conn, sessionID, req.Content, log) {
			return
		}
	}
}

// socketTurn runs one turn over conn. It returns false once the connection
// is unusable.
func (s *Server) socketTurn(parent context.Context, conn *websocket.Conn, sessionID, content string, log *zap.Logger) bool {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	events, err := s.svc.SendMessage(ctx, sessionID, content)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			log.Error("turn failed to start", zap.Error(err))
			msg = "internal error"
		}
		return s.writeFrame(conn, socketError{Type: orchestrator.EventError, Error: msg, Status: status}) == nil
	}

	ok := true
	for ev := range events {
		if !ok {
			continue
		}
		if err := s.writeFrame(conn, ev); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			ok = false
			cancel()
		}
	}
	return ok
}

func (s *Server) writeFrame(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
