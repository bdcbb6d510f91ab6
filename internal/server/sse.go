package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opencode-ai/supervision/internal/event"
)

// SSEHeartbeatInterval is the interval for SSE heartbeats.
const SSEHeartbeatInterval = 30 * time.Second

// connectedEvent is the first message of every stream.
const connectedEvent = "server.connected"

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE message. id may be empty.
func (s *sseWriter) writeEvent(id, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// allEvents handles GET /event. Optional query parameters: sessionID
// restricts the stream to one session's events (plus session-less ones),
// type may be repeated to restrict event types.
func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	if s.services.Bus == nil {
		unavailable(w, "Event bus")
		return
	}

	sessionID := r.URL.Query().Get("sessionID")
	var filter []event.Type
	for _, t := range r.URL.Query()["type"] {
		filter = append(filter, event.Type(t))
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Subscribe before the connected event so nothing published after the
	// client sees it is missed.
	events, err := s.services.Bus.Subscribe(r.Context(), filter...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("", "message", event.Event{Type: connectedEvent, Time: time.Now().UnixMilli()}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if !belongsToSession(e, sessionID) {
				continue
			}
			if err := sse.writeEvent(e.ID, "message", e); err != nil {
				s.logger.Debug().Err(err).Msg("SSE client gone")
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// belongsToSession reports whether e should reach a stream filtered on
// sessionID. Registry events carry no session and reach every stream.
func belongsToSession(e event.Event, sessionID string) bool {
	return sessionID == "" || e.SessionID == "" || e.SessionID == sessionID
}
