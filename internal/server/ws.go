package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect cross-origin through the frontend dev server.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsTurnRequest is one inbound turn over the websocket.
type wsTurnRequest struct {
	ConversationID string `json:"chat_id,omitempty"`
	Text           string `json:"message"`
}

// handleAskWS serves multi-turn chat over one websocket connection. Each
// inbound message runs a full turn; fragments stream back as JSON frames
// and a {"done": true} frame marks the end of each turn.
func (s *Server) handleAskWS(w http.ResponseWriter, r *http.Request) {
	pid := principal(r)
	if pid == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req wsTurnRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "user_id", pid, "error", err)
			}
			return
		}
		if req.Text == "" {
			_ = conn.WriteJSON(map[string]string{"error": "message is required"})
			continue
		}

		fragments, err := s.dispatcher.HandleTurn(r.Context(), req.ConversationID, pid, req.Text)
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			continue
		}

		failed := false
		for f := range fragments {
			if failed {
				continue // drain so the dispatcher can finish the turn
			}
			_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := conn.WriteJSON(f); err != nil {
				failed = true
			}
		}
		if failed {
			return
		}
		_ = conn.WriteJSON(map[string]bool{"done": true})
	}
}
