package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parleygate/parley/internal/gateway"
	"github.com/parleygate/parley/internal/tools"
)

// widgetRefreshInterval is the cadence at which the widget socket
// re-reads the conversation and pushes a fresh transcript.
const widgetRefreshInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The widget may be embedded in a host page on another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// widgetHello is the first client frame on the widget socket.
type widgetHello struct {
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId"`
}

// widgetUpdate is one server push on the widget socket.
type widgetUpdate struct {
	Transcript        []gateway.TranscriptMessage `json:"transcript"`
	ConversationEnded bool                        `json:"conversationEnded"`
	Error             *tools.ErrorInfo            `json:"error,omitempty"`
}

// handleWidgetSocket streams transcript refreshes to the embedded
// live-chat widget. The client identifies its conversation in the
// first frame, then receives a widgetUpdate on every refresh tick
// until the conversation ends or the socket closes.
func (s *Server) handleWidgetSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("widget socket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var hello widgetHello
	if err := conn.ReadJSON(&hello); err != nil {
		s.logger.Debug("widget socket bad hello", "error", err)
		return
	}
	if hello.SessionID == "" || hello.ConversationID == "" {
		info := tools.ErrorInfo{
			Code:    tools.CodeInvalidArgument,
			Message: "sessionId and conversationId are required",
		}
		_ = conn.WriteJSON(widgetUpdate{Error: &info})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames so we notice the peer closing. The widget
	// never sends anything after the hello.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("widget socket connected",
		"session_id", hello.SessionID,
		"conversation_id", hello.ConversationID,
	)

	ticker := time.NewTicker(widgetRefreshInterval)
	defer ticker.Stop()

	for {
		res, err := s.svc.ListEntries(ctx, hello.SessionID, hello.ConversationID, "", false)
		if err != nil {
			info := tools.MapError(err)
			_ = conn.WriteJSON(widgetUpdate{Error: &info})
			return
		}

		update := widgetUpdate{
			Transcript:        s.svc.Transcript(res.RawEntries),
			ConversationEnded: res.RoleInfo.ConversationEnded,
		}
		if err := conn.WriteJSON(update); err != nil {
			return
		}
		if update.ConversationEnded {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation ended"))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
