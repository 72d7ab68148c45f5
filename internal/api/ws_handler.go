package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anooppandey17/virtual-teacher/internal/interfaces"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/service"
)

const (
	wsReadLimit = 1 << 20
	wsStartWait = 60 * time.Second
)

// wsClientMessage is sent by the client: one start, then an optional stop.
type wsClientMessage struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// wsServerMessage mirrors model.StreamEvent with an explicit type field.
type wsServerMessage struct {
	Type           string `json:"type"`
	Text           string `json:"text,omitempty"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Stopped        *bool  `json:"stopped,omitempty"`
}

func toWSMessage(ev model.StreamEvent) wsServerMessage {
	msg := wsServerMessage{
		Type:           ev.Event,
		Text:           ev.Text,
		Error:          ev.Error,
		ConversationID: ev.ConversationID,
		MessageID:      ev.MessageID,
	}
	if ev.Event == model.EventDone {
		stopped := ev.Stopped
		msg.Stopped = &stopped
	}
	return msg
}

// WSHandler streams one learner turn per WebSocket connection.
type WSHandler struct {
	chat     interfaces.ChatService
	tokens   TokenParser
	upgrader websocket.Upgrader
}

// NewWSHandler accepts upgrades from allowedOrigins; "*" allows any origin.
// Requests without an Origin header are always accepted.
func NewWSHandler(chat interfaces.ChatService, tokens TokenParser, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		chat:   chat,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWS godoc
// @Summary      Stream a turn over WebSocket
// @Description  Client sends {type:"start", text, conversation_id?} and may later send {type:"stop"}. Server sends conversation, fragment, error and done messages.
// @Tags         Conversations
// @Param        token  query  string  true  "Bearer token"
// @Success      101
// @Failure      401  {object}  ErrorResponse
// @Router       /v1/conversations/ws [get]
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		var err error
		user, err = h.tokens.Parse(strings.TrimSpace(r.URL.Query().Get("token")))
		if err != nil {
			respondWithError(w, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsStartWait))

	var start wsClientMessage
	if err := conn.ReadJSON(&start); err != nil || strings.ToLower(start.Type) != "start" {
		_ = conn.WriteJSON(wsServerMessage{Type: model.EventError, Error: "invalid start payload"})
		return
	}
	// The reply may take longer than the start deadline.
	_ = conn.SetReadDeadline(time.Time{})

	turn, err := h.chat.PrepareTurn(r.Context(), user, service.TurnRequest{
		ConversationID: start.ConversationID,
		Text:           start.Text,
	})
	if err != nil {
		_, message := errorStatus(err)
		slog.Warn("Rejected WebSocket turn", "user_id", user.ID, "error", err)
		_ = conn.WriteJSON(wsServerMessage{Type: model.EventError, Error: message})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go h.readStop(conn, stop, cancel, readerDone)

	events := make(chan model.StreamEvent)
	go h.chat.StreamTurn(ctx, turn, stop, events)

	writeFailed := false
	for ev := range events {
		if writeFailed {
			continue
		}
		if err := conn.WriteJSON(toWSMessage(ev)); err != nil {
			slog.Info("WebSocket client gone during stream", "conversation_id", turn.Conversation.ID, "error", err)
			writeFailed = true
			cancel()
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
	<-readerDone
}

// readStop closes stop when the client asks to stop, and cancels the turn's
// client context when the connection fails.
func (h *WSHandler) readStop(conn *websocket.Conn, stop chan struct{}, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	var once sync.Once
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		var msg wsClientMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(msg.Type)) == "stop" {
			once.Do(func() { close(stop) })
		}
	}
}
