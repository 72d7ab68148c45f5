package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	app_errors "github.com/anooppandey17/virtual-teacher/internal/errors"
	"github.com/anooppandey17/virtual-teacher/internal/interfaces"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/service"
)

// ConversationHandler serves conversations and learner turns.
type ConversationHandler struct {
	chat interfaces.ChatService
}

func NewConversationHandler(chat interfaces.ChatService) *ConversationHandler {
	return &ConversationHandler{chat: chat}
}

func currentUser(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		respondWithError(w, app_errors.ErrUnauthenticated)
	}
	return user, ok
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// ListConversations godoc
// @Summary      List conversations
// @Description  Learners see their own, teachers and parents see their linked learners', admins see all. Newest activity first.
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   model.Conversation
// @Failure      401  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/conversations [get]
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	conversations, err := h.chat.ListConversations(r.Context(), user)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if conversations == nil {
		conversations = []*model.Conversation{}
	}
	respondWithJSON(w, http.StatusOK, conversations)
}

// GetConversation godoc
// @Summary      Get a conversation
// @Description  Returns the conversation with its full transcript.
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Param        conversationID  path      string  true  "Conversation ID"
// @Success      200             {object}  model.FullConversation
// @Failure      404             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID} [get]
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	full, err := h.chat.GetConversation(r.Context(), user, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, full)
}

// GetMessages godoc
// @Summary      List messages
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Param        conversationID  path      string  true  "Conversation ID"
// @Success      200             {array}   model.Message
// @Failure      404             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID}/messages [get]
func (h *ConversationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	messages, err := h.chat.GetMessages(r.Context(), user, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	respondWithJSON(w, http.StatusOK, messages)
}

// DeleteConversation godoc
// @Summary      Delete a conversation
// @Description  Deletes a conversation and all of its messages. Only the learner or an admin may delete.
// @Tags         Conversations
// @Produce      json
// @Security     BearerAuth
// @Param        conversationID  path      string  true  "Conversation ID"
// @Success      200             {object}  StatusResponse
// @Failure      403             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID} [delete]
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.chat.DeleteConversation(r.Context(), user, chi.URLParam(r, "conversationID")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// CreateConversation godoc
// @Summary      Start a conversation
// @Description  Creates a conversation seeded with the learner's first message and answers it. With stream=true the reply is sent as Server-Sent Events.
// @Tags         Conversations
// @Accept       json
// @Produce      json,text/event-stream
// @Security     BearerAuth
// @Param        stream   query     bool            false  "Stream the reply"
// @Param        format   query     string          false  "Set to chunk for {chunk} records"
// @Param        message  body      MessageRequest  true   "First message"
// @Success      201      {object}  model.TurnResult
// @Failure      400      {object}  ErrorResponse
// @Failure      403      {object}  ErrorResponse
// @Router       /v1/conversations [post]
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	h.handleTurn(w, r, "")
}

// PostMessage godoc
// @Summary      Send a message
// @Description  Appends a learner message to a conversation and answers it. With stream=true the reply is sent as Server-Sent Events.
// @Tags         Conversations
// @Accept       json
// @Produce      json,text/event-stream
// @Security     BearerAuth
// @Param        conversationID  path      string          true   "Conversation ID"
// @Param        stream          query     bool            false  "Stream the reply"
// @Param        format          query     string          false  "Set to chunk for {chunk} records"
// @Param        message         body      MessageRequest  true   "Message"
// @Success      200             {object}  model.TurnResult
// @Failure      400             {object}  ErrorResponse
// @Failure      404             {object}  ErrorResponse
// @Failure      409             {object}  ErrorResponse
// @Router       /v1/conversations/{conversationID}/messages [post]
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	h.handleTurn(w, r, chi.URLParam(r, "conversationID"))
}

func (h *ConversationHandler) handleTurn(w http.ResponseWriter, r *http.Request, conversationID string) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request body", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(&req); err != nil {
		respondWithError(w, err)
		return
	}

	turn, err := h.chat.PrepareTurn(r.Context(), user, service.TurnRequest{
		ConversationID: conversationID,
		Text:           req.content(),
	})
	if err != nil {
		respondWithError(w, err)
		return
	}

	if queryBool(r, "stream") {
		h.streamTurn(w, r, turn, r.URL.Query().Get("format") == "chunk")
		return
	}

	result, err := h.chat.CompleteTurn(r.Context(), turn)
	if err != nil {
		respondWithError(w, err)
		return
	}
	status := http.StatusOK
	if turn.Created {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, result)
}

// streamTurn relays the turn's events as SSE. After the client disconnects
// the remaining events are drained so the service can finish and store the
// reply.
func (h *ConversationHandler) streamTurn(w http.ResponseWriter, r *http.Request, turn *service.Turn, chunked bool) {
	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)

	events := make(chan model.StreamEvent)
	go h.chat.StreamTurn(r.Context(), turn, nil, events)

	disconnected := false
	for ev := range events {
		if disconnected {
			continue
		}
		if err := writeTurnEvent(w, ev, chunked); err != nil {
			slog.Info("Client disconnected during stream", "conversation_id", turn.Conversation.ID, "error", err)
			disconnected = true
		}
	}
	slog.Debug("Finished streaming response", "conversation_id", turn.Conversation.ID)
}

func writeTurnEvent(w http.ResponseWriter, ev model.StreamEvent, chunked bool) error {
	switch ev.Event {
	case model.EventConversation:
		return writeStreamEvent(w, model.EventConversation, ev)
	case model.EventFragment:
		if chunked {
			return writeStreamEvent(w, "", ChunkEvent{Chunk: ev.Text})
		}
		return writeStreamEvent(w, "", ev)
	case model.EventError:
		if chunked {
			return writeStreamEvent(w, "", ChunkEvent{Chunk: ev.Text})
		}
		return writeStreamEvent(w, model.EventError, ev)
	default:
		return writeStreamEvent(w, "", ev)
	}
}
