package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/auth"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/service"
)

// ConversationHandler serves /api/conversations. Every route acts as the
// authenticated caller; the service rejects callers who are not
// participants.
type ConversationHandler struct {
	conversations *service.ConversationService
	logger        *slog.Logger
}

func NewConversationHandler(conversations *service.ConversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger}
}

type openConversationRequest struct {
	Participants []string `json:"participants"`
}

type sendMessageRequest struct {
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments"`
}

type markReadRequest struct {
	Upto *time.Time `json:"upto"`
}

// HandleOpen finds or creates the conversation for a participant set that
// includes the caller.
//
// HTTP: POST /api/conversations
// BODY: {"participants": ["alice", "bob"]}
func (h *ConversationHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req openConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	included := false
	for _, p := range req.Participants {
		if p == userID {
			included = true
			break
		}
	}
	if !included {
		writeError(w, apperror.Forbidden("you can only open conversations you take part in"))
		return
	}

	c, err := h.conversations.FindOrCreateConversation(r.Context(), req.Participants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleList is the caller's inbox.
//
// HTTP: GET /api/conversations?limit=20&offset=0
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.conversations.ListConversationsForUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleUnread returns the inbox badge count.
//
// HTTP: GET /api/conversations/unread
func (h *ConversationHandler) HandleUnread(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	n, err := h.conversations.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

// HandleGet returns a conversation with its whole message log.
//
// HTTP: GET /api/conversations/{id}
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	c, err := h.conversations.GetConversation(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if c.Messages == nil {
		c.Messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleMessages returns one page of messages in send order.
//
// HTTP: GET /api/conversations/{id}/messages?limit=50&offset=0
func (h *ConversationHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	msgs, err := h.conversations.ListMessages(r.Context(), chi.URLParam(r, "id"), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// HandleSend appends a message from the caller.
//
// HTTP: POST /api/conversations/{id}/messages
// BODY: {"content": "hi", "attachments": [{"fileUrl": "...", "fileName": "...", "fileType": "..."}]}
func (h *ConversationHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.conversations.AppendMessage(r.Context(), chi.URLParam(r, "id"), userID, req.Content, req.Attachments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleMarkRead marks messages the caller received as read, up to "upto"
// (RFC 3339) or now when omitted.
//
// HTTP: POST /api/conversations/{id}/read
// BODY: {"upto": "2025-06-01T12:00:00Z"}   (body optional)
func (h *ConversationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req markReadRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	var upto time.Time
	if req.Upto != nil {
		upto = *req.Upto
	}

	n, err := h.conversations.MarkRead(r.Context(), chi.URLParam(r, "id"), userID, upto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
