package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/auth"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/service"
)

// MatchHandler serves /api/matches.
//
// Accepting a match also opens the pair's conversation: the match service
// does not know about conversations, so the two calls are chained here.
type MatchHandler struct {
	matches       *service.MatchService
	conversations *service.ConversationService
	logger        *slog.Logger
}

func NewMatchHandler(matches *service.MatchService, conversations *service.ConversationService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{
		matches:       matches,
		conversations: conversations,
		logger:        logger,
	}
}

type createMatchRequest struct {
	UserA              string `json:"userA"`
	UserB              string `json:"userB"`
	CompatibilityScore int    `json:"compatibilityScore"`
}

type statusRequest struct {
	Status model.MatchStatus `json:"status"`
}

type feedbackRequest struct {
	Rating   int    `json:"rating"`
	Comments string `json:"comments"`
}

// DecisionResponse is returned by POST /api/matches/{id}/status.
// Conversation is only set when the match was accepted.
type DecisionResponse struct {
	Match        *model.Match        `json:"match"`
	Conversation *model.Conversation `json:"conversation,omitempty"`
}

// HandleCreate proposes a match between the caller and another user.
//
// HTTP: POST /api/matches
// BODY: {"userA": "...", "userB": "...", "compatibilityScore": 82}
func (h *MatchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req createMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.UserA) != userID && strings.TrimSpace(req.UserB) != userID {
		writeError(w, apperror.Forbidden("you can only propose matches that include you"))
		return
	}

	m, err := h.matches.CreateMatch(r.Context(), req.UserA, req.UserB, req.CompatibilityScore)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleList lists the caller's matches, newest first.
//
// HTTP: GET /api/matches?status=accepted&limit=20&offset=0
func (h *MatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	status := model.MatchStatus(r.URL.Query().Get("status"))
	matches, err := h.matches.ListMatchesForUser(r.Context(), userID, status, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleFeatured lists recently accepted matches. Public.
//
// HTTP: GET /api/matches/featured?limit=5
func (h *MatchHandler) HandleFeatured(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	matches, err := h.matches.FeaturedMatches(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleGet returns one match to one of its users.
//
// HTTP: GET /api/matches/{id}
func (h *MatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	m, err := h.matches.GetMatchForUser(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleDecide accepts or rejects a pending match.
//
// HTTP: POST /api/matches/{id}/status
// BODY: {"status": "accepted"}
func (h *MatchHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	m, err := h.matches.DecideMatch(r.Context(), chi.URLParam(r, "id"), userID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := DecisionResponse{Match: m}
	if m.Status == model.MatchAccepted {
		c, err := h.conversations.FindOrCreateConversation(r.Context(), m.Users[:])
		if err != nil {
			// The acceptance is stored; the client can open the conversation
			// with POST /api/conversations.
			h.logger.Error("match accepted but conversation not opened",
				slog.String("match_id", m.ID),
				slog.String("error", err.Error()),
			)
		} else {
			resp.Conversation = c
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleFeedback appends the caller's rating to a match.
//
// HTTP: POST /api/matches/{id}/feedback
// BODY: {"rating": 4, "comments": "..."}
func (h *MatchHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	m, err := h.matches.AddFeedback(r.Context(), chi.URLParam(r, "id"), userID, req.Rating, req.Comments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
