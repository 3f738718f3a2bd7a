package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/service"
)

const maxMessageLength = 4000

type MessageHandler struct {
	conversations *service.ConversationService
}

func NewMessageHandler(conversations *service.ConversationService) *MessageHandler {
	return &MessageHandler{conversations: conversations}
}

func (h *MessageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Post)
	r.Get("/{visitorID}", h.History)
	r.Post("/{visitorID}/agent", h.AgentTurn)

	return r
}

// POST /api/v1/messages
// Core API: one inbound visitor message drives the full qualification turn.
func (h *MessageHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VisitorID string `json:"visitorId"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	req.VisitorID = strings.TrimSpace(req.VisitorID)
	req.Text = strings.TrimSpace(req.Text)

	if req.VisitorID == "" {
		writeError(w, apperrors.MissingRequired("visitorId"))
		return
	}
	if req.Text == "" {
		writeError(w, apperrors.MissingRequired("text"))
		return
	}
	if len(req.Text) > maxMessageLength {
		writeError(w, apperrors.InvalidInput("text", "too long"))
		return
	}

	result, err := h.conversations.HandleTurn(r.Context(), req.VisitorID, req.Text)
	if err != nil {
		log.Error().Err(err).Str("visitorId", req.VisitorID).Msg("failed to handle turn")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"visitorId":       result.Session.VisitorID,
		"stage":           result.Session.Stage,
		"score":           result.Score.Value,
		"category":        result.Score.Category,
		"priority":        result.Score.Priority,
		"visitNumber":     result.Session.VisitCount,
		"isNewVisit":      result.IsNewVisit,
		"analysisSkipped": result.AnalysisSkipped,
		"newlyQualified":  result.NewlyQualified,
	})
}

// GET /api/v1/messages/{visitorID}
// Transcript of the visitor's session, oldest first.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	visitorID := chi.URLParam(r, "visitorID")
	turns, err := h.conversations.History(r.Context(), visitorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"visitorId": visitorID,
		"turns":     turns,
	})
}

// POST /api/v1/messages/{visitorID}/agent
// Records an agent utterance on the transcript. Agent turns feed extractor
// context on later visitor turns but never trigger analysis themselves.
func (h *MessageHandler) AgentTurn(w http.ResponseWriter, r *http.Request) {
	visitorID := chi.URLParam(r, "visitorID")

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, apperrors.MissingRequired("text"))
		return
	}
	if len(req.Text) > maxMessageLength {
		writeError(w, apperrors.InvalidInput("text", "too long"))
		return
	}

	if err := h.conversations.RecordAgentTurn(r.Context(), visitorID, req.Text); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"visitorId": visitorID,
		"recorded":  true,
	})
}
