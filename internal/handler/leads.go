package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/leadwise/intel-server-go/internal/audit"
	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/repository"
	"github.com/leadwise/intel-server-go/internal/service"
)

const (
	defaultTopLimit = 20
	maxTopLimit     = 100
)

// SyncRequester accepts a manual re-sync intent for a visitor's lead.
type SyncRequester interface {
	Enqueue(visitorID string)
}

type LeadsHandler struct {
	leadRepo repository.LeadRepository
	sessions *service.SessionService
	syncs    SyncRequester
}

func NewLeadsHandler(leadRepo repository.LeadRepository, sessions *service.SessionService, syncs SyncRequester) *LeadsHandler {
	return &LeadsHandler{
		leadRepo: leadRepo,
		sessions: sessions,
		syncs:    syncs,
	}
}

func (h *LeadsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/top", h.Top)
	r.Get("/{visitorID}", h.Get)
	r.Post("/{visitorID}/sync", h.Resync)

	return r
}

// GET /api/v1/leads/top?limit=N
func (h *LeadsHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, apperrors.InvalidInput("limit", "must be a positive integer"))
			return
		}
		if n > maxTopLimit {
			n = maxTopLimit
		}
		limit = n
	}

	leads, err := h.leadRepo.TopByScore(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list top leads")
		writeError(w, apperrors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"leads": leads,
		"count": len(leads),
	})
}

// GET /api/v1/leads/{visitorID}
// Lead snapshot plus the live session state behind it.
func (h *LeadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	visitorID := chi.URLParam(r, "visitorID")

	lead, err := h.leadRepo.FindByVisitorID(r.Context(), visitorID)
	if err != nil {
		log.Error().Err(err).Str("visitorId", visitorID).Msg("failed to load lead")
		writeError(w, apperrors.Database(err))
		return
	}
	if lead == nil {
		writeError(w, apperrors.NotFound("lead"))
		return
	}

	session, err := h.sessions.FindByVisitorID(r.Context(), visitorID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lead":    lead,
		"session": session,
	})
}

// POST /api/v1/leads/{visitorID}/sync
// Manual re-sync: resets the snapshot to pending and enqueues an intent.
func (h *LeadsHandler) Resync(w http.ResponseWriter, r *http.Request) {
	visitorID := chi.URLParam(r, "visitorID")

	lead, err := h.leadRepo.FindByVisitorID(r.Context(), visitorID)
	if err != nil {
		log.Error().Err(err).Str("visitorId", visitorID).Msg("failed to load lead")
		writeError(w, apperrors.Database(err))
		return
	}
	if lead == nil {
		writeError(w, apperrors.NotFound("lead"))
		return
	}

	if err := h.leadRepo.MarkSyncPending(r.Context(), visitorID); err != nil {
		log.Error().Err(err).Str("visitorId", visitorID).Msg("failed to reset sync status")
		writeError(w, apperrors.Database(err))
		return
	}
	h.syncs.Enqueue(visitorID)

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventManualResync,
		VisitorID: visitorID,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"visitorId": visitorID,
		"status":    "queued",
	})
}
