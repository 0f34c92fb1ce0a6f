package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/auth"
	"github.com/thehypeloop/dialmate/backend/internal/campaign"
	"github.com/thehypeloop/dialmate/backend/internal/feedback"
	"github.com/thehypeloop/dialmate/backend/internal/sequencer"
)

// CampaignHandler exposes the dialing session over HTTP
type CampaignHandler struct {
	engine  *sequencer.Engine
	builder *campaign.Builder
	logger  zerolog.Logger
}

// NewCampaignHandler creates a new CampaignHandler
func NewCampaignHandler(engine *sequencer.Engine, builder *campaign.Builder, logger zerolog.Logger) *CampaignHandler {
	return &CampaignHandler{
		engine:  engine,
		builder: builder,
		logger:  logger,
	}
}

// RequireOperator middleware — operator or admin role allowed
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.GetUserFromContext(r.Context())
		if !ok || (claims.Role != "admin" && claims.Role != "operator") {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"operator role required"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Import builds a dial queue from an uploaded contact list
func (h *CampaignHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Contacts []campaign.ImportRow `json:"contacts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	queue, err := h.builder.FromImport(req.Contacts)
	if err != nil {
		h.writeBuildError(w, err)
		return
	}
	if err := h.engine.SetQueue(queue); err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "queue loaded",
		"queueSize": len(queue),
	})
}

// Filter builds a dial queue from contacts whose latest feedback matches
func (h *CampaignHandler) Filter(w http.ResponseWriter, r *http.Request) {
	var criteria campaign.FilterCriteria
	if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	queue, err := h.builder.FromFilter(criteria)
	if err != nil {
		h.writeBuildError(w, err)
		return
	}
	if err := h.engine.SetQueue(queue); err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "queue loaded",
		"queueSize": len(queue),
	})
}

// Remote consumes the dial queue prepared by the active web user
func (h *CampaignHandler) Remote(w http.ResponseWriter, r *http.Request) {
	queue, err := h.builder.FromRemoteQueue(r.Context())
	if err != nil {
		h.writeBuildError(w, err)
		return
	}
	if err := h.engine.SetQueue(queue); err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "remote queue loaded",
		"queueSize": len(queue),
	})
}

// Start begins dialing the loaded queue
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "campaign started"})
}

// Pause freezes the countdown
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Pause(); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "campaign paused"})
}

// Resume continues a paused countdown
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Resume(); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "campaign resumed"})
}

// Feedback records the outcome of the call in progress
func (h *CampaignHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var sub feedback.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.engine.SubmitFeedback(sub)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "feedback recorded",
		"record":  record,
	})
}

// ManualDial interjects an immediate call to an arbitrary number
func (h *CampaignHandler) ManualDial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.ManualDial(req.Name, req.Phone); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "manual call placed"})
}

// Status returns the full session snapshot
func (h *CampaignHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot())
}

// writeBuildError maps queue build failures to HTTP statuses
func (h *CampaignHandler) writeBuildError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNoQueue):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, campaign.ErrEmptyQueue):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("queue build failed")
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// writeEngineError maps engine failures to HTTP statuses
func (h *CampaignHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sequencer.ErrCallInProgress),
		errors.Is(err, sequencer.ErrAlreadyRunning),
		errors.Is(err, sequencer.ErrQueueLocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sequencer.ErrEmptyQueue),
		errors.Is(err, sequencer.ErrBadPhone),
		errors.Is(err, feedback.ErrInvalidFeedback),
		errors.Is(err, feedback.ErrMissingReminderTime),
		errors.Is(err, feedback.ErrInvalidReminderTime):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sequencer.ErrNotRunning),
		errors.Is(err, sequencer.ErrNotPaused),
		errors.Is(err, sequencer.ErrNoCallInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("campaign operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
