package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

// ContactsHandler exposes the contact directory over HTTP
type ContactsHandler struct {
	directory *directory.Directory
	logger    zerolog.Logger
}

// NewContactsHandler creates a new ContactsHandler
func NewContactsHandler(dir *directory.Directory, logger zerolog.Logger) *ContactsHandler {
	return &ContactsHandler{
		directory: dir,
		logger:    logger,
	}
}

// contactView is a contact enriched with fields derived from its history
type contactView struct {
	types.Contact
	LatestFeedback string `json:"latestFeedback,omitempty"`
	LastCalledAt   string `json:"lastCalledAt,omitempty"`
}

func toView(contact types.Contact) contactView {
	view := contactView{Contact: contact}
	if latest, ok := contact.LatestRecord(); ok {
		view.LatestFeedback = latest.Feedback
		view.LastCalledAt = latest.Timestamp
	}
	return view
}

// List returns every contact with derived status fields
func (h *ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	contacts := h.directory.All()
	views := make([]contactView, 0, len(contacts))
	for _, contact := range contacts {
		views = append(views, toView(contact))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contacts": views,
		"total":    len(views),
	})
}

// Get returns a single contact by phone number, in any formatting
func (h *ContactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	contact, ok := h.directory.Get(phone)
	if !ok {
		writeError(w, http.StatusNotFound, "contact not found")
		return
	}
	writeJSON(w, http.StatusOK, toView(contact))
}
