package handler

import (
	"net/http"

	"github.com/sentinel/ledger/internal/domain"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	ledger Ledger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(ledger Ledger) *SessionHandler {
	return &SessionHandler{ledger: ledger}
}

// Open handles POST /sessions.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var params domain.OpenSessionParams
	if err := DecodeJSON(r, &params); err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.ledger.OpenSession(r.Context(), params)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, session)
}

// Get handles GET /sessions/{sessionID}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, err := IDParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.ledger.GetSession(r.Context(), sessionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, session)
}

// Update handles PATCH /sessions/{sessionID}.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	sessionID, err := IDParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}
	var upd domain.SessionUpdate
	if err := DecodeJSON(r, &upd); err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.ledger.UpdateSession(r.Context(), sessionID, upd)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, session)
}

// Close handles POST /sessions/{sessionID}/close.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	sessionID, err := IDParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.ledger.CloseSession(r.Context(), sessionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, session)
}
