package handler

import (
	"net/http"
	"strconv"

	"github.com/sentinel/ledger/internal/domain"
)

// UserHandler handles bot user registration and per-user session lookups.
type UserHandler struct {
	ledger Ledger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(ledger Ledger) *UserHandler {
	return &UserHandler{ledger: ledger}
}

// Register handles POST /users. Returns 201 on first contact and 200 when
// the user already exists.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var params domain.RegisterUserParams
	if err := DecodeJSON(r, &params); err != nil {
		RespondError(w, err)
		return
	}

	user, created, err := h.ledger.RegisterUser(r.Context(), params)
	if err != nil {
		RespondError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	RespondJSON(w, status, user)
}

// Get handles GET /users/{userID}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := IDParam(r, "userID")
	if err != nil {
		RespondError(w, err)
		return
	}

	user, err := h.ledger.GetUser(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, user)
}

// ListSessions handles GET /users/{userID}/sessions?limit=.
func (h *UserHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := IDParam(r, "userID")
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, err := IntQuery(r, "limit", 50)
	if err != nil {
		RespondError(w, err)
		return
	}

	sessions, err := h.ledger.ListSessions(r.Context(), userID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, sessions)
}

// ActiveSession handles GET /users/{userID}/sessions/active.
func (h *UserHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	userID, err := IDParam(r, "userID")
	if err != nil {
		RespondError(w, err)
		return
	}

	session, err := h.ledger.ActiveSession(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	if session == nil {
		RespondError(w, domain.ErrNotFound("active session for user", strconv.FormatInt(userID, 10)))
		return
	}
	RespondJSON(w, http.StatusOK, session)
}
