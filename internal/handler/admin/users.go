package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sentinel/ledger/internal/auth"
	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/handler"
	"github.com/sentinel/ledger/internal/ledger"
)

// UserAdmin is the slice of *ledger.Engine the admin handlers use.
type UserAdmin interface {
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	DeleteUser(ctx context.Context, userID int64) (*ledger.DeleteResult, error)
}

// UserAdminHandler handles admin user management.
type UserAdminHandler struct {
	users  UserAdmin
	logger *slog.Logger
}

// NewUserAdminHandler creates a new UserAdminHandler.
func NewUserAdminHandler(users UserAdmin, logger *slog.Logger) *UserAdminHandler {
	return &UserAdminHandler{users: users, logger: logger}
}

// ListUsers handles GET /admin/users?limit=&offset=.
func (h *UserAdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := handler.IntQuery(r, "limit", 50)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	offset, err := handler.IntQuery(r, "offset", 0)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, users)
}

// DeleteUser handles DELETE /admin/users/{userID}. Sessions and spins go
// with the user.
func (h *UserAdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := handler.IDParam(r, "userID")
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	res, err := h.users.DeleteUser(r.Context(), userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	h.logger.Info("admin deleted user",
		"user_id", userID,
		"admin", auth.SubjectFromContext(r.Context()),
		"request_id", handler.GetRequestID(r.Context()),
	)
	handler.RespondJSON(w, http.StatusOK, res)
}
