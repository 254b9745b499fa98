package ledger

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/export"
)

// GetUser returns a user or NOT_FOUND.
func (e *Engine) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := e.users.FindByID(ctx, e.pool, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, userNotFound(userID)
	}
	return u, nil
}

// ListUsers returns users newest first.
func (e *Engine) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	users, err := e.users.List(ctx, e.pool, limit, offset)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// GetSession returns a session or NOT_FOUND.
func (e *Engine) GetSession(ctx context.Context, sessionID int64) (*domain.Session, error) {
	s, err := e.sessions.FindByID(ctx, e.pool, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, sessionNotFound(sessionID)
	}
	return s, nil
}

// ActiveSession returns the user's most recently started active session,
// or nil when there is none.
func (e *Engine) ActiveSession(ctx context.Context, userID int64) (*domain.Session, error) {
	s, err := e.sessions.FindActiveByUser(ctx, e.pool, userID)
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}
	return s, nil
}

// ListSessions returns a user's sessions newest first.
func (e *Engine) ListSessions(ctx context.Context, userID int64, limit int) ([]domain.Session, error) {
	sessions, err := e.sessions.ListByUser(ctx, e.pool, userID, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// SpinHistory returns a session's spins in recording order. limit <= 0
// returns the full history.
func (e *Engine) SpinHistory(ctx context.Context, sessionID int64, limit int) ([]domain.Spin, error) {
	if _, err := e.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	spins, err := e.spins.ListBySession(ctx, e.pool, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if spins == nil {
		spins = []domain.Spin{}
	}
	return spins, nil
}

// LastNumbers returns up to n wheel numbers, most recent first. n <= 0
// means the last ZeroWindow spins.
func (e *Engine) LastNumbers(ctx context.Context, sessionID int64, n int) ([]int, error) {
	if _, err := e.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return e.spins.LastNumbers(ctx, e.pool, sessionID, domain.ClampLimit(n, domain.ZeroWindow))
}

// ExportSpinsCSV writes the session's full spin history to w. Nothing is
// written when the session is missing or has no spins.
func (e *Engine) ExportSpinsCSV(ctx context.Context, sessionID int64, w io.Writer) (int, error) {
	if _, err := e.GetSession(ctx, sessionID); err != nil {
		return 0, err
	}
	count, err := e.spins.CountBySession(ctx, e.pool, sessionID)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, domain.ErrNotFound("spins for session", strconv.FormatInt(sessionID, 10))
	}
	spins, err := e.spins.ListBySession(ctx, e.pool, sessionID, 0)
	if err != nil {
		return 0, err
	}
	if err := export.WriteSpinsCSV(w, spins); err != nil {
		return 0, err
	}
	e.logger.Info("spins exported", "session_id", sessionID, "rows", len(spins))
	return len(spins), nil
}
