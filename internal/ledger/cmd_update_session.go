package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
)

// UpdateSession writes the non-nil fields of upd to an active session.
// An empty update returns the session unchanged.
func (e *Engine) UpdateSession(ctx context.Context, sessionID int64, upd domain.SessionUpdate) (*domain.Session, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return e.GetSession(ctx, sessionID)
	}

	var session *domain.Session
	err := e.inTx(ctx, "update session", func(tx pgx.Tx) error {
		if _, err := e.lockActiveSession(ctx, tx, sessionID); err != nil {
			return err
		}
		s, err := e.sessions.Update(ctx, tx, sessionID, upd)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("update session %d: row vanished under lock", sessionID)
		}
		session = s
		return e.emit(ctx, tx, domain.NewSessionUpdatedEvent(s))
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("session updated", "session_id", sessionID, "current_bank", session.CurrentBank.String())
	return session, nil
}
