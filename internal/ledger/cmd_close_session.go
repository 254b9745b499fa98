package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
)

// CloseSession ends an active session. end_time is set exactly once; closing
// a closed session is SESSION_CLOSED.
func (e *Engine) CloseSession(ctx context.Context, sessionID int64) (*domain.Session, error) {
	var session *domain.Session
	err := e.inTx(ctx, "close session", func(tx pgx.Tx) error {
		if _, err := e.lockActiveSession(ctx, tx, sessionID); err != nil {
			return err
		}
		s, err := e.sessions.Close(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("close session %d: row vanished under lock", sessionID)
		}
		session = s
		return e.emit(ctx, tx, domain.NewSessionClosedEvent(s))
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("session closed",
		"session_id", session.SessionID,
		"user_id", session.UserID,
		"profit_loss", session.ProfitLoss().String(),
	)
	return session, nil
}
