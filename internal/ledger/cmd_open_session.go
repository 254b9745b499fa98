package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
)

// OpenSession starts a session with current_bank = initial_bank, zeroed
// counters and is_active = true.
func (e *Engine) OpenSession(ctx context.Context, params domain.OpenSessionParams) (*domain.Session, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var session *domain.Session
	err := e.inTx(ctx, "open session", func(tx pgx.Tx) error {
		owner, err := e.users.LockForUpdate(ctx, tx, params.UserID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if owner == nil {
			return domain.ErrReferenceNotFound(fmt.Sprintf("user %d does not exist", params.UserID), nil)
		}

		if !e.opts.AllowParallelSessions {
			active, err := e.sessions.FindActiveByUser(ctx, tx, params.UserID)
			if err != nil {
				return fmt.Errorf("find active session: %w", err)
			}
			if active != nil {
				return domain.ErrConflict(fmt.Sprintf("user %d already has active session %d", params.UserID, active.SessionID))
			}
		}

		s, err := e.sessions.Create(ctx, tx, params)
		if err != nil {
			return err
		}
		session = s
		return e.emit(ctx, tx, domain.NewSessionOpenedEvent(s))
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("session opened",
		"session_id", session.SessionID,
		"user_id", session.UserID,
		"strategy", session.StrategyName,
		"initial_bank", session.InitialBank.String(),
	)
	return session, nil
}
