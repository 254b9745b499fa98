package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
)

// DeleteResult reports what an administrative user deletion removed.
type DeleteResult struct {
	UserID          int64 `json:"user_id"`
	SessionsRemoved int64 `json:"sessions_removed"`
	SpinsRemoved    int64 `json:"spins_removed"`
}

// DeleteUser removes a user; the schema cascades to sessions and spins.
func (e *Engine) DeleteUser(ctx context.Context, userID int64) (*DeleteResult, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}

	res := &DeleteResult{UserID: userID}
	err := e.inTx(ctx, "delete user", func(tx pgx.Tx) error {
		u, err := e.users.LockForUpdate(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if u == nil {
			return userNotFound(userID)
		}

		if res.SessionsRemoved, err = e.sessions.CountByUser(ctx, tx, userID); err != nil {
			return err
		}
		if res.SpinsRemoved, err = e.spins.CountByUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := e.users.Delete(ctx, tx, userID); err != nil {
			return err
		}
		return e.emit(ctx, tx, domain.NewUserDeletedEvent(userID, res.SessionsRemoved, res.SpinsRemoved))
	})
	if err != nil {
		return nil, err
	}

	e.logger.Warn("user deleted",
		"user_id", userID,
		"sessions_removed", res.SessionsRemoved,
		"spins_removed", res.SpinsRemoved,
	)
	return res, nil
}
