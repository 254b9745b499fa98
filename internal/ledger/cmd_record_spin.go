package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
)

// RecordSpin appends a spin and applies the writer's post-spin state to the
// session in one transaction. current_bank always ends equal to the spin's
// bank_after_spin. A spin for a missing session is a referential-integrity
// failure, not a lookup miss.
func (e *Engine) RecordSpin(ctx context.Context, params domain.RecordSpinParams) (*domain.SpinResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var result domain.SpinResult
	err := e.inTx(ctx, "record spin", func(tx pgx.Tx) error {
		locked, err := e.sessions.LockForUpdate(ctx, tx, params.SessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if locked == nil {
			return domain.ErrReferenceNotFound(fmt.Sprintf("session %d does not exist", params.SessionID), nil)
		}
		if !locked.IsActive {
			return domain.ErrSessionClosed(params.SessionID)
		}

		spin, err := e.spins.Insert(ctx, tx, params)
		if err != nil {
			return err
		}

		s, err := e.sessions.Update(ctx, tx, params.SessionID, params.SessionState())
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("apply spin to session %d: row vanished under lock", params.SessionID)
		}

		result = domain.SpinResult{Spin: spin, Session: s}
		return e.emit(ctx, tx, domain.NewSpinRecordedEvent(spin, s))
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("spin recorded",
		"session_id", params.SessionID,
		"spin_id", result.Spin.SpinID,
		"bank_after_spin", result.Spin.BankAfterSpin.String(),
	)
	return &result, nil
}
