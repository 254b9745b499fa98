package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
)

// RegisterUser returns the user with the given id, creating it on first
// contact. Profile fields of an existing user are left as they are.
// created reports whether this call inserted the row.
func (e *Engine) RegisterUser(ctx context.Context, params domain.RegisterUserParams) (user *domain.User, created bool, err error) {
	if err := domain.ValidateUserID(params.UserID); err != nil {
		return nil, false, err
	}

	err = e.inTx(ctx, "register user", func(tx pgx.Tx) error {
		existing, err := e.users.FindByID(ctx, tx, params.UserID)
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		if existing != nil {
			user = existing
			return nil
		}

		u, err := e.users.Create(ctx, tx, params)
		if err != nil {
			return err
		}
		if err := e.emit(ctx, tx, domain.NewUserRegisteredEvent(u)); err != nil {
			return err
		}
		user, created = u, true
		return nil
	})

	// Lost the insert race: the other writer's row is the answer.
	if domain.HasCode(err, domain.CodeDuplicate) {
		u, findErr := e.users.FindByID(ctx, e.pool, params.UserID)
		if findErr != nil {
			return nil, false, fmt.Errorf("re-read user: %w", findErr)
		}
		if u == nil {
			return nil, false, err
		}
		return u, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		e.logger.Info("user registered", "user_id", user.UserID)
	}
	return user, created, nil
}
