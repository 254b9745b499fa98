package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sentinel/ledger/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool is a DBTX that can also open transactions (*pgxpool.Pool).
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserRepository provides access to users.
type UserRepository interface {
	// FindByID returns a user by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, userID int64) (*domain.User, error)

	// LockForUpdate acquires a row-level lock on the user, or returns nil if absent.
	// Opening and deleting sessions serialize on this lock.
	LockForUpdate(ctx context.Context, tx pgx.Tx, userID int64) (*domain.User, error)

	// Create inserts a new user. There is no conflict clause: a second insert
	// of the same user_id fails with a duplicate error.
	Create(ctx context.Context, db DBTX, params domain.RegisterUserParams) (*domain.User, error)

	// List returns users ordered by created_at DESC.
	List(ctx context.Context, db DBTX, limit, offset int) ([]domain.User, error)

	// Delete removes a user; sessions and spins cascade. Returns rows affected.
	Delete(ctx context.Context, db DBTX, userID int64) (int64, error)
}

// SessionRepository provides access to sessions.
// last_update_time is maintained by the sessions trigger and never written here.
type SessionRepository interface {
	// Create inserts an active session with current_bank = initial_bank.
	Create(ctx context.Context, db DBTX, params domain.OpenSessionParams) (*domain.Session, error)

	// FindByID returns a session by ID, or nil if absent.
	FindByID(ctx context.Context, db DBTX, sessionID int64) (*domain.Session, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the session.
	LockForUpdate(ctx context.Context, tx pgx.Tx, sessionID int64) (*domain.Session, error)

	// FindActiveByUser returns the most recently started active session, or nil.
	FindActiveByUser(ctx context.Context, db DBTX, userID int64) (*domain.Session, error)

	// ListByUser returns a user's sessions, newest first.
	ListByUser(ctx context.Context, db DBTX, userID int64, limit int) ([]domain.Session, error)

	// Update applies a partial update to an active session.
	// Returns nil if the session is missing or closed.
	Update(ctx context.Context, db DBTX, sessionID int64, upd domain.SessionUpdate) (*domain.Session, error)

	// Close sets is_active=false and end_time=now() on an active session.
	// Returns nil if the session is missing or already closed.
	Close(ctx context.Context, db DBTX, sessionID int64) (*domain.Session, error)

	// CountByUser returns how many sessions a user owns.
	CountByUser(ctx context.Context, db DBTX, userID int64) (int64, error)
}

// SpinRepository provides access to spins. Spins are append-only: there is
// no update path.
type SpinRepository interface {
	// Insert appends a spin to a session's history.
	Insert(ctx context.Context, db DBTX, params domain.RecordSpinParams) (*domain.Spin, error)

	// ListBySession returns spins oldest first. limit <= 0 returns all.
	ListBySession(ctx context.Context, db DBTX, sessionID int64, limit int) ([]domain.Spin, error)

	// LastNumbers returns the last n wheel numbers, newest first.
	LastNumbers(ctx context.Context, db DBTX, sessionID int64, n int) ([]int, error)

	// CountBySession returns the number of spins in a session.
	CountBySession(ctx context.Context, db DBTX, sessionID int64) (int64, error)

	// CountByUser returns the number of spins across a user's sessions.
	CountByUser(ctx context.Context, db DBTX, userID int64) (int64, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the mutation).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in insertion order.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished stamps published_at on the given rows.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
