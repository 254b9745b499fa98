package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/repository"
)

// Options tunes engine policy.
type Options struct {
	// AllowParallelSessions lets a user hold more than one active session.
	// The schema permits it; by default the engine refuses.
	AllowParallelSessions bool
}

// Engine runs every ledger operation. Commands execute in a single
// transaction and write their outbox event inside it:
//  1. lock the owning row (user or session)
//  2. check state
//  3. mutate + append outbox event
type Engine struct {
	pool     repository.Pool
	users    repository.UserRepository
	sessions repository.SessionRepository
	spins    repository.SpinRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger
	opts     Options
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	pool repository.Pool,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	spins repository.SpinRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
	opts Options,
) *Engine {
	return &Engine{
		pool:     pool,
		users:    users,
		sessions: sessions,
		spins:    spins,
		outbox:   outbox,
		logger:   logger,
		opts:     opts,
	}
}

// inTx runs fn in a transaction and commits when it returns nil.
func (e *Engine) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.ErrInternal(op+": commit tx", err)
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, tx pgx.Tx, draft domain.OutboxDraft) error {
	if err := e.outbox.Insert(ctx, tx, draft); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// lockActiveSession locks the session row and requires it to be active.
func (e *Engine) lockActiveSession(ctx context.Context, tx pgx.Tx, sessionID int64) (*domain.Session, error) {
	s, err := e.sessions.LockForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if s == nil {
		return nil, sessionNotFound(sessionID)
	}
	if !s.IsActive {
		return nil, domain.ErrSessionClosed(sessionID)
	}
	return s, nil
}

func sessionNotFound(id int64) *domain.AppError {
	return domain.ErrNotFound("session", strconv.FormatInt(id, 10))
}

func userNotFound(id int64) *domain.AppError {
	return domain.ErrNotFound("user", strconv.FormatInt(id, 10))
}
