package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/infra"
)

// Nullable columns with defaults are read through COALESCE so rows written
// outside this package still scan. A NULL is_active counts as active, which
// is what the sessions_end_time_state check assumes too.
const sessionColumns = `
	session_id, user_id,
	COALESCE(strategy_name, 'adaptive_shield'),
	initial_bank, current_bank, base_bet,
	COALESCE(current_streak, 0), COALESCE(z_count_last_50, 0), COALESCE(zero_buffer, 0),
	COALESCE(is_active, TRUE),
	COALESCE(start_time, now()), COALESCE(last_update_time, now()), end_time`

const activePredicate = `is_active IS NOT FALSE`

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

func (r *sessionRepo) Create(ctx context.Context, db DBTX, params domain.OpenSessionParams) (*domain.Session, error) {
	strategy := params.StrategyName
	if strategy == "" {
		strategy = domain.DefaultStrategyName
	}
	bank := infra.DecimalToNumeric(params.InitialBank)

	row := db.QueryRow(ctx, `
		INSERT INTO sessions (user_id, strategy_name, initial_bank, current_bank, base_bet, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING `+sessionColumns,
		params.UserID, strategy, bank, bank, infra.DecimalToNumeric(params.BaseBet))

	s, err := scanSession(row)
	if err != nil {
		return nil, mapPgError("insert session", err)
	}
	return s, nil
}

func (r *sessionRepo) FindByID(ctx context.Context, db DBTX, sessionID int64) (*domain.Session, error) {
	row := db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	return nilOnNoRows(scanSession(row))
}

func (r *sessionRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, sessionID int64) (*domain.Session, error) {
	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1 FOR UPDATE`, sessionID)
	return nilOnNoRows(scanSession(row))
}

func (r *sessionRepo) FindActiveByUser(ctx context.Context, db DBTX, userID int64) (*domain.Session, error) {
	row := db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND `+activePredicate+`
		ORDER BY start_time DESC, session_id DESC
		LIMIT 1`, userID)
	return nilOnNoRows(scanSession(row))
}

func (r *sessionRepo) ListByUser(ctx context.Context, db DBTX, userID int64, limit int) ([]domain.Session, error) {
	limit = domain.ClampLimit(limit, 50)
	rows, err := db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY start_time DESC, session_id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Update builds the SET clause from the non-nil fields. last_update_time is
// left to the trigger.
func (r *sessionRepo) Update(ctx context.Context, db DBTX, sessionID int64, upd domain.SessionUpdate) (*domain.Session, error) {
	if upd.IsEmpty() {
		return nil, domain.ErrValidation("session update has no fields")
	}

	var setClauses []string
	var args []interface{}
	argIdx := 1
	set := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if upd.CurrentBank != nil {
		set("current_bank", infra.DecimalPtrToNumeric(upd.CurrentBank))
	}
	if upd.BaseBet != nil {
		set("base_bet", infra.DecimalPtrToNumeric(upd.BaseBet))
	}
	if upd.CurrentStreak != nil {
		set("current_streak", *upd.CurrentStreak)
	}
	if upd.ZCountLast50 != nil {
		set("z_count_last_50", *upd.ZCountLast50)
	}
	if upd.ZeroBuffer != nil {
		set("zero_buffer", infra.DecimalPtrToNumeric(upd.ZeroBuffer))
	}

	args = append(args, sessionID)
	query := fmt.Sprintf(`
		UPDATE sessions SET %s
		WHERE session_id = $%d AND %s
		RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, activePredicate, sessionColumns)

	s, err := nilOnNoRows(scanSession(db.QueryRow(ctx, query, args...)))
	if err != nil {
		return nil, mapPgError("update session", err)
	}
	return s, nil
}

func (r *sessionRepo) Close(ctx context.Context, db DBTX, sessionID int64) (*domain.Session, error) {
	row := db.QueryRow(ctx, `
		UPDATE sessions SET is_active = FALSE, end_time = now()
		WHERE session_id = $1 AND `+activePredicate+`
		RETURNING `+sessionColumns, sessionID)
	s, err := nilOnNoRows(scanSession(row))
	if err != nil {
		return nil, mapPgError("close session", err)
	}
	return s, nil
}

func (r *sessionRepo) CountByUser(ctx context.Context, db DBTX, userID int64) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var initialNum, currentNum, baseBetNum, zeroBufNum pgtype.Numeric
	err := row.Scan(
		&s.SessionID, &s.UserID, &s.StrategyName,
		&initialNum, &currentNum, &baseBetNum,
		&s.CurrentStreak, &s.ZCountLast50, &zeroBufNum,
		&s.IsActive, &s.StartTime, &s.LastUpdateTime, &s.EndTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	var convErr error
	if s.InitialBank, convErr = infra.NumericToDecimal(initialNum); convErr != nil {
		return nil, fmt.Errorf("convert initial_bank: %w", convErr)
	}
	if s.CurrentBank, convErr = infra.NumericToDecimal(currentNum); convErr != nil {
		return nil, fmt.Errorf("convert current_bank: %w", convErr)
	}
	if s.BaseBet, convErr = infra.NumericToDecimal(baseBetNum); convErr != nil {
		return nil, fmt.Errorf("convert base_bet: %w", convErr)
	}
	if s.ZeroBuffer, convErr = infra.NumericToDecimal(zeroBufNum); convErr != nil {
		return nil, fmt.Errorf("convert zero_buffer: %w", convErr)
	}
	return &s, nil
}

// nilOnNoRows maps pgx.ErrNoRows to a nil result, matching the FindByID contract.
func nilOnNoRows[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}
