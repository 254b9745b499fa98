package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/infra"
)

const spinColumns = `
	spin_id, session_id, spin_number, bet_type, bet_target,
	COALESCE(bet_amount, 0), COALESCE(win_amount, 0), bank_after_spin,
	COALESCE(spin_time, now())`

type spinRepo struct{}

// NewSpinRepository returns a pgx-backed SpinRepository.
func NewSpinRepository() SpinRepository {
	return &spinRepo{}
}

func (r *spinRepo) Insert(ctx context.Context, db DBTX, params domain.RecordSpinParams) (*domain.Spin, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO spins
		  (session_id, spin_number, bet_type, bet_target, bet_amount, win_amount, bank_after_spin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+spinColumns,
		params.SessionID,
		params.SpinNumber,
		params.BetType,
		params.BetTarget,
		infra.DecimalToNumeric(params.BetAmount),
		infra.DecimalToNumeric(params.WinAmount),
		infra.DecimalToNumeric(params.BankAfterSpin),
	)
	sp, err := scanSpin(row)
	if err != nil {
		return nil, mapPgError("insert spin", err)
	}
	return sp, nil
}

// ListBySession returns spins in recording order. A non-positive limit
// binds LIMIT NULL, which returns every row.
func (r *spinRepo) ListBySession(ctx context.Context, db DBTX, sessionID int64, limit int) ([]domain.Spin, error) {
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	rows, err := db.Query(ctx, `
		SELECT `+spinColumns+`
		FROM spins
		WHERE session_id = $1
		ORDER BY spin_time ASC, spin_id ASC
		LIMIT $2`, sessionID, lim)
	if err != nil {
		return nil, fmt.Errorf("list spins: %w", err)
	}
	defer rows.Close()

	var spins []domain.Spin
	for rows.Next() {
		sp, err := scanSpin(rows)
		if err != nil {
			return nil, err
		}
		spins = append(spins, *sp)
	}
	return spins, rows.Err()
}

func (r *spinRepo) LastNumbers(ctx context.Context, db DBTX, sessionID int64, n int) ([]int, error) {
	if n <= 0 {
		return []int{}, nil
	}
	rows, err := db.Query(ctx, `
		SELECT spin_number
		FROM spins
		WHERE session_id = $1 AND spin_number IS NOT NULL
		ORDER BY spin_time DESC, spin_id DESC
		LIMIT $2`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("last spin numbers: %w", err)
	}
	defer rows.Close()

	numbers := make([]int, 0, n)
	for rows.Next() {
		var num int
		if err := rows.Scan(&num); err != nil {
			return nil, fmt.Errorf("scan spin number: %w", err)
		}
		numbers = append(numbers, num)
	}
	return numbers, rows.Err()
}

func (r *spinRepo) CountBySession(ctx context.Context, db DBTX, sessionID int64) (int64, error) {
	var n int64
	if err := db.QueryRow(ctx, `SELECT count(*) FROM spins WHERE session_id = $1`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count spins: %w", err)
	}
	return n, nil
}

func (r *spinRepo) CountByUser(ctx context.Context, db DBTX, userID int64) (int64, error) {
	var n int64
	err := db.QueryRow(ctx, `
		SELECT count(*)
		FROM spins sp
		JOIN sessions s ON s.session_id = sp.session_id
		WHERE s.user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count user spins: %w", err)
	}
	return n, nil
}

func scanSpin(row pgx.Row) (*domain.Spin, error) {
	var sp domain.Spin
	var betNum, winNum, bankNum pgtype.Numeric
	err := row.Scan(
		&sp.SpinID, &sp.SessionID, &sp.SpinNumber, &sp.BetType, &sp.BetTarget,
		&betNum, &winNum, &bankNum, &sp.SpinTime,
	)
	if err != nil {
		return nil, fmt.Errorf("scan spin: %w", err)
	}

	var convErr error
	if sp.BetAmount, convErr = infra.NumericToDecimal(betNum); convErr != nil {
		return nil, fmt.Errorf("convert bet_amount: %w", convErr)
	}
	if sp.WinAmount, convErr = infra.NumericToDecimal(winNum); convErr != nil {
		return nil, fmt.Errorf("convert win_amount: %w", convErr)
	}
	if sp.BankAfterSpin, convErr = infra.NumericToDecimal(bankNum); convErr != nil {
		return nil, fmt.Errorf("convert bank_after_spin: %w", convErr)
	}
	return &sp, nil
}
