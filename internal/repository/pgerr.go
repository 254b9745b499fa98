package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sentinel/ledger/internal/domain"
)

// SQLSTATE codes for the integrity and range failures the schema can raise.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgNotNullViolation    = "23502"
	pgCheckViolation      = "23514"
	pgNumericOutOfRange   = "22003"
)

// mapPgError turns constraint violations into domain errors and wraps
// everything else with op.
func mapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch pgErr.Code {
	case pgForeignKeyViolation:
		return domain.ErrReferenceNotFound(foreignKeyMessage(pgErr), err)
	case pgUniqueViolation:
		return domain.ErrDuplicate(uniqueMessage(pgErr), err)
	case pgNotNullViolation:
		ve := domain.ErrValidation(fmt.Sprintf("%s is required", pgErr.ColumnName))
		ve.Cause = err
		return ve
	case pgCheckViolation:
		ve := domain.ErrValidation(fmt.Sprintf("constraint %s violated", pgErr.ConstraintName))
		ve.Cause = err
		return ve
	case pgNumericOutOfRange:
		ve := domain.ErrValidation("numeric value out of range")
		ve.Cause = err
		return ve
	}
	return fmt.Errorf("%s: %w", op, err)
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	switch pgErr.TableName {
	case "sessions":
		return "referenced user does not exist"
	case "spins":
		return "referenced session does not exist"
	}
	return "referenced row does not exist"
}

func uniqueMessage(pgErr *pgconn.PgError) string {
	if pgErr.TableName == "users" {
		return "user already registered"
	}
	return fmt.Sprintf("duplicate key on %s", pgErr.TableName)
}
