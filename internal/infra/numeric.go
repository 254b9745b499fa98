package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// NumericToDecimal converts a pgtype.Numeric (PostgreSQL numeric(14,2)) to a decimal.
// Returns an error if the value is NULL, NaN or infinite.
func NumericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, fmt.Errorf("numeric value is NULL")
	}
	if n.NaN {
		return decimal.Zero, fmt.Errorf("numeric value is NaN")
	}
	if n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, fmt.Errorf("numeric value is infinite")
	}
	if n.Int == nil {
		return decimal.Zero, nil
	}
	// pgtype.Numeric stores value as Int * 10^Exp, the same shape decimal uses.
	return decimal.NewFromBigInt(new(big.Int).Set(n.Int), n.Exp), nil
}

// DecimalToNumeric converts a decimal to pgtype.Numeric for writing to PostgreSQL.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              new(big.Int).Set(d.Coefficient()),
		Exp:              d.Exponent(),
		NaN:              false,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

// DecimalPtrToNumeric maps nil to SQL NULL.
func DecimalPtrToNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return DecimalToNumeric(*d)
}
