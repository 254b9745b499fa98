package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	maxStrategyNameLen = 100
	maxBetFieldLen     = 50
	// MaxListLimit caps page sizes for list queries.
	MaxListLimit = 1000
	// MoneyScale is the number of decimal places money columns keep.
	MoneyScale = 2
)

// MaxMoney is the exclusive upper bound of a NUMERIC(14,2) column.
var MaxMoney = decimal.New(1, 14-MoneyScale)

// ValidateUserID checks the external identity.
func ValidateUserID(id int64) error {
	if id <= 0 {
		return ErrValidation(fmt.Sprintf("user_id must be positive, got %d", id))
	}
	return nil
}

// ValidatePositiveAmount checks that a money amount is strictly positive.
func ValidatePositiveAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrValidation(fmt.Sprintf("%s must be positive, got %s", field, amount.String()))
	}
	return validateMoneyRange(field, amount)
}

// ValidateNonNegativeAmount checks that a money amount is zero or more.
func ValidateNonNegativeAmount(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrValidation(fmt.Sprintf("%s must not be negative, got %s", field, amount.String()))
	}
	return validateMoneyRange(field, amount)
}

// validateMoneyRange rejects amounts a NUMERIC(14,2) column would round or
// refuse. Trailing zeros past the scale are fine.
func validateMoneyRange(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(MoneyScale)) {
		return ErrValidation(fmt.Sprintf("%s has more than %d decimal places, got %s", field, MoneyScale, amount.String()))
	}
	if amount.Abs().GreaterThanOrEqual(MaxMoney) {
		return ErrValidation(fmt.Sprintf("%s must be less than %s, got %s", field, MaxMoney.String(), amount.String()))
	}
	return nil
}

// ValidateSpinNumber checks a wheel result against European roulette bounds.
func ValidateSpinNumber(n *int) error {
	if n == nil {
		return nil
	}
	if *n < MinSpinNumber || *n > MaxSpinNumber {
		return ErrValidation(fmt.Sprintf("spin_number must be between %d and %d, got %d", MinSpinNumber, MaxSpinNumber, *n))
	}
	return nil
}

// ValidateStrategyName allows empty (default applies) or a bounded name.
func ValidateStrategyName(name string) error {
	if len(name) > maxStrategyNameLen {
		return ErrValidation(fmt.Sprintf("strategy_name exceeds %d characters", maxStrategyNameLen))
	}
	if name != "" && strings.TrimSpace(name) == "" {
		return ErrValidation("strategy_name must not be blank")
	}
	return nil
}

// ValidateZCount checks the rolling zero counter against its window.
func ValidateZCount(n *int) error {
	if n == nil {
		return nil
	}
	if *n < 0 || *n > ZeroWindow {
		return ErrValidation(fmt.Sprintf("z_count_last_50 must be between 0 and %d, got %d", ZeroWindow, *n))
	}
	return nil
}

func validateBetField(field string, v *string) error {
	if v != nil && len(*v) > maxBetFieldLen {
		return ErrValidation(fmt.Sprintf("%s exceeds %d characters", field, maxBetFieldLen))
	}
	return nil
}

// Validate checks OpenSessionParams.
func (p OpenSessionParams) Validate() error {
	if err := ValidateUserID(p.UserID); err != nil {
		return err
	}
	if err := ValidateStrategyName(p.StrategyName); err != nil {
		return err
	}
	if err := ValidatePositiveAmount("initial_bank", p.InitialBank); err != nil {
		return err
	}
	return ValidatePositiveAmount("base_bet", p.BaseBet)
}

// Validate checks SessionUpdate.
func (u SessionUpdate) Validate() error {
	if u.CurrentBank != nil {
		if err := ValidateNonNegativeAmount("current_bank", *u.CurrentBank); err != nil {
			return err
		}
	}
	if u.BaseBet != nil {
		if err := ValidatePositiveAmount("base_bet", *u.BaseBet); err != nil {
			return err
		}
	}
	if u.ZeroBuffer != nil {
		if err := ValidateNonNegativeAmount("zero_buffer", *u.ZeroBuffer); err != nil {
			return err
		}
	}
	return ValidateZCount(u.ZCountLast50)
}

// Validate checks RecordSpinParams.
func (p RecordSpinParams) Validate() error {
	if err := ValidateSpinNumber(p.SpinNumber); err != nil {
		return err
	}
	if err := validateBetField("bet_type", p.BetType); err != nil {
		return err
	}
	if err := validateBetField("bet_target", p.BetTarget); err != nil {
		return err
	}
	if err := ValidateNonNegativeAmount("bet_amount", p.BetAmount); err != nil {
		return err
	}
	if err := ValidateNonNegativeAmount("win_amount", p.WinAmount); err != nil {
		return err
	}
	if err := ValidateNonNegativeAmount("bank_after_spin", p.BankAfterSpin); err != nil {
		return err
	}
	return p.SessionState().Validate()
}

// ClampLimit normalises a caller-supplied page size.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
