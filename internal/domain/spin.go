package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// European wheel bounds for spin_number.
const (
	MinSpinNumber = 0
	MaxSpinNumber = 36
)

// Spin is the immutable record of one bet outcome within a session.
type Spin struct {
	SpinID        int64           `json:"spin_id"`
	SessionID     int64           `json:"session_id"`
	SpinNumber    *int            `json:"spin_number,omitempty"`
	BetType       *string         `json:"bet_type,omitempty"`
	BetTarget     *string         `json:"bet_target,omitempty"`
	BetAmount     decimal.Decimal `json:"bet_amount"`
	WinAmount     decimal.Decimal `json:"win_amount"`
	BankAfterSpin decimal.Decimal `json:"bank_after_spin"`
	SpinTime      time.Time       `json:"spin_time"`
}

// Net returns win_amount - bet_amount.
func (s *Spin) Net() decimal.Decimal {
	return s.WinAmount.Sub(s.BetAmount)
}

// IsZero reports whether the wheel landed on zero.
func (s *Spin) IsZero() bool {
	return s.SpinNumber != nil && *s.SpinNumber == 0
}

// RecordSpinParams carries one processed bet together with the session
// state the writer computed after applying it. The engine stores the spin
// and the state in one transaction, with current_bank = BankAfterSpin.
type RecordSpinParams struct {
	SessionID     int64           `json:"-"`
	SpinNumber    *int            `json:"spin_number,omitempty"`
	BetType       *string         `json:"bet_type,omitempty"`
	BetTarget     *string         `json:"bet_target,omitempty"`
	BetAmount     decimal.Decimal `json:"bet_amount"`
	WinAmount     decimal.Decimal `json:"win_amount"`
	BankAfterSpin decimal.Decimal `json:"bank_after_spin"`

	CurrentStreak *int             `json:"current_streak,omitempty"`
	ZCountLast50  *int             `json:"z_count_last_50,omitempty"`
	ZeroBuffer    *decimal.Decimal `json:"zero_buffer,omitempty"`
}

// SessionState returns the session update implied by the spin.
func (p RecordSpinParams) SessionState() SessionUpdate {
	bank := p.BankAfterSpin
	return SessionUpdate{
		CurrentBank:   &bank,
		CurrentStreak: p.CurrentStreak,
		ZCountLast50:  p.ZCountLast50,
		ZeroBuffer:    p.ZeroBuffer,
	}
}

// SpinResult is returned by RecordSpin.
type SpinResult struct {
	Spin    *Spin    `json:"spin"`
	Session *Session `json:"session"`
}
