package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStrategyName is stored when a session is opened without a strategy.
const DefaultStrategyName = "adaptive_shield"

// ZeroWindow is the trailing spin window z_count_last_50 is computed over.
const ZeroWindow = 50

// Session is one continuous run of a betting strategy for a user.
type Session struct {
	SessionID      int64           `json:"session_id"`
	UserID         int64           `json:"user_id"`
	StrategyName   string          `json:"strategy_name"`
	InitialBank    decimal.Decimal `json:"initial_bank"`
	CurrentBank    decimal.Decimal `json:"current_bank"`
	BaseBet        decimal.Decimal `json:"base_bet"`
	CurrentStreak  int             `json:"current_streak"`
	ZCountLast50   int             `json:"z_count_last_50"`
	ZeroBuffer     decimal.Decimal `json:"zero_buffer"`
	IsActive       bool            `json:"is_active"`
	StartTime      time.Time       `json:"start_time"`
	LastUpdateTime time.Time       `json:"last_update_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
}

// ProfitLoss returns current_bank - initial_bank.
func (s *Session) ProfitLoss() decimal.Decimal {
	return s.CurrentBank.Sub(s.InitialBank)
}

// OpenSessionParams is the input for opening a session.
type OpenSessionParams struct {
	UserID       int64           `json:"user_id"`
	StrategyName string          `json:"strategy_name,omitempty"`
	InitialBank  decimal.Decimal `json:"initial_bank"`
	BaseBet      decimal.Decimal `json:"base_bet"`
}

// SessionUpdate is a partial update of a session's live state.
// Nil fields are left untouched.
type SessionUpdate struct {
	CurrentBank   *decimal.Decimal `json:"current_bank,omitempty"`
	BaseBet       *decimal.Decimal `json:"base_bet,omitempty"`
	CurrentStreak *int             `json:"current_streak,omitempty"`
	ZCountLast50  *int             `json:"z_count_last_50,omitempty"`
	ZeroBuffer    *decimal.Decimal `json:"zero_buffer,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u SessionUpdate) IsEmpty() bool {
	return u.CurrentBank == nil && u.BaseBet == nil && u.CurrentStreak == nil &&
		u.ZCountLast50 == nil && u.ZeroBuffer == nil
}
