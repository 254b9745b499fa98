package handler

import (
	"context"
	"io"

	"github.com/sentinel/ledger/internal/domain"
)

// Ledger is the slice of *ledger.Engine the bot-facing handlers use.
type Ledger interface {
	RegisterUser(ctx context.Context, params domain.RegisterUserParams) (*domain.User, bool, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	ListSessions(ctx context.Context, userID int64, limit int) ([]domain.Session, error)
	ActiveSession(ctx context.Context, userID int64) (*domain.Session, error)

	OpenSession(ctx context.Context, params domain.OpenSessionParams) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID int64) (*domain.Session, error)
	UpdateSession(ctx context.Context, sessionID int64, upd domain.SessionUpdate) (*domain.Session, error)
	CloseSession(ctx context.Context, sessionID int64) (*domain.Session, error)

	RecordSpin(ctx context.Context, params domain.RecordSpinParams) (*domain.SpinResult, error)
	SpinHistory(ctx context.Context, sessionID int64, limit int) ([]domain.Spin, error)
	LastNumbers(ctx context.Context, sessionID int64, n int) ([]int, error)
	ExportSpinsCSV(ctx context.Context, sessionID int64, w io.Writer) (int, error)
}
