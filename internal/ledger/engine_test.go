package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/repository"
	"github.com/sentinel/ledger/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newTestEngine(t *testing.T, opts Options) (*Engine, *pgxpool.Pool) {
	t.Helper()
	pool := testutil.OpenTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(pool,
		repository.NewUserRepository(),
		repository.NewSessionRepository(),
		repository.NewSpinRepository(),
		repository.NewOutboxRepository(),
		logger, opts)
	return e, pool
}

func countOutbox(t *testing.T, pool *pgxpool.Pool, eventType domain.EventType) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(),
		`SELECT count(*) FROM event_outbox WHERE event_type = $1`, string(eventType)).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestRegisterUser_GetOrCreate(t *testing.T) {
	e, pool := newTestEngine(t, Options{})
	ctx := context.Background()

	u, created, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42, Username: strPtr("alice")})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", *u.Username)

	again, created, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42, Username: strPtr("renamed")})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "alice", *again.Username, "existing profile is kept")
	assert.True(t, u.CreatedAt.Equal(again.CreatedAt))

	assert.Equal(t, 1, countOutbox(t, pool, domain.EventUserRegistered))

	_, _, err = e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 0})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))
}

func TestRegisterUser_Concurrent(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, created, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 77})
			errs[i] = err
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, createdCount)
}

// Alice (42) opens a session, records one losing spin and closes it.
func TestSessionLifecycle(t *testing.T) {
	e, pool := newTestEngine(t, Options{})
	ctx := context.Background()

	_, _, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42, Username: strPtr("alice")})
	require.NoError(t, err)

	s, err := e.OpenSession(ctx, domain.OpenSessionParams{
		UserID:      42,
		InitialBank: dec("1000.00"),
		BaseBet:     dec("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStrategyName, s.StrategyName)
	assert.True(t, s.CurrentBank.Equal(dec("1000")))
	assert.True(t, s.IsActive)
	assert.Nil(t, s.EndTime)

	time.Sleep(10 * time.Millisecond)
	res, err := e.RecordSpin(ctx, domain.RecordSpinParams{
		SessionID:     s.SessionID,
		SpinNumber:    intPtr(17),
		BetType:       strPtr("red"),
		BetAmount:     dec("10.00"),
		WinAmount:     decimal.Zero,
		BankAfterSpin: dec("990.00"),
		CurrentStreak: intPtr(-1),
	})
	require.NoError(t, err)
	assert.Equal(t, 17, *res.Spin.SpinNumber)
	assert.True(t, res.Session.CurrentBank.Equal(res.Spin.BankAfterSpin))
	assert.Equal(t, -1, res.Session.CurrentStreak)
	assert.True(t, res.Session.LastUpdateTime.After(s.LastUpdateTime))

	active, err := e.ActiveSession(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, s.SessionID, active.SessionID)

	closed, err := e.CloseSession(ctx, s.SessionID)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.EndTime)
	assert.Equal(t, "-10", closed.ProfitLoss().String())

	active, err = e.ActiveSession(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, active)

	history, err := e.SpinHistory(ctx, s.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)

	assert.Equal(t, 1, countOutbox(t, pool, domain.EventSessionOpened))
	assert.Equal(t, 1, countOutbox(t, pool, domain.EventSpinRecorded))
	assert.Equal(t, 1, countOutbox(t, pool, domain.EventSessionClosed))
}

func TestClosedSessionRejectsWrites(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	_, _, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42})
	require.NoError(t, err)
	s, err := e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("100"), BaseBet: dec("1")})
	require.NoError(t, err)
	closed, err := e.CloseSession(ctx, s.SessionID)
	require.NoError(t, err)

	_, err = e.CloseSession(ctx, s.SessionID)
	assert.True(t, domain.HasCode(err, domain.CodeSessionClosed))

	_, err = e.RecordSpin(ctx, domain.RecordSpinParams{SessionID: s.SessionID, BankAfterSpin: dec("99")})
	assert.True(t, domain.HasCode(err, domain.CodeSessionClosed))

	bank := dec("5")
	_, err = e.UpdateSession(ctx, s.SessionID, domain.SessionUpdate{CurrentBank: &bank})
	assert.True(t, domain.HasCode(err, domain.CodeSessionClosed))

	after, err := e.GetSession(ctx, s.SessionID)
	require.NoError(t, err)
	assert.True(t, closed.EndTime.Equal(*after.EndTime), "end_time is set once")
}

func TestOpenSession_Rules(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{})
		_, err := e.OpenSession(ctx, domain.OpenSessionParams{UserID: 999, InitialBank: dec("100"), BaseBet: dec("1")})
		assert.True(t, domain.HasCode(err, domain.CodeReferenceNotFound))
	})

	t.Run("second active session refused", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{})
		_, _, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42})
		require.NoError(t, err)
		_, err = e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("100"), BaseBet: dec("1")})
		require.NoError(t, err)
		_, err = e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("100"), BaseBet: dec("1")})
		assert.True(t, domain.HasCode(err, domain.CodeConflict))
	})

	t.Run("parallel sessions allowed", func(t *testing.T) {
		e, _ := newTestEngine(t, Options{AllowParallelSessions: true})
		_, _, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42})
		require.NoError(t, err)
		_, err = e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("100"), BaseBet: dec("1")})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		second, err := e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("200"), BaseBet: dec("2")})
		require.NoError(t, err)

		active, err := e.ActiveSession(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, second.SessionID, active.SessionID)
	})
}

func TestUpdateSession(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	_, _, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42})
	require.NoError(t, err)
	s, err := e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("100"), BaseBet: dec("1")})
	require.NoError(t, err)

	same, err := e.UpdateSession(ctx, s.SessionID, domain.SessionUpdate{})
	require.NoError(t, err)
	assert.True(t, same.LastUpdateTime.Equal(s.LastUpdateTime), "empty update does not touch the row")

	buf := dec("12.5")
	upd, err := e.UpdateSession(ctx, s.SessionID, domain.SessionUpdate{ZCountLast50: intPtr(3), ZeroBuffer: &buf})
	require.NoError(t, err)
	assert.Equal(t, 3, upd.ZCountLast50)
	assert.Equal(t, "12.5", upd.ZeroBuffer.String())
	assert.True(t, upd.CurrentBank.Equal(s.CurrentBank))

	_, err = e.UpdateSession(ctx, 9999, domain.SessionUpdate{ZCountLast50: intPtr(1)})
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))

	_, err = e.UpdateSession(ctx, s.SessionID, domain.SessionUpdate{ZCountLast50: intPtr(51)})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))
}

func TestRecordSpin_Errors(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	_, err := e.RecordSpin(ctx, domain.RecordSpinParams{SessionID: 9999, BankAfterSpin: dec("1")})
	assert.True(t, domain.HasCode(err, domain.CodeReferenceNotFound))
	assert.Contains(t, err.Error(), "session 9999 does not exist")

	_, err = e.RecordSpin(ctx, domain.RecordSpinParams{SessionID: 1, SpinNumber: intPtr(37), BankAfterSpin: dec("1")})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))
}

func TestLastNumbersAndExport(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	_, _, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42})
	require.NoError(t, err)
	s, err := e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("100"), BaseBet: dec("1")})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = e.ExportSpinsCSV(ctx, s.SessionID, &buf)
	assert.True(t, domain.HasCode(err, domain.CodeNotFound), "no spins, nothing to export")
	assert.Zero(t, buf.Len())

	bank := decimal.NewFromInt(100)
	for _, n := range []int{5, 0, 22} {
		bank = bank.Sub(decimal.NewFromInt(1))
		_, err := e.RecordSpin(ctx, domain.RecordSpinParams{
			SessionID: s.SessionID, SpinNumber: intPtr(n),
			BetAmount: dec("1"), BankAfterSpin: bank,
		})
		require.NoError(t, err)
	}

	nums, err := e.LastNumbers(ctx, s.SessionID, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{22, 0}, nums)

	rows, err := e.ExportSpinsCSV(ctx, s.SessionID, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)

	_, err = e.LastNumbers(ctx, 9999, 5)
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
}

func TestDeleteUser_Cascades(t *testing.T) {
	e, pool := newTestEngine(t, Options{})
	ctx := context.Background()
	_, _, err := e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42})
	require.NoError(t, err)
	s, err := e.OpenSession(ctx, domain.OpenSessionParams{UserID: 42, InitialBank: dec("100"), BaseBet: dec("1")})
	require.NoError(t, err)
	_, err = e.RecordSpin(ctx, domain.RecordSpinParams{SessionID: s.SessionID, BankAfterSpin: dec("99")})
	require.NoError(t, err)

	res, err := e.DeleteUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.SessionsRemoved)
	assert.Equal(t, int64(1), res.SpinsRemoved)

	_, err = e.GetUser(ctx, 42)
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
	_, err = e.GetSession(ctx, s.SessionID)
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
	assert.Equal(t, 1, countOutbox(t, pool, domain.EventUserDeleted))

	_, err = e.DeleteUser(ctx, 42)
	assert.True(t, domain.HasCode(err, domain.CodeNotFound))
}

func TestListQueries(t *testing.T) {
	e, _ := newTestEngine(t, Options{})
	ctx := context.Background()

	users, err := e.ListUsers(ctx, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	_, _, err = e.RegisterUser(ctx, domain.RegisterUserParams{UserID: 42})
	require.NoError(t, err)
	sessions, err := e.ListSessions(ctx, 42, 0)
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}
