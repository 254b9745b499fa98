package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/export"
	"github.com/sentinel/ledger/internal/guard"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger is an in-memory Ledger with just enough behaviour for the
// HTTP layer: one user table, sessions and spins keyed by id.
type fakeLedger struct {
	mu          sync.Mutex
	users       map[int64]*domain.User
	sessions    map[int64]*domain.Session
	spins       map[int64][]domain.Spin
	nextSession int64
	nextSpin    int64
	spinCalls   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users:    map[int64]*domain.User{},
		sessions: map[int64]*domain.Session{},
		spins:    map[int64][]domain.Spin{},
	}
}

func (f *fakeLedger) RegisterUser(_ context.Context, p domain.RegisterUserParams) (*domain.User, bool, error) {
	if err := domain.ValidateUserID(p.UserID); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[p.UserID]; ok {
		return u, false, nil
	}
	u := &domain.User{UserID: p.UserID, Username: p.Username, CreatedAt: time.Now()}
	f.users[p.UserID] = u
	return u, true, nil
}

func (f *fakeLedger) GetUser(_ context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound("user", strconv.FormatInt(id, 10))
}

func (f *fakeLedger) ListSessions(_ context.Context, userID int64, _ int) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Session{}
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeLedger) ActiveSession(_ context.Context, userID int64) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.IsActive {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) OpenSession(_ context.Context, p domain.OpenSessionParams) (*domain.Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[p.UserID]; !ok {
		return nil, domain.ErrReferenceNotFound("user does not exist", nil)
	}
	f.nextSession++
	s := &domain.Session{
		SessionID: f.nextSession, UserID: p.UserID, StrategyName: domain.DefaultStrategyName,
		InitialBank: p.InitialBank, CurrentBank: p.InitialBank, BaseBet: p.BaseBet,
		IsActive: true, StartTime: time.Now(), LastUpdateTime: time.Now(),
	}
	f.sessions[s.SessionID] = s
	return s, nil
}

func (f *fakeLedger) GetSession(_ context.Context, id int64) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound("session", strconv.FormatInt(id, 10))
}

func (f *fakeLedger) activeSession(id int64) (*domain.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound("session", strconv.FormatInt(id, 10))
	}
	if !s.IsActive {
		return nil, domain.ErrSessionClosed(id)
	}
	return s, nil
}

func (f *fakeLedger) UpdateSession(_ context.Context, id int64, upd domain.SessionUpdate) (*domain.Session, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.activeSession(id)
	if err != nil {
		return nil, err
	}
	if upd.CurrentBank != nil {
		s.CurrentBank = *upd.CurrentBank
	}
	if upd.CurrentStreak != nil {
		s.CurrentStreak = *upd.CurrentStreak
	}
	return s, nil
}

func (f *fakeLedger) CloseSession(_ context.Context, id int64) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.activeSession(id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s.IsActive = false
	s.EndTime = &now
	return s, nil
}

func (f *fakeLedger) RecordSpin(_ context.Context, p domain.RecordSpinParams) (*domain.SpinResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spinCalls++
	if _, ok := f.sessions[p.SessionID]; !ok {
		return nil, domain.ErrReferenceNotFound(fmt.Sprintf("session %d does not exist", p.SessionID), nil)
	}
	s, err := f.activeSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	f.nextSpin++
	sp := domain.Spin{
		SpinID: f.nextSpin, SessionID: p.SessionID, SpinNumber: p.SpinNumber,
		BetAmount: p.BetAmount, WinAmount: p.WinAmount, BankAfterSpin: p.BankAfterSpin, SpinTime: time.Now(),
	}
	f.spins[p.SessionID] = append(f.spins[p.SessionID], sp)
	s.CurrentBank = p.BankAfterSpin
	return &domain.SpinResult{Spin: &sp, Session: s}, nil
}

func (f *fakeLedger) SpinHistory(ctx context.Context, id int64, limit int) ([]domain.Spin, error) {
	if _, err := f.GetSession(ctx, id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.Spin{}, f.spins[id]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLedger) LastNumbers(ctx context.Context, id int64, n int) ([]int, error) {
	spins, err := f.SpinHistory(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	out := []int{}
	for i := len(spins) - 1; i >= 0 && len(out) < n; i-- {
		if spins[i].SpinNumber != nil {
			out = append(out, *spins[i].SpinNumber)
		}
	}
	return out, nil
}

func (f *fakeLedger) ExportSpinsCSV(ctx context.Context, id int64, w io.Writer) (int, error) {
	spins, err := f.SpinHistory(ctx, id, 0)
	if err != nil {
		return 0, err
	}
	if len(spins) == 0 {
		return 0, domain.ErrNotFound("spins for session", strconv.FormatInt(id, 10))
	}
	return len(spins), export.WriteSpinsCSV(w, spins)
}

func newTestRouter(l Ledger, spinLimit int) http.Handler {
	users := NewUserHandler(l)
	sessions := NewSessionHandler(l)
	spins := NewSpinHandler(l, guard.NewRateLimiter(spinLimit, time.Minute), guard.NewIdempotencyGuard(time.Hour))

	r := chi.NewRouter()
	r.Use(JSONContentType)
	r.Post("/users", users.Register)
	r.Get("/users/{userID}", users.Get)
	r.Get("/users/{userID}/sessions", users.ListSessions)
	r.Get("/users/{userID}/sessions/active", users.ActiveSession)
	r.Post("/sessions", sessions.Open)
	r.Get("/sessions/{sessionID}", sessions.Get)
	r.Patch("/sessions/{sessionID}", sessions.Update)
	r.Post("/sessions/{sessionID}/close", sessions.Close)
	r.Post("/sessions/{sessionID}/spins", spins.Record)
	r.Get("/sessions/{sessionID}/spins", spins.History)
	r.Get("/sessions/{sessionID}/spins/last", spins.LastNumbers)
	r.Get("/sessions/{sessionID}/spins/export", spins.Export)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["code"]
}

func TestUserEndpoints(t *testing.T) {
	h := newTestRouter(newFakeLedger(), 0)

	w := do(t, h, http.MethodPost, "/users", `{"user_id":42,"username":"alice"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodPost, "/users", `{"user_id":42,"username":"alice"}`)
	assert.Equal(t, http.StatusOK, w.Code, "second registration is a lookup")

	w = do(t, h, http.MethodPost, "/users", `{"user_id":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/users/42", "")
	require.Equal(t, http.StatusOK, w.Code)
	var u domain.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, "alice", *u.Username)

	w = do(t, h, http.MethodGet, "/users/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/users/42/sessions/active", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/users/42/sessions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSessionEndpoints(t *testing.T) {
	h := newTestRouter(newFakeLedger(), 0)
	do(t, h, http.MethodPost, "/users", `{"user_id":42}`)

	w := do(t, h, http.MethodPost, "/sessions", `{"user_id":99,"initial_bank":"100","base_bet":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, domain.CodeReferenceNotFound, errorCode(t, w))

	w = do(t, h, http.MethodPost, "/sessions", `{"user_id":42,"initial_bank":"0","base_bet":"1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions", `{"user_id":42,"initial_bank":"1000.00","base_bet":10}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var s domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.True(t, s.CurrentBank.Equal(decimal.NewFromInt(1000)))

	w = do(t, h, http.MethodPatch, "/sessions/1", `{"current_streak":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, 3, s.CurrentStreak)

	w = do(t, h, http.MethodGet, "/users/42/sessions/active", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/1/close", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.False(t, s.IsActive)
	assert.NotNil(t, s.EndTime)

	w = do(t, h, http.MethodPost, "/sessions/1/close", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.CodeSessionClosed, errorCode(t, w))

	w = do(t, h, http.MethodGet, "/sessions/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpinEndpoints(t *testing.T) {
	fake := newFakeLedger()
	h := newTestRouter(fake, 0)
	do(t, h, http.MethodPost, "/users", `{"user_id":42}`)
	do(t, h, http.MethodPost, "/sessions", `{"user_id":42,"initial_bank":"100","base_bet":"1"}`)

	for i, n := range []int{3, 0, 36} {
		body := `{"spin_number":` + strconv.Itoa(n) + `,"bet_amount":"1","win_amount":"0","bank_after_spin":"` + strconv.Itoa(99-i) + `"}`
		w := do(t, h, http.MethodPost, "/sessions/1/spins", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, h, http.MethodPost, "/sessions/1/spins", `{"spin_number":37,"bank_after_spin":"1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/sessions/9999/spins", `{"bank_after_spin":"1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, domain.CodeReferenceNotFound, errorCode(t, w))

	w = do(t, h, http.MethodGet, "/sessions/1/spins?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var spins []domain.Spin
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spins))
	assert.Len(t, spins, 2)

	w = do(t, h, http.MethodGet, "/sessions/1/spins/last?n=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"session_id":1,"numbers":[36,0]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/sessions/1/spins/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "session_1_spins.csv")
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)

	w = do(t, h, http.MethodGet, "/sessions/2/spins/export", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(t, h, http.MethodPost, "/sessions/1/close", "")
	w = do(t, h, http.MethodPost, "/sessions/1/spins", `{"bank_after_spin":"1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.CodeSessionClosed, errorCode(t, w))
}

func TestSpinIdempotentReplay(t *testing.T) {
	fake := newFakeLedger()
	h := newTestRouter(fake, 0)
	do(t, h, http.MethodPost, "/users", `{"user_id":42}`)
	do(t, h, http.MethodPost, "/sessions", `{"user_id":42,"initial_bank":"100","base_bet":"1"}`)

	body := `{"spin_number":5,"bet_amount":"1","bank_after_spin":"99"}`
	first := do(t, h, http.MethodPost, "/sessions/1/spins", body, IdempotencyHeader, "spin-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := do(t, h, http.MethodPost, "/sessions/1/spins", body, IdempotencyHeader, "spin-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, fake.spinCalls)

	failed := do(t, h, http.MethodPost, "/sessions/1/spins", `{"spin_number":99,"bank_after_spin":"1"}`, IdempotencyHeader, "spin-2")
	assert.Equal(t, http.StatusBadRequest, failed.Code)
	retry := do(t, h, http.MethodPost, "/sessions/1/spins", body, IdempotencyHeader, "spin-2")
	assert.Equal(t, http.StatusCreated, retry.Code, "a failed attempt releases its key")
}

func TestSpinRateLimit(t *testing.T) {
	h := newTestRouter(newFakeLedger(), 2)
	do(t, h, http.MethodPost, "/users", `{"user_id":42}`)
	do(t, h, http.MethodPost, "/sessions", `{"user_id":42,"initial_bank":"100","base_bet":"1"}`)

	body := `{"bank_after_spin":"99"}`
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/1/spins", body).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/1/spins", body).Code)
	w := do(t, h, http.MethodPost, "/sessions/1/spins", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, domain.CodeRateLimited, errorCode(t, w))
}
