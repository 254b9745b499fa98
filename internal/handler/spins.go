package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sentinel/ledger/internal/auth"
	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/guard"
)

// IdempotencyHeader names the optional client key that makes spin writes
// safe to retry.
const IdempotencyHeader = "Idempotency-Key"

// SpinHandler handles spin recording and history endpoints.
type SpinHandler struct {
	ledger  Ledger
	limiter *guard.RateLimiter
	idem    *guard.IdempotencyGuard
}

// NewSpinHandler creates a new SpinHandler.
func NewSpinHandler(ledger Ledger, limiter *guard.RateLimiter, idem *guard.IdempotencyGuard) *SpinHandler {
	return &SpinHandler{ledger: ledger, limiter: limiter, idem: idem}
}

// Record handles POST /sessions/{sessionID}/spins. A repeated
// Idempotency-Key replays the first response instead of writing again.
func (h *SpinHandler) Record(w http.ResponseWriter, r *http.Request) {
	sessionID, err := IDParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}

	caller := auth.SubjectFromContext(r.Context())
	if caller == "" {
		caller = ClientIP(r)
	}
	if res := h.limiter.Check(r.Context(), "spins:"+caller); !res.Allowed {
		RespondError(w, domain.ErrRateLimited(res.Reason))
		return
	}

	key := ""
	if k := r.Header.Get(IdempotencyHeader); k != "" {
		key = fmt.Sprintf("%d:%s", sessionID, k)
	}
	if body, ok := h.idem.Replay(key); ok {
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
		return
	}
	if res := h.idem.Check(r.Context(), key); !res.Allowed {
		RespondError(w, domain.ErrConflict(res.Reason))
		return
	}

	var params domain.RecordSpinParams
	if err := DecodeJSON(r, &params); err != nil {
		h.idem.Remove(key)
		RespondError(w, err)
		return
	}
	params.SessionID = sessionID

	result, err := h.ledger.RecordSpin(r.Context(), params)
	if err != nil {
		h.idem.Remove(key)
		RespondError(w, err)
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		h.idem.Remove(key)
		RespondError(w, domain.ErrInternal("encode spin result", err))
		return
	}
	h.idem.Complete(key, body)
	w.WriteHeader(http.StatusCreated)
	w.Write(body)
}

// History handles GET /sessions/{sessionID}/spins?limit=. No limit returns
// the full history, oldest first.
func (h *SpinHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID, err := IDParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, err := IntQuery(r, "limit", 0)
	if err != nil {
		RespondError(w, err)
		return
	}

	spins, err := h.ledger.SpinHistory(r.Context(), sessionID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, spins)
}

// lastNumbersResponse is the shape of GET /sessions/{sessionID}/spins/last.
type lastNumbersResponse struct {
	SessionID int64 `json:"session_id"`
	Numbers   []int `json:"numbers"`
}

// LastNumbers handles GET /sessions/{sessionID}/spins/last?n=.
func (h *SpinHandler) LastNumbers(w http.ResponseWriter, r *http.Request) {
	sessionID, err := IDParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}
	n, err := IntQuery(r, "n", domain.ZeroWindow)
	if err != nil {
		RespondError(w, err)
		return
	}

	numbers, err := h.ledger.LastNumbers(r.Context(), sessionID, n)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, lastNumbersResponse{SessionID: sessionID, Numbers: numbers})
}

// Export handles GET /sessions/{sessionID}/spins/export as a CSV download.
func (h *SpinHandler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID, err := IDParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}

	var buf bytes.Buffer
	if _, err := h.ledger.ExportSpinsCSV(r.Context(), sessionID, &buf); err != nil {
		RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="session_%d_spins.csv"`, sessionID))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
