package guard

import (
	"context"
	"sync"
	"time"

	"github.com/sentinel/ledger/internal/domain"
)

// IdempotencyGuard deduplicates writes by idempotency key. A key is
// reserved by Check, then either completed with the response to replay or
// released with Remove. Entries expire after ttl.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]*idemEntry
	ttl  time.Duration
	now  func() time.Time
}

type idemEntry struct {
	at       time.Time
	response []byte
	done     bool
}

// NewIdempotencyGuard creates an in-memory idempotency guard.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{
		seen: make(map[string]*idemEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Check reserves key. It is refused while a request holding the same key
// is still in flight or after it completed.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	if e, ok := ig.live(key); ok {
		reason := "duplicate request: idempotency key already processed"
		if !e.done {
			reason = "duplicate request: idempotency key in flight"
		}
		return domain.GuardResult{Allowed: false, Reason: reason, Guard: "idempotency"}
	}

	ig.seen[key] = &idemEntry{at: ig.now()}
	return domain.GuardResult{Allowed: true}
}

// Complete stores the response for a reserved key.
func (ig *IdempotencyGuard) Complete(key string, response []byte) {
	if key == "" {
		return
	}
	ig.mu.Lock()
	defer ig.mu.Unlock()
	ig.seen[key] = &idemEntry{at: ig.now(), response: response, done: true}
}

// Replay returns the stored response of a completed key.
func (ig *IdempotencyGuard) Replay(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	ig.mu.Lock()
	defer ig.mu.Unlock()
	e, ok := ig.live(key)
	if !ok || !e.done {
		return nil, false
	}
	return e.response, true
}

// Remove deletes a key from the seen set (for retry scenarios).
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

// live returns an unexpired entry; callers hold mu.
func (ig *IdempotencyGuard) live(key string) (*idemEntry, bool) {
	e, ok := ig.seen[key]
	if !ok {
		return nil, false
	}
	if ig.now().Sub(e.at) > ig.ttl {
		delete(ig.seen, key)
		return nil, false
	}
	return e, true
}

// Sweep drops expired keys.
func (ig *IdempotencyGuard) Sweep() {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	for key := range ig.seen {
		ig.live(key)
	}
}
