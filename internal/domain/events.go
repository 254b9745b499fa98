package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all ledger event types.
type EventType string

const (
	EventUserRegistered EventType = "ledger.user.registered"
	EventUserDeleted    EventType = "ledger.user.deleted"
	EventSessionOpened  EventType = "ledger.session.opened"
	EventSessionUpdated EventType = "ledger.session.updated"
	EventSessionClosed  EventType = "ledger.session.closed"
	EventSpinRecorded   EventType = "ledger.spin.recorded"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateUser    AggregateType = "user"
	AggregateSession AggregateType = "session"
)

// OutboxDraft is a row of event_outbox, written in the same transaction
// as the mutation it describes.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func newDraft(agg AggregateType, aggID int64, evt EventType, body interface{}) OutboxDraft {
	payload, err := json.Marshal(body)
	if err != nil {
		payload = json.RawMessage(`{}`)
	}
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   strconv.FormatInt(aggID, 10),
		EventType:     evt,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewUserRegisteredEvent is emitted when a user row is first created.
func NewUserRegisteredEvent(u *User) OutboxDraft {
	return newDraft(AggregateUser, u.UserID, EventUserRegistered, u)
}

// NewUserDeletedEvent is emitted on administrative deletion; sessions and
// spins go with the user.
func NewUserDeletedEvent(userID int64, sessions, spins int64) OutboxDraft {
	return newDraft(AggregateUser, userID, EventUserDeleted, map[string]int64{
		"user_id":          userID,
		"sessions_removed": sessions,
		"spins_removed":    spins,
	})
}

func NewSessionOpenedEvent(s *Session) OutboxDraft {
	return newDraft(AggregateSession, s.SessionID, EventSessionOpened, s)
}

func NewSessionUpdatedEvent(s *Session) OutboxDraft {
	return newDraft(AggregateSession, s.SessionID, EventSessionUpdated, s)
}

func NewSessionClosedEvent(s *Session) OutboxDraft {
	return newDraft(AggregateSession, s.SessionID, EventSessionClosed, s)
}

func NewSpinRecordedEvent(sp *Spin, s *Session) OutboxDraft {
	return newDraft(AggregateSession, s.SessionID, EventSpinRecorded, SpinResult{Spin: sp, Session: s})
}
