package events

import (
	"time"

	"github.com/google/uuid"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "TURN_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Turn lifecycle event types carried over the internal bus and, for the
// finalizing ones, mirrored outward over NATS.
const (
	TypeTurnStarted    = "TURN_STARTED"
	TypeTurnCompleted  = "TURN_COMPLETED"
	TypeTurnStopped    = "TURN_STOPPED"
	TypeTurnFailed     = "TURN_FAILED"
	TypeContextUpdated = "CONTEXT_UPDATED"
)

func NewTurnStarted(sessionID, userID uuid.UUID, seq uint64) Event {
	return BaseEvent{
		Type: TypeTurnStarted,
		Data: map[string]interface{}{
			"session_id": sessionID.String(),
			"user_id":    userID.String(),
			"sequence":   seq,
		},
		OccurredAt: time.Now(),
	}
}

func NewTurnCompleted(sessionID, userID, messageID uuid.UUID, seq uint64, userText string) Event {
	return BaseEvent{
		Type: TypeTurnCompleted,
		Data: map[string]interface{}{
			"session_id": sessionID.String(),
			"user_id":    userID.String(),
			"message_id": messageID.String(),
			"sequence":   seq,
			"user_text":  userText,
		},
		OccurredAt: time.Now(),
	}
}

func NewTurnStopped(sessionID, userID, messageID uuid.UUID, seq uint64) Event {
	return BaseEvent{
		Type: TypeTurnStopped,
		Data: map[string]interface{}{
			"session_id": sessionID.String(),
			"user_id":    userID.String(),
			"message_id": messageID.String(),
			"sequence":   seq,
		},
		OccurredAt: time.Now(),
	}
}

func NewTurnFailed(sessionID, userID uuid.UUID, seq uint64, reason string) Event {
	return BaseEvent{
		Type: TypeTurnFailed,
		Data: map[string]interface{}{
			"session_id": sessionID.String(),
			"user_id":    userID.String(),
			"sequence":   seq,
			"reason":     reason,
		},
		OccurredAt: time.Now(),
	}
}

func NewContextUpdated(sessionID, userID uuid.UUID, addedConversationIDs []uuid.UUID, autoSelected bool) Event {
	added := make([]string, len(addedConversationIDs))
	for i, id := range addedConversationIDs {
		added[i] = id.String()
	}
	return BaseEvent{
		Type: TypeContextUpdated,
		Data: map[string]interface{}{
			"session_id":    sessionID.String(),
			"user_id":       userID.String(),
			"added":         added,
			"auto_selected": autoSelected,
		},
		OccurredAt: time.Now(),
	}
}
