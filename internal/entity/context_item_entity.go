package entity

import (
	"time"

	"github.com/google/uuid"
)

// ContextItem attaches one conversation to a chat session as evidence the
// assistant may reference. While a stream is in flight every attached item
// is locked; items may only be unlocked when no stream is in flight.
type ContextItem struct {
	Id             uuid.UUID
	ChatSessionId  uuid.UUID
	ConversationId uuid.UUID
	Locked         bool
	AutoSelected   bool
	CreatedAt      time.Time
}
