package dto

import "github.com/google/uuid"

// PublishTurnCompletedMessage is the internal bus payload emitted after a
// turn finalizes, consumed by the context auto-selection worker.
type PublishTurnCompletedMessage struct {
	ChatSessionId uuid.UUID `json:"chat_session_id"`
	UserId        uuid.UUID `json:"user_id"`
	UserText      string    `json:"user_text"`
}
