package dto

import (
	"time"

	"github.com/google/uuid"
)

type AddContextItemRequest struct {
	ConversationId uuid.UUID `json:"conversation_id" validate:"required"`
}

type ContextItemResponse struct {
	Id                uuid.UUID `json:"id"`
	ConversationId    uuid.UUID `json:"conversation_id"`
	ConversationTitle string    `json:"conversation_title,omitempty"`
	Locked            bool      `json:"locked"`
	AutoSelected      bool      `json:"auto_selected"`
	CreatedAt         time.Time `json:"created_at"`
}

type GetContextResponse struct {
	AutoSelect bool                  `json:"auto_select"`
	Items      []ContextItemResponse `json:"items"`
}

type LockContextResponse struct {
	Locked int `json:"locked"`
}
