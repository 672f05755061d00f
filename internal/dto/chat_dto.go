package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	AutoSelect bool `json:"auto_select"`
}

type CreateSessionResponse struct {
	Id uuid.UUID `json:"id"`
}

type GetAllSessionsResponse struct {
	Id         uuid.UUID  `json:"id"`
	Title      string     `json:"title"`
	Mode       string     `json:"mode"`
	AutoSelect bool       `json:"auto_select"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

type SetModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=deep_dive overview agentic"`
}

type SetModeResponse struct {
	Id   uuid.UUID `json:"id"`
	Mode string    `json:"mode"`
}

type SendTurnRequest struct {
	Chat        string `json:"chat" validate:"required"`
	TemplateKey string `json:"template_key,omitempty"`
}

type StopTurnResponse struct {
	Stopped     bool   `json:"stopped"`
	PartialText string `json:"partial_text,omitempty"`
}

type GetChatHistoryResponse struct {
	Id        uuid.UUID     `json:"id"`
	Role      string        `json:"role"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"created_at"`
	Streaming bool          `json:"streaming,omitempty"`
	Pending   bool          `json:"pending,omitempty"`
	Citations []CitationDTO `json:"citations,omitempty"`
}

type CitationDTO struct {
	Index          int       `json:"index"`
	ConversationId uuid.UUID `json:"conversation_id"`
}

type SessionStateResponse struct {
	Status   string  `json:"status"`
	Sequence uint64  `json:"sequence"`
	Progress float64 `json:"progress,omitempty"`
}
