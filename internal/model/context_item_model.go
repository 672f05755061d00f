package model

import (
	"time"

	"github.com/google/uuid"
)

type ContextItem struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatSessionId  uuid.UUID `gorm:"type:uuid;not null;index"`
	ConversationId uuid.UUID `gorm:"type:uuid;not null;index"`
	Locked         bool      `gorm:"not null;default:false"`
	AutoSelected   bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`

	// Relationships
	Conversation *Conversation `gorm:"foreignKey:ConversationId;references:Id;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (ContextItem) TableName() string {
	return "chat_context_items"
}
