package entity

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the external resource context items point at: a recorded
// and transcribed conversation within the user's project.
type Conversation struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Title     string
	Summary   string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
