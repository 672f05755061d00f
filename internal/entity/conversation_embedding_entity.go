package entity

import (
	"time"

	"github.com/google/uuid"
)

type ConversationEmbedding struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Document       string
	EmbeddingValue []float32
	CreatedAt      time.Time
}

// NearestConversation is a similarity search hit.
type NearestConversation struct {
	ConversationId uuid.UUID
	Similarity     float64
}
