package contract

import (
	"context"

	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"

	"github.com/google/uuid"
)

type ConversationEmbeddingRepository interface {
	Create(ctx context.Context, embedding *entity.ConversationEmbedding) error
	CreateBulk(ctx context.Context, embeddings []*entity.ConversationEmbedding) error
	DeleteByConversationId(ctx context.Context, conversationId uuid.UUID) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConversationEmbedding, error)

	// FindNearest runs a cosine similarity search over the user's
	// conversation embeddings, filtered by threshold, best match first.
	FindNearest(ctx context.Context, embedding []float32, limit int, userId uuid.UUID, threshold float64) ([]*entity.NearestConversation, error)
}
