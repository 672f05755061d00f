package implementation

import (
	"context"

	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/mapper"
	"github.com/Dembrane/echo-sub002/internal/model"
	"github.com/Dembrane/echo-sub002/internal/repository/contract"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type ConversationEmbeddingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationEmbeddingRepository(db *gorm.DB) contract.ConversationEmbeddingRepository {
	return &ConversationEmbeddingRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

func (r *ConversationEmbeddingRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConversationEmbeddingRepositoryImpl) Create(ctx context.Context, embedding *entity.ConversationEmbedding) error {
	m := r.mapper.EmbeddingToModel(embedding)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*embedding = *r.mapper.EmbeddingToEntity(m)
	return nil
}

func (r *ConversationEmbeddingRepositoryImpl) CreateBulk(ctx context.Context, embeddings []*entity.ConversationEmbedding) error {
	models := make([]*model.ConversationEmbedding, len(embeddings))
	for i, e := range embeddings {
		models[i] = r.mapper.EmbeddingToModel(e)
	}

	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}

	for i, m := range models {
		*embeddings[i] = *r.mapper.EmbeddingToEntity(m)
	}
	return nil
}

func (r *ConversationEmbeddingRepositoryImpl) DeleteByConversationId(ctx context.Context, conversationId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationId).Delete(&model.ConversationEmbedding{}).Error
}

func (r *ConversationEmbeddingRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConversationEmbedding, error) {
	var models []*model.ConversationEmbedding
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ConversationEmbedding, len(models))
	for i, m := range models {
		entities[i] = r.mapper.EmbeddingToEntity(m)
	}
	return entities, nil
}

func (r *ConversationEmbeddingRepositoryImpl) FindNearest(ctx context.Context, embedding []float32, limit int, userId uuid.UUID, threshold float64) ([]*entity.NearestConversation, error) {
	if limit <= 0 {
		limit = 5
	}

	// Cosine distance in pgvector is 1 - cosine_similarity, so
	// 1 - (embedding_value <=> query) is the similarity.
	type result struct {
		ConversationId uuid.UUID
		Similarity     float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("conversation_embeddings").
		Select("conversation_embeddings.conversation_id, MAX(1 - (embedding_value <=> ?)) as similarity", queryVector).
		Joins("JOIN conversations ON conversations.id = conversation_embeddings.conversation_id").
		Where("conversations.user_id = ?", userId).
		Where("conversation_embeddings.deleted_at IS NULL").
		Where("conversations.deleted_at IS NULL").
		Group("conversation_embeddings.conversation_id").
		Having("MAX(1 - (embedding_value <=> ?)) >= ?", queryVector, threshold).
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	nearest := make([]*entity.NearestConversation, len(results))
	for i, res := range results {
		nearest[i] = &entity.NearestConversation{
			ConversationId: res.ConversationId,
			Similarity:     res.Similarity,
		}
	}
	return nearest, nil
}
