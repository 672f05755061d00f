package implementation

import (
	"context"
	"errors"

	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/mapper"
	"github.com/Dembrane/echo-sub002/internal/model"
	"github.com/Dembrane/echo-sub002/internal/repository/contract"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContextItemRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewContextItemRepository(db *gorm.DB) contract.ContextItemRepository {
	return &ContextItemRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ContextItemRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ContextItemRepositoryImpl) Create(ctx context.Context, item *entity.ContextItem) error {
	m := r.mapper.ContextItemToModel(item)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*item = *r.mapper.ContextItemToEntity(m)
	return nil
}

func (r *ContextItemRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.ContextItem{}, id).Error
}

func (r *ContextItemRepositoryImpl) DeleteByChatSessionId(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Where("chat_session_id = ?", sessionId).Delete(&model.ContextItem{}).Error
}

func (r *ContextItemRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ContextItem, error) {
	var m model.ContextItem
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ContextItemToEntity(&m), nil
}

func (r *ContextItemRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ContextItem, error) {
	var models []*model.ContextItem
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ContextItemsToEntities(models), nil
}

func (r *ContextItemRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.ContextItem{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ContextItemRepositoryImpl) LockAllBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*entity.ContextItem, error) {
	var models []*model.ContextItem

	// Single UPDATE so a conflicting writer either sees all items locked or
	// none.
	err := r.db.WithContext(ctx).
		Model(&model.ContextItem{}).
		Where("chat_session_id = ?", sessionId).
		Update("locked", true).Error
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("chat_session_id = ?", sessionId).
		Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ContextItemsToEntities(models), nil
}

func (r *ContextItemRepositoryImpl) UnlockAllBySessionId(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.ContextItem{}).
		Where("chat_session_id = ?", sessionId).
		Update("locked", false).Error
}
