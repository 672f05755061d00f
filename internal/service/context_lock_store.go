package service

import (
	"context"

	"github.com/Dembrane/echo-sub002/internal/repository/specification"
	"github.com/Dembrane/echo-sub002/internal/repository/unitofwork"
	"github.com/Dembrane/echo-sub002/pkg/turn"
	"github.com/Dembrane/echo-sub002/pkg/turn/lock"

	"github.com/google/uuid"
)

// contextLockStore adapts the context item repository to the lock manager's
// Store contract. LockAllBySessionId is one UPDATE statement, which gives
// LockAll the required all-or-nothing behaviour.
type contextLockStore struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewContextLockStore(uowFactory unitofwork.RepositoryFactory) lock.Store {
	return &contextLockStore{uowFactory: uowFactory}
}

func (s *contextLockStore) List(ctx context.Context, sessionID uuid.UUID) (bool, []lock.Item, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: sessionID})
	if err != nil {
		return false, nil, err
	}
	if session == nil {
		return false, nil, turn.ErrSessionNotFound
	}

	items, err := uow.ContextItemRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionID},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return false, nil, err
	}

	out := make([]lock.Item, len(items))
	for i, item := range items {
		out[i] = lock.Item{
			ID:             item.Id,
			ConversationID: item.ConversationId,
			Locked:         item.Locked,
			AutoSelected:   item.AutoSelected,
		}
	}
	return session.AutoSelect, out, nil
}

func (s *contextLockStore) LockAll(ctx context.Context, sessionID uuid.UUID) ([]lock.Item, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	locked, err := uow.ContextItemRepository().LockAllBySessionId(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]lock.Item, len(locked))
	for i, item := range locked {
		out[i] = lock.Item{
			ID:             item.Id,
			ConversationID: item.ConversationId,
			Locked:         item.Locked,
			AutoSelected:   item.AutoSelected,
		}
	}
	return out, nil
}

func (s *contextLockStore) UnlockAll(ctx context.Context, sessionID uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.ContextItemRepository().UnlockAllBySessionId(ctx, sessionID)
}
