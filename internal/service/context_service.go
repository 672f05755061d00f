package service

import (
	"context"
	"time"

	"github.com/Dembrane/echo-sub002/internal/dto"
	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/pkg/logger"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"
	"github.com/Dembrane/echo-sub002/internal/repository/unitofwork"
	"github.com/Dembrane/echo-sub002/internal/websocket"
	"github.com/Dembrane/echo-sub002/pkg/events"
	"github.com/Dembrane/echo-sub002/pkg/turn"
	"github.com/Dembrane/echo-sub002/pkg/turn/lock"

	"github.com/google/uuid"
)

type IContextService interface {
	GetContext(ctx context.Context, userId, sessionId uuid.UUID) (*dto.GetContextResponse, error)
	AddItem(ctx context.Context, userId, sessionId uuid.UUID, req dto.AddContextItemRequest) (*dto.ContextItemResponse, error)
	RemoveItem(ctx context.Context, userId, sessionId, itemId uuid.UUID) error
	LockContext(ctx context.Context, userId, sessionId uuid.UUID) (*dto.LockContextResponse, error)
}

// EventPublisher mirrors finalizing events to an external bus. Nil-safe at
// the call sites so a missing broker degrades to local-only delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type contextService struct {
	uowFactory  unitofwork.RepositoryFactory
	lockManager *lock.Manager
	hub         *websocket.Hub
	eventPub    EventPublisher
	logger      logger.ILogger
}

func NewContextService(
	uowFactory unitofwork.RepositoryFactory,
	lockManager *lock.Manager,
	hub *websocket.Hub,
	eventPub EventPublisher,
	log logger.ILogger,
) IContextService {
	return &contextService{
		uowFactory:  uowFactory,
		lockManager: lockManager,
		hub:         hub,
		eventPub:    eventPub,
		logger:      log,
	}
}

func (s *contextService) GetContext(ctx context.Context, userId, sessionId uuid.UUID) (*dto.GetContextResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := verifySession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	items, err := uow.ContextItemRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	res := &dto.GetContextResponse{
		AutoSelect: session.AutoSelect,
		Items:      make([]dto.ContextItemResponse, len(items)),
	}
	for i, item := range items {
		title := ""
		conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: item.ConversationId})
		if err == nil && conversation != nil {
			title = conversation.Title
		}
		res.Items[i] = dto.ContextItemResponse{
			Id:                item.Id,
			ConversationId:    item.ConversationId,
			ConversationTitle: title,
			Locked:            item.Locked,
			AutoSelected:      item.AutoSelected,
			CreatedAt:         item.CreatedAt,
		}
	}
	return res, nil
}

// AddItem attaches a conversation to the session context. Rejected while a
// turn holds the context: the snapshot already sent upstream must stay the
// authoritative view of what the answer was grounded on.
func (s *contextService) AddItem(ctx context.Context, userId, sessionId uuid.UUID, req dto.AddContextItemRequest) (*dto.ContextItemResponse, error) {
	if s.lockManager.InTurn(sessionId) {
		return nil, turn.ErrContextLocked
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := verifySession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	conversation, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: req.ConversationId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, turn.ErrSessionNotFound
	}

	// Adding the same conversation twice is a no-op returning the existing item.
	existing, err := uow.ContextItemRepository().FindOne(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.ByConversationID{ConversationID: req.ConversationId},
	)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &dto.ContextItemResponse{
			Id:                existing.Id,
			ConversationId:    existing.ConversationId,
			ConversationTitle: conversation.Title,
			Locked:            existing.Locked,
			AutoSelected:      existing.AutoSelected,
			CreatedAt:         existing.CreatedAt,
		}, nil
	}

	item := entity.ContextItem{
		Id:             uuid.New(),
		ChatSessionId:  sessionId,
		ConversationId: req.ConversationId,
		CreatedAt:      time.Now(),
	}
	if err := uow.ContextItemRepository().Create(ctx, &item); err != nil {
		return nil, err
	}

	s.notifyContextUpdated(ctx, sessionId, userId, []uuid.UUID{req.ConversationId}, false)

	return &dto.ContextItemResponse{
		Id:                item.Id,
		ConversationId:    item.ConversationId,
		ConversationTitle: conversation.Title,
		Locked:            item.Locked,
		AutoSelected:      item.AutoSelected,
		CreatedAt:         item.CreatedAt,
	}, nil
}

// RemoveItem detaches a conversation. Locked items cannot be removed: in
// deep dive they are evidence a past answer already cited.
func (s *contextService) RemoveItem(ctx context.Context, userId, sessionId, itemId uuid.UUID) error {
	if s.lockManager.InTurn(sessionId) {
		return turn.ErrContextLocked
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := verifySession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	item, err := uow.ContextItemRepository().FindOne(ctx,
		specification.ByID{ID: itemId},
		specification.ByChatSessionID{ChatSessionID: sessionId},
	)
	if err != nil {
		return err
	}
	if item == nil {
		return turn.ErrSessionNotFound
	}
	if item.Locked {
		return turn.ErrContextLocked
	}

	if err := uow.ContextItemRepository().Delete(ctx, itemId); err != nil {
		return err
	}

	s.notifyContextUpdated(ctx, sessionId, userId, nil, false)
	return nil
}

// LockContext is the explicit lock-all operation exposed to the dashboard,
// outside the turn path.
func (s *contextService) LockContext(ctx context.Context, userId, sessionId uuid.UUID) (*dto.LockContextResponse, error) {
	if s.lockManager.InTurn(sessionId) {
		return nil, turn.ErrContextLocked
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := verifySession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	locked, err := uow.ContextItemRepository().LockAllBySessionId(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return &dto.LockContextResponse{Locked: len(locked)}, nil
}

func (s *contextService) notifyContextUpdated(ctx context.Context, sessionId, userId uuid.UUID, added []uuid.UUID, autoSelected bool) {
	evt := events.NewContextUpdated(sessionId, userId, added, autoSelected)
	if s.hub != nil {
		s.hub.SendEvent(userId, evt)
	}
	if s.eventPub != nil {
		if err := s.eventPub.Publish(ctx, evt); err != nil {
			s.logger.Warn("ContextService", "Failed to publish context event", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		}
	}
}
