package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Dembrane/echo-sub002/internal/constant"
	"github.com/Dembrane/echo-sub002/internal/dto"
	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/pkg/logger"
	"github.com/Dembrane/echo-sub002/internal/repository/memory"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"
	"github.com/Dembrane/echo-sub002/internal/repository/unitofwork"
	"github.com/Dembrane/echo-sub002/pkg/turn"
	"github.com/Dembrane/echo-sub002/pkg/turn/mode"
	"github.com/Dembrane/echo-sub002/pkg/turn/reconcile"
	"github.com/Dembrane/echo-sub002/pkg/turn/stream"

	"github.com/google/uuid"
)

type IChatService interface {
	CreateSession(ctx context.Context, userId uuid.UUID, req dto.CreateSessionRequest) (*dto.CreateSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]dto.GetAllSessionsResponse, error)
	DeleteSession(ctx context.Context, userId, sessionId uuid.UUID) error
	InitializeMode(ctx context.Context, userId, sessionId uuid.UUID, req dto.SetModeRequest) (*dto.SetModeResponse, error)
	GetHistory(ctx context.Context, userId, sessionId uuid.UUID) ([]dto.GetChatHistoryResponse, error)
	GetSessionState(ctx context.Context, userId, sessionId uuid.UUID) (*dto.SessionStateResponse, error)
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
	runtime    *memory.RuntimeStateRepository
	registry   *stream.Registry
	logger     logger.ILogger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	runtime *memory.RuntimeStateRepository,
	registry *stream.Registry,
	log logger.ILogger,
) IChatService {
	return &chatService{
		uowFactory: uowFactory,
		runtime:    runtime,
		registry:   registry,
		logger:     log,
	}
}

// verifySession loads the session and enforces ownership. A missing session
// and someone else's session produce the same error.
func verifySession(ctx context.Context, uow unitofwork.UnitOfWork, userId, sessionId uuid.UUID) (*entity.ChatSession, error) {
	session, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, turn.ErrSessionNotFound
	}
	return session, nil
}

func (s *chatService) CreateSession(ctx context.Context, userId uuid.UUID, req dto.CreateSessionRequest) (*dto.CreateSessionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	session := entity.ChatSession{
		Id:         uuid.New(),
		UserId:     userId,
		Title:      constant.SessionDefaultTitle,
		Mode:       string(mode.Unset),
		AutoSelect: req.AutoSelect,
		CreatedAt:  time.Now(),
	}
	if err := uow.ChatSessionRepository().Create(ctx, &session); err != nil {
		return nil, err
	}

	greeting := entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: session.Id,
		Role:          constant.ChatMessageRoleAssistant,
		Text:          constant.SessionGreetingV1,
		CreatedAt:     time.Now(),
	}
	if err := uow.ChatMessageRepository().Create(ctx, &greeting); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info("ChatService", "Session created", map[string]interface{}{
		"session_id":  session.Id,
		"user_id":     userId,
		"auto_select": session.AutoSelect,
	})
	return &dto.CreateSessionResponse{Id: session.Id}, nil
}

func (s *chatService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]dto.GetAllSessionsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]dto.GetAllSessionsResponse, len(sessions))
	for i, session := range sessions {
		res[i] = dto.GetAllSessionsResponse{
			Id:         session.Id,
			Title:      session.Title,
			Mode:       session.Mode,
			AutoSelect: session.AutoSelect,
			CreatedAt:  session.CreatedAt,
			UpdatedAt:  session.UpdatedAt,
		}
	}
	return res, nil
}

// DeleteSession is session teardown: any in-flight stream is abandoned, not
// stopped, so no partial text is persisted.
func (s *chatService) DeleteSession(ctx context.Context, userId, sessionId uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := verifySession(ctx, uow, userId, sessionId); err != nil {
		return err
	}

	if ctrl, ok := s.registry.Get(sessionId); ok {
		ctrl.Abandon()
		s.registry.Release(sessionId, ctrl)
	}
	s.runtime.Delete(sessionId)

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.ContextItemRepository().DeleteByChatSessionId(ctx, sessionId); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, sessionId); err != nil {
		return err
	}
	return uow.Commit()
}

// InitializeMode applies the one-time unset -> concrete transition and
// persists it. A second attempt with a different mode is rejected.
func (s *chatService) InitializeMode(ctx context.Context, userId, sessionId uuid.UUID, req dto.SetModeRequest) (*dto.SetModeResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := verifySession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	next, err := mode.Parse(req.Mode)
	if err != nil {
		return nil, err
	}

	rt := s.runtime.GetOrCreate(sessionId, mode.Mode(session.Mode))
	if err := rt.Mode.Set(next); err != nil {
		return nil, err
	}

	if session.Mode != string(next) {
		session.Mode = string(next)
		if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
			return nil, err
		}
	}

	s.logger.Info("ChatService", "Mode set", map[string]interface{}{
		"session_id": sessionId,
		"mode":       string(next),
	})
	return &dto.SetModeResponse{Id: sessionId, Mode: string(next)}, nil
}

func (s *chatService) GetHistory(ctx context.Context, userId, sessionId uuid.UUID) ([]dto.GetChatHistoryResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := verifySession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	persisted, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}

	snapshot := make([]reconcile.Message, len(persisted))
	for i, msg := range persisted {
		snapshot[i] = reconcile.Message{
			ID:        msg.Id,
			Role:      msg.Role,
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
			Metadata:  msg.Metadata,
		}
	}

	rt := s.runtime.GetOrCreate(sessionId, mode.Mode(session.Mode))
	rt.Reconciler.MergeSnapshot(snapshot)
	merged := rt.Reconciler.Messages()

	res := make([]dto.GetChatHistoryResponse, len(merged))
	for i, msg := range merged {
		res[i] = dto.GetChatHistoryResponse{
			Id:        msg.ID,
			Role:      msg.Role,
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
			Streaming: msg.Streaming,
			Pending:   msg.Optimistic,
			Citations: citationsFromMetadata(msg.Metadata),
		}
	}
	return res, nil
}

func (s *chatService) GetSessionState(ctx context.Context, userId, sessionId uuid.UUID) (*dto.SessionStateResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := verifySession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	rt := s.runtime.GetOrCreate(sessionId, mode.Mode(session.Mode))
	res := &dto.SessionStateResponse{
		Status:   rt.Stream.Status().String(),
		Sequence: rt.Stream.Sequence(),
	}
	if rt.Progress.Active() {
		res.Progress = rt.Progress.Value()
	}
	return res, nil
}

// citationsFromMetadata recovers the citation records from message metadata.
// The metadata travels through JSONB, so the shape after a fetch is generic
// maps rather than the original structs.
func citationsFromMetadata(metadata map[string]interface{}) []dto.CitationDTO {
	if metadata == nil {
		return nil
	}
	raw, ok := metadata["citations"]
	if !ok {
		return nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var citations []dto.CitationDTO
	if err := json.Unmarshal(encoded, &citations); err != nil {
		return nil
	}
	if len(citations) == 0 {
		return nil
	}
	return citations
}
