package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Dembrane/echo-sub002/internal/constant"
	"github.com/Dembrane/echo-sub002/internal/dto"
	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/pkg/logger"
	"github.com/Dembrane/echo-sub002/internal/repository/memory"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"
	"github.com/Dembrane/echo-sub002/internal/repository/unitofwork"
	"github.com/Dembrane/echo-sub002/internal/websocket"
	"github.com/Dembrane/echo-sub002/pkg/assistant"
	"github.com/Dembrane/echo-sub002/pkg/events"
	"github.com/Dembrane/echo-sub002/pkg/turn"
	"github.com/Dembrane/echo-sub002/pkg/turn/lock"
	"github.com/Dembrane/echo-sub002/pkg/turn/mode"
	"github.com/Dembrane/echo-sub002/pkg/turn/reconcile"
	"github.com/Dembrane/echo-sub002/pkg/turn/stream"

	"github.com/google/uuid"
)

type ITurnService interface {
	// BeginTurn runs everything up to the first byte: ownership and mode
	// checks, supersede of any in-flight stream, the atomic context lock,
	// user message persistence and the upstream dispatch. Every failure here
	// maps to an HTTP status; once BeginTurn returns, the response is
	// committed and the outcome travels in-band.
	BeginTurn(ctx context.Context, userId, sessionId uuid.UUID, lang string, req dto.SendTurnRequest) (*ActiveTurn, error)
	StopTurn(ctx context.Context, userId, sessionId uuid.UUID) (*dto.StopTurnResponse, error)
}

type turnService struct {
	uowFactory  unitofwork.RepositoryFactory
	runtime     *memory.RuntimeStateRepository
	registry    *stream.Registry
	lockManager *lock.Manager
	transport   assistant.Transport
	publisher   IPublisherService
	hub         *websocket.Hub
	eventPub    EventPublisher
	defaultLang string
	logger      logger.ILogger
}

func NewTurnService(
	uowFactory unitofwork.RepositoryFactory,
	runtime *memory.RuntimeStateRepository,
	registry *stream.Registry,
	lockManager *lock.Manager,
	transport assistant.Transport,
	publisher IPublisherService,
	hub *websocket.Hub,
	eventPub EventPublisher,
	defaultLang string,
	log logger.ILogger,
) ITurnService {
	return &turnService{
		uowFactory:  uowFactory,
		runtime:     runtime,
		registry:    registry,
		lockManager: lockManager,
		transport:   transport,
		publisher:   publisher,
		hub:         hub,
		eventPub:    eventPub,
		defaultLang: defaultLang,
		logger:      log,
	}
}

// ActiveTurn is a dispatched turn whose stream has not been pumped yet. The
// HTTP layer calls Run from inside the chunked response writer.
type ActiveTurn struct {
	svc *turnService
	ctx context.Context

	rt             *memory.RuntimeState
	session        *entity.ChatSession
	policy         mode.Policy
	userMsg        entity.ChatMessage
	assistantMsgId uuid.UUID
	contextIDs     []uuid.UUID
	ctrl           *stream.Controller
	seq            uint64
}

func (s *turnService) BeginTurn(ctx context.Context, userId, sessionId uuid.UUID, lang string, req dto.SendTurnRequest) (*ActiveTurn, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	session, err := verifySession(ctx, uow, userId, sessionId)
	if err != nil {
		return nil, err
	}

	rt := s.runtime.GetOrCreate(sessionId, mode.Mode(session.Mode))
	current, err := rt.Mode.Require()
	if err != nil {
		return nil, err
	}
	policy := mode.PolicyFor(current)

	// A new submission supersedes any stream still in flight: cancel it and
	// wait for its pump to settle before taking the context lock.
	superseded := false
	if prev, ok := s.registry.Get(sessionId); ok {
		prev.Abandon()
		select {
		case <-prev.Done():
			superseded = true
		case <-time.After(5 * time.Second):
		}
	}

	snap, err := s.lockManager.LockForTurn(ctx, sessionId, policy)
	if errors.Is(err, turn.ErrLockConflict) && superseded {
		// The predecessor releases its hold just after its pump settles.
		time.Sleep(100 * time.Millisecond)
		snap, err = s.lockManager.LockForTurn(ctx, sessionId, policy)
	}
	if err != nil {
		return nil, err
	}

	releaseOnErr := func() {
		if uerr := s.lockManager.UnlockAfterTurn(ctx, sessionId, policy); uerr != nil {
			s.logger.Warn("TurnService", "Post-turn unlock failed", map[string]interface{}{
				"session_id": sessionId,
				"error":      uerr.Error(),
			})
		}
		s.lockManager.Release(sessionId)
	}

	if lang == "" {
		lang = s.defaultLang
	}

	// Wire messages are assembled before the new user message is persisted,
	// so the history read does not already contain the text appended last.
	wireMessages, contextIDs, err := s.buildWireMessages(ctx, uow, sessionId, snap, req.Chat)
	if err != nil {
		releaseOnErr()
		return nil, err
	}

	// The user message is inserted optimistically and persisted up front:
	// whatever happens to the stream, the question itself is history.
	userMsg := entity.ChatMessage{
		Id:            uuid.New(),
		ChatSessionId: sessionId,
		Role:          constant.ChatMessageRoleUser,
		Text:          req.Chat,
		CreatedAt:     time.Now(),
	}
	rt.Reconciler.Upsert(reconcileMessage(&userMsg))
	if err := uow.ChatMessageRepository().Create(ctx, &userMsg); err != nil {
		releaseOnErr()
		return nil, err
	}

	templateKey := req.TemplateKey
	if templateKey == "" {
		templateKey = policy.TemplateKey
	}

	ctrl := stream.NewController(sessionId, rt.Stream)
	s.registry.Swap(sessionId, ctrl)

	// Begin bumps the sequence: anything a superseded stream still delivers
	// is stranded from here on.
	seq := rt.Stream.Begin()
	assistantMsgId := uuid.New()
	rt.Reconciler.BeginStreaming(assistantMsgId, constant.ChatMessageRoleAssistant, seq, time.Now())

	if snap.AutoSelect {
		// Server-side auto-selection emits no progress of its own; simulate
		// until the first real byte lands.
		rt.Progress.Start()
	}

	handle, err := s.transport.StartTurn(ctx, assistant.TurnRequest{
		SessionID:   sessionId,
		Lang:        lang,
		TemplateKey: templateKey,
		Messages:    wireMessages,
	})
	if err != nil {
		rt.Progress.Interrupt()
		rt.Stream.Finish(seq, stream.EventStreamFailed)
		rt.Reconciler.DiscardStreaming(seq)
		s.registry.Release(sessionId, ctrl)
		releaseOnErr()
		s.emit(ctx, userId, events.NewTurnFailed(sessionId, userId, seq, err.Error()))
		return nil, err
	}
	ctrl.Bind(handle, seq)

	s.emit(ctx, userId, events.NewTurnStarted(sessionId, userId, seq))

	return &ActiveTurn{
		svc:            s,
		ctx:            ctx,
		rt:             rt,
		session:        session,
		policy:         policy,
		userMsg:        userMsg,
		assistantMsgId: assistantMsgId,
		contextIDs:     contextIDs,
		ctrl:           ctrl,
		seq:            seq,
	}, nil
}

// Run pumps the stream into sink until it ends, then finalizes persistence,
// events and locks. Must be called exactly once per ActiveTurn.
func (t *ActiveTurn) Run(sink stream.Sink) stream.Outcome {
	s := t.svc
	sessionId := t.session.Id

	defer s.lockManager.Release(sessionId)
	defer func() {
		// Runs before Release (LIFO) and on every exit path, so agentic
		// sessions never end a failed turn with items stuck locked.
		if err := s.lockManager.UnlockAfterTurn(t.ctx, sessionId, t.policy); err != nil {
			s.logger.Warn("TurnService", "Post-turn unlock failed", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		}
	}()
	defer s.registry.Release(sessionId, t.ctrl)

	outcome := t.ctrl.Run(sink, stream.Hooks{
		OnFirstDelta: t.rt.Progress.Interrupt,
		OnDelta:      func(seq uint64, delta string) { t.rt.Reconciler.AppendDelta(seq, delta) },
	})
	t.rt.Progress.Interrupt()

	if err := s.finalize(t.ctx, t.rt, t.session, &t.userMsg, t.assistantMsgId, t.contextIDs, outcome); err != nil {
		s.logger.Error("TurnService", "Turn finalization failed", map[string]interface{}{
			"session_id": sessionId,
			"sequence":   outcome.Seq,
			"error":      err.Error(),
		})
	}
	return outcome
}

// finalize settles persistence and events for a finished pump. Only
// completed and stopped turns persist assistant text; failure and
// abandonment persist nothing.
func (s *turnService) finalize(ctx context.Context, rt *memory.RuntimeState, session *entity.ChatSession, userMsg *entity.ChatMessage, assistantMsgId uuid.UUID, contextIDs []uuid.UUID, outcome stream.Outcome) error {
	sessionId := session.Id
	userId := session.UserId
	seq := outcome.Seq

	switch outcome.Reason {
	case stream.EndCompleted, stream.EndStopped:
		if outcome.Text == "" {
			// Ended before the first byte: nothing to persist. The signal
			// still tells the two endings apart, a stream that closed clean
			// with zero bytes did complete.
			rt.Reconciler.DiscardStreaming(seq)
			if outcome.Reason == stream.EndStopped {
				s.emit(ctx, userId, events.NewTurnStopped(sessionId, userId, uuid.Nil, seq))
			} else {
				s.emit(ctx, userId, events.NewTurnCompleted(sessionId, userId, uuid.Nil, seq, userMsg.Text))
				s.publishTurnCompleted(ctx, sessionId, userId, userMsg.Text)
			}
			return nil
		}

		citations := turn.ExtractCitations(outcome.Text, contextIDs)
		metadata := turn.MetadataFrom(citations)

		uow := s.uowFactory.NewUnitOfWork(ctx)
		if err := uow.Begin(ctx); err != nil {
			return err
		}
		defer uow.Rollback()

		reply := entity.ChatMessage{
			Id:            assistantMsgId,
			ChatSessionId: sessionId,
			Role:          constant.ChatMessageRoleAssistant,
			Text:          outcome.Text,
			Metadata:      metadata,
			CreatedAt:     time.Now(),
		}
		if err := uow.ChatMessageRepository().Create(ctx, &reply); err != nil {
			return err
		}

		// First turn names the session.
		if session.Title == constant.SessionDefaultTitle {
			session.Title = deriveTitle(userMsg.Text)
			if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
				return err
			}
		}

		if err := uow.Commit(); err != nil {
			return err
		}

		rt.Reconciler.FinalizeStreaming(seq, outcome.Text, metadata)

		if outcome.Reason == stream.EndStopped {
			s.emit(ctx, userId, events.NewTurnStopped(sessionId, userId, assistantMsgId, seq))
		} else {
			s.emit(ctx, userId, events.NewTurnCompleted(sessionId, userId, assistantMsgId, seq, userMsg.Text))
			s.publishTurnCompleted(ctx, sessionId, userId, userMsg.Text)
		}
		return nil

	case stream.EndFailed:
		rt.Reconciler.DiscardStreaming(seq)
		reason := "stream failed"
		if outcome.Err != nil {
			reason = outcome.Err.Error()
		}
		s.emit(ctx, userId, events.NewTurnFailed(sessionId, userId, seq, reason))
		s.logger.Error("TurnService", "Turn failed", map[string]interface{}{
			"session_id": sessionId,
			"sequence":   seq,
			"error":      reason,
		})
		return nil

	default: // EndAbandoned
		rt.Reconciler.DiscardStreaming(seq)
		return nil
	}
}

func (s *turnService) StopTurn(ctx context.Context, userId, sessionId uuid.UUID) (*dto.StopTurnResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if _, err := verifySession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	ctrl, ok := s.registry.Get(sessionId)
	if !ok {
		return nil, turn.ErrNoActiveStream
	}

	ctrl.Stop()
	outcome := ctrl.Outcome()

	return &dto.StopTurnResponse{
		Stopped:     true,
		PartialText: outcome.Text,
	}, nil
}

// buildWireMessages assembles the upstream request: the system prompt, the
// locked context conversations as numbered references, the persisted
// transcript, and finally the new user text. Context order is the snapshot
// order, which is what citation indices resolve against.
func (s *turnService) buildWireMessages(ctx context.Context, uow unitofwork.UnitOfWork, sessionId uuid.UUID, snap *lock.Snapshot, userText string) ([]assistant.Message, []uuid.UUID, error) {
	var sb strings.Builder
	sb.WriteString(constant.TurnSystemPromptV1)

	contextIDs := make([]uuid.UUID, 0, len(snap.Items))
	for _, item := range snap.Items {
		conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: item.ConversationID})
		if err != nil {
			return nil, nil, err
		}
		if conversation == nil {
			continue
		}
		contextIDs = append(contextIDs, conversation.Id)
		fmt.Fprintf(&sb, "\n[%d] %s\n%s\n", len(contextIDs), conversation.Title, conversation.Summary)
	}
	if len(contextIDs) == 0 {
		sb.WriteString("\n(no conversations attached)\n")
	}

	messages := []assistant.Message{
		{Role: constant.ChatMessageRoleSystem, Content: sb.String()},
	}

	history, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, nil, err
	}
	for _, msg := range history {
		if msg.Role == constant.ChatMessageRoleSystem {
			continue
		}
		messages = append(messages, assistant.Message{Role: msg.Role, Content: msg.Text})
	}

	messages = append(messages, assistant.Message{Role: constant.ChatMessageRoleUser, Content: userText})
	return messages, contextIDs, nil
}

func (s *turnService) publishTurnCompleted(ctx context.Context, sessionId, userId uuid.UUID, userText string) {
	payload, err := json.Marshal(dto.PublishTurnCompletedMessage{
		ChatSessionId: sessionId,
		UserId:        userId,
		UserText:      userText,
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, payload); err != nil {
		s.logger.Warn("TurnService", "Failed to publish turn message", map[string]interface{}{
			"session_id": sessionId,
			"error":      err.Error(),
		})
	}
}

func (s *turnService) emit(ctx context.Context, userId uuid.UUID, evt events.Event) {
	if s.hub != nil {
		s.hub.SendEvent(userId, evt)
	}
	if s.eventPub != nil {
		if err := s.eventPub.Publish(ctx, evt); err != nil {
			s.logger.Warn("TurnService", "Failed to publish event", map[string]interface{}{
				"type":  evt.EventType(),
				"error": err.Error(),
			})
		}
	}
}

func reconcileMessage(msg *entity.ChatMessage) reconcile.Message {
	return reconcile.Message{
		ID:        msg.Id,
		Role:      msg.Role,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
		Metadata:  msg.Metadata,
	}
}

func deriveTitle(text string) string {
	title := strings.TrimSpace(text)
	title = strings.ReplaceAll(title, "\n", " ")
	if title == "" {
		return constant.SessionDefaultTitle
	}
	if len(title) > constant.SessionTitleMaxLen {
		cut := constant.SessionTitleMaxLen
		// Back up to a rune boundary so the clip never splits a character.
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title
}
