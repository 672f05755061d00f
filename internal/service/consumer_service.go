package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Dembrane/echo-sub002/internal/dto"
	"github.com/Dembrane/echo-sub002/internal/entity"
	"github.com/Dembrane/echo-sub002/internal/pkg/logger"
	"github.com/Dembrane/echo-sub002/internal/repository/specification"
	"github.com/Dembrane/echo-sub002/internal/repository/unitofwork"
	"github.com/Dembrane/echo-sub002/internal/websocket"
	"github.com/Dembrane/echo-sub002/pkg/embedding"
	"github.com/Dembrane/echo-sub002/pkg/events"
	"github.com/Dembrane/echo-sub002/pkg/turn/lock"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService runs context auto-selection after each completed turn:
// embed the user text, find the nearest conversations by cosine similarity,
// and attach any that are not in the session context yet. New items arrive
// unlocked and flagged auto-selected.
type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	lockManager       *lock.Manager
	hub               *websocket.Hub
	eventPub          EventPublisher
	limit             int
	threshold         float64
	logger            logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	lockManager *lock.Manager,
	hub *websocket.Hub,
	eventPub EventPublisher,
	limit int,
	threshold float64,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		lockManager:       lockManager,
		hub:               hub,
		eventPub:          eventPub,
		limit:             limit,
		threshold:         threshold,
		logger:            log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishTurnCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	session, err := uow.ChatSessionRepository().FindOne(ctx, specification.ByID{ID: payload.ChatSessionId})
	if err != nil {
		cs.logger.Error("ConsumerService", "Failed to load session", map[string]interface{}{
			"session_id": payload.ChatSessionId,
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}
	if session == nil || !session.AutoSelect {
		// Session deleted, or auto-selection not enabled. Nothing to do.
		msg.Ack()
		return
	}

	if cs.lockManager.InTurn(payload.ChatSessionId) {
		// The next turn already locked the context; selection for this one
		// would race it. Redeliver.
		msg.Nack()
		return
	}

	res, err := cs.embeddingProvider.Generate(payload.UserText, embedding.TaskRetrievalQuery)
	if err != nil {
		cs.logger.Error("ConsumerService", "Embedding generation failed", map[string]interface{}{
			"session_id": payload.ChatSessionId,
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}

	nearest, err := uow.ConversationEmbeddingRepository().FindNearest(ctx, res.Values, cs.limit, payload.UserId, cs.threshold)
	if err != nil {
		cs.logger.Error("ConsumerService", "Similarity search failed", map[string]interface{}{
			"session_id": payload.ChatSessionId,
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}
	if len(nearest) == 0 {
		msg.Ack()
		return
	}

	existing, err := uow.ContextItemRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: payload.ChatSessionId},
	)
	if err != nil {
		msg.Nack()
		return
	}
	attached := make(map[uuid.UUID]bool, len(existing))
	for _, item := range existing {
		attached[item.ConversationId] = true
	}

	var added []uuid.UUID
	for _, hit := range nearest {
		if attached[hit.ConversationId] {
			continue
		}
		item := entity.ContextItem{
			Id:             uuid.New(),
			ChatSessionId:  payload.ChatSessionId,
			ConversationId: hit.ConversationId,
			AutoSelected:   true,
			CreatedAt:      time.Now(),
		}
		if err := uow.ContextItemRepository().Create(ctx, &item); err != nil {
			cs.logger.Error("ConsumerService", "Failed to attach context item", map[string]interface{}{
				"session_id":      payload.ChatSessionId,
				"conversation_id": hit.ConversationId,
				"error":           err.Error(),
			})
			msg.Nack()
			return
		}
		added = append(added, hit.ConversationId)
	}

	if len(added) > 0 {
		evt := events.NewContextUpdated(payload.ChatSessionId, payload.UserId, added, true)
		if cs.hub != nil {
			cs.hub.SendEvent(payload.UserId, evt)
		}
		if cs.eventPub != nil {
			if err := cs.eventPub.Publish(ctx, evt); err != nil {
				cs.logger.Warn("ConsumerService", "Failed to publish context event", map[string]interface{}{
					"session_id": payload.ChatSessionId,
					"error":      err.Error(),
				})
			}
		}
		cs.logger.Info("ConsumerService", "Context auto-selected", map[string]interface{}{
			"session_id": payload.ChatSessionId,
			"added":      len(added),
		})
	}

	msg.Ack()
}
