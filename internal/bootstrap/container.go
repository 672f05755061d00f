package bootstrap

import (
	"context"
	"log"

	"github.com/Dembrane/echo-sub002/internal/config"
	"github.com/Dembrane/echo-sub002/internal/controller"
	"github.com/Dembrane/echo-sub002/internal/handler"
	"github.com/Dembrane/echo-sub002/internal/pkg/logger"
	"github.com/Dembrane/echo-sub002/internal/repository/memory"
	"github.com/Dembrane/echo-sub002/internal/repository/unitofwork"
	"github.com/Dembrane/echo-sub002/internal/service"
	"github.com/Dembrane/echo-sub002/internal/websocket"
	"github.com/Dembrane/echo-sub002/pkg/assistant"
	"github.com/Dembrane/echo-sub002/pkg/embedding"
	pktNats "github.com/Dembrane/echo-sub002/pkg/nats"
	"github.com/Dembrane/echo-sub002/pkg/turn/lock"
	"github.com/Dembrane/echo-sub002/pkg/turn/stream"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const turnCompletedTopic = "CHAT_TURN_COMPLETED"

type Container struct {
	// Controllers
	ChatController    controller.IChatController
	ContextController controller.IContextController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	EventHandler *handler.EventHandler
	WebSocketHub *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS mirrors finalizing events outward. A missing broker degrades to
	// local-only delivery, it never blocks startup.
	var eventPub service.EventPublisher
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPub = natsPub
	}

	// Redis fans websocket events out across cluster nodes.
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.HubLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Turn Infrastructure
	runtimeRepo := memory.NewRuntimeStateRepository()
	streamRegistry := stream.NewRegistry()
	lockManager := lock.NewManager(service.NewContextLockStore(uowFactory))
	transport := assistant.NewClient(cfg.Assistant.BaseURL, cfg.Assistant.Timeout)
	embeddingProvider := embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)

	// 4. Services
	publisherService := service.NewPublisherService(turnCompletedTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		turnCompletedTopic,
		uowFactory,
		embeddingProvider,
		lockManager,
		wsHub,
		eventPub,
		cfg.Ai.AutoSelectLimit,
		cfg.Ai.AutoSelectThreshold,
		sysLogger,
	)

	chatService := service.NewChatService(uowFactory, runtimeRepo, streamRegistry, sysLogger)
	contextService := service.NewContextService(uowFactory, lockManager, wsHub, eventPub, sysLogger)
	turnService := service.NewTurnService(
		uowFactory,
		runtimeRepo,
		streamRegistry,
		lockManager,
		transport,
		publisherService,
		wsHub,
		eventPub,
		cfg.Assistant.DefaultLang,
		sysLogger,
	)

	// 5. Controllers
	return &Container{
		ChatController:    controller.NewChatController(chatService, turnService),
		ContextController: controller.NewContextController(contextService),
		EventHandler:      handler.NewEventHandler(wsHub, wsLogger),
		WebSocketHub:      wsHub,
		ConsumerService:   consumerService,
	}
}
