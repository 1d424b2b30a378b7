package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-elearning-be/internal/config"
	"ai-elearning-be/internal/controller"
	"ai-elearning-be/internal/dto"
	"ai-elearning-be/internal/handler"
	"ai-elearning-be/internal/pkg/logger"
	"ai-elearning-be/internal/pkg/mailer"
	"ai-elearning-be/internal/service"
	"ai-elearning-be/internal/websocket"
	"ai-elearning-be/pkg/agent"
	"ai-elearning-be/pkg/cache"
	"ai-elearning-be/pkg/classifier"
	"ai-elearning-be/pkg/directory"
	"ai-elearning-be/pkg/embedding"
	"ai-elearning-be/pkg/events"
	"ai-elearning-be/pkg/llm/factory"
	"ai-elearning-be/pkg/memory"
	"ai-elearning-be/pkg/pdf"
	"ai-elearning-be/pkg/router"
	"ai-elearning-be/pkg/semantic"

	pktNats "ai-elearning-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController     controller.IChatController
	ReminderController controller.IReminderController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	ReminderService service.IReminderService

	// WebSockets
	RealtimeHandler *handler.RealtimeHandler
	WebSocketHub    *websocket.Hub

	// Caches (exposed for main.go's maintenance ticker)
	DocumentCache *cache.DocumentCache
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.Email,
		cfg.SMTP.SenderName,
	)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.EmbeddingModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)
	} else {
		log.Printf("[WARN] Unknown embedding provider %q, semantic tier degrades to zero vectors", cfg.Ai.EmbeddingProvider)
	}

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.OpenRouterAPIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

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

	wsLogger := logger.NewIsolatedLogger("logs/realtime.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 5. Memory tiers
	semIndex := semantic.NewIndex(db, embeddingProvider, sysLogger.Std("SemanticIndex"))
	if err := semIndex.Migrate(); err != nil {
		log.Printf("[WARN] Failed to migrate exchange index: %v", err)
	}

	docIndex := semantic.NewDocumentIndex(db, embeddingProvider, sysLogger.Std("DocumentIndex"))
	if err := docIndex.Migrate(); err != nil {
		log.Printf("[WARN] Failed to migrate course chunks: %v", err)
	}

	store := memory.NewConversationStore(semIndex, sysLogger.Std("MemoryStore"))
	systemMemory := memory.NewAgentMemory("system", store, sysLogger.Std("AgentMemory"))

	docCache := cache.NewDocumentCache(time.Duration(cfg.Memory.DocumentTTLMinutes) * time.Minute)

	// 6. Directory and agents
	dirClient := directory.NewClient(cfg.Directory.BaseURL, sysLogger.Std("Directory"))
	extractor := pdf.NewExtractor()

	intentClassifier := classifier.NewIntentClassifier(llmProvider, sysLogger.Std("Classifier"))
	courseAgent := agent.NewCourseAgent(llmProvider, extractor, sysLogger.Std("CourseAgent"))
	scheduleAgent := agent.NewScheduleAgent(llmProvider, sysLogger.Std("ScheduleAgent"))
	userAgent := agent.NewUserAgent(llmProvider, sysLogger.Std("UserAgent"))
	chatAgent := agent.NewChatAgent(llmProvider, sysLogger.Std("ChatAgent"))
	summarizeAgent := agent.NewSummarizeAgent(llmProvider, extractor, docCache, systemMemory, sysLogger.Std("SummarizeAgent"))
	quizAgent := agent.NewQuizAgent(llmProvider, sysLogger.Std("QuizAgent"))

	turnRouter := router.NewRouter(router.Collaborators{
		Classifier: intentClassifier,
		Course:     courseAgent,
		Schedule:   scheduleAgent,
		User:       userAgent,
		Chat:       chatAgent,
		Summarize:  summarizeAgent,
		Quiz:       quizAgent,
		Courses:    dirClient,
		Users:      dirClient,
		Calendar:   dirClient,
		Extractor:  extractor,
	}, store, systemMemory, sysLogger.Std("TurnRouter"))

	// 7. Services
	chatService := service.NewChatService(
		turnRouter,
		courseAgent,
		store,
		docCache,
		docIndex,
		semIndex,
		dirClient,
		pubSub,
		cfg.App.ExchangeTopic,
		natsPub,
		wsHub,
		sysLogger,
	)

	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.ExchangeTopic,
		docIndex,
		wsHub,
	)

	reminderService := service.NewReminderService(dirClient, wsHub, emailService, natsPub, sysLogger)

	// A scheduled session automatically gets a reminder shortly before its
	// start. The durable consumer gives work-queue semantics, so exactly
	// one instance creates it.
	if natsSub != nil {
		err := natsSub.Subscribe("elearning."+events.TypeSessionScheduled, "session-reminders", func(ctx context.Context, evt events.Event) error {
			payload := evt.Payload()
			userID, _ := payload["user_id"].(string)
			session, _ := payload["session"].(map[string]interface{})
			if userID == "" || session == nil {
				return nil
			}

			start, _ := session["start_time"].(string)
			startAt, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return nil
			}

			sessionID, _ := session["session_id"].(string)
			title, _ := session["title"].(string)
			_, err = reminderService.CreateReminder(ctx, &dto.CreateReminderRequest{
				UserId:       userID,
				SessionId:    sessionID,
				ReminderTime: startAt.Add(-10 * time.Minute).Format(time.RFC3339),
				SessionTitle: title,
			})
			if err != nil {
				log.Printf("[WARN] Failed to create session reminder: %v", err)
			}
			return nil
		})
		if err != nil {
			log.Printf("[WARN] Failed to subscribe to session events: %v", err)
		}
	}

	realtimeHandler := handler.NewRealtimeHandler(wsHub, wsLogger)

	return &Container{
		ChatController:     controller.NewChatController(chatService),
		ReminderController: controller.NewReminderController(reminderService),

		ConsumerService: consumerService,
		ReminderService: reminderService,

		RealtimeHandler: realtimeHandler,
		WebSocketHub:    wsHub,

		DocumentCache: docCache,
	}
}
