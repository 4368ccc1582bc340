package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/palmerwenzel/chat-genius-sub000/internal/auth"
	"github.com/palmerwenzel/chat-genius-sub000/internal/botservice"
	"github.com/palmerwenzel/chat-genius-sub000/internal/changefeed"
	"github.com/palmerwenzel/chat-genius-sub000/internal/command"
	"github.com/palmerwenzel/chat-genius-sub000/internal/config"
	"github.com/palmerwenzel/chat-genius-sub000/internal/handlers"
	"github.com/palmerwenzel/chat-genius-sub000/internal/middleware"
	"github.com/palmerwenzel/chat-genius-sub000/internal/observability"
	"github.com/palmerwenzel/chat-genius-sub000/internal/presence"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ratelimit"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
	"github.com/palmerwenzel/chat-genius-sub000/internal/storage"
	"github.com/palmerwenzel/chat-genius-sub000/internal/stream"
	"github.com/palmerwenzel/chat-genius-sub000/internal/telemetry"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ws"
)

const serviceName = "chat-genius"

// auditPublisher adapts the AMQP publisher to the audit emitter's narrower
// interface.
type auditPublisher struct {
	inner *observability.AMQPPublisher
}

func (p auditPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.inner.PublishJSON(ctx, routingKey, event, nil)
}

func (p auditPublisher) Close() error {
	return p.inner.Close()
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing init failed")
	}
	defer func() { _ = shutdownTracing(ctx) }()

	db, err := repositories.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()

	feed, err := changefeed.Dial(ctx, cfg.RealtimeURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("change feed dial failed")
	}
	defer feed.Close()

	counter, err := ratelimit.NewRedisCounter(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer counter.Close()

	var audit *telemetry.AuditEmitter
	if publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		// Events degrade to no-ops without a broker; the service stays up.
		logger.Warn().Err(err).Msg("amqp unavailable, events disabled")
	} else {
		observability.SetPublisher(publisher)
		audit = telemetry.NewAuditEmitter(auditPublisher{inner: publisher}, "audit.chat", serviceName, cfg.Env, logger)
		defer publisher.Close()
	}

	messageRepo := repositories.NewMessageRepo(db)
	reactionRepo := repositories.NewReactionRepo(db)
	memberRepo := repositories.NewMemberRepo(db)
	settingsRepo := repositories.NewSettingsRepo(db)
	attachmentRepo := repositories.NewAttachmentRepo(db)

	limiter := ratelimit.NewLimiter(counter, logger)
	limiter.LoadSettings(ctx, settingsRepo)

	streams := stream.NewReconciler(stream.Options{
		Messages:  messageRepo,
		Reactions: reactionRepo,
		Feed:      feed,
		Logger:    logger,
	})

	hub := ws.NewHub(logger)
	rooms := ws.NewRooms(hub, memberRepo, feed, logger)
	typing := presence.NewTypingTracker(cfg.TypingQuiet, rooms.HandleTyping)
	defer typing.Close()

	botClient := botservice.NewHTTPClient(cfg.BotServiceURL, logger)
	dispatcher := command.NewDispatcher(messageRepo, botClient, hub, audit, logger)

	gateway := storage.NewGateway(cfg.StorageURL, cfg.StorageBucket, attachmentRepo, logger)
	verifier := auth.NewVerifier(cfg.JWTSecret)

	messageHandler := handlers.NewMessageHandler(messageRepo, streams, limiter, dispatcher, logger)
	reactionHandler := handlers.NewReactionHandler(reactionRepo, limiter, logger)
	searchHandler := handlers.NewSearchHandler(messageRepo, limiter, logger)
	memberHandler := handlers.NewMemberHandler(memberRepo, logger)
	attachmentHandler := handlers.NewAttachmentHandler(gateway, messageRepo, limiter, logger)
	healthHandler := handlers.NewHealthHandler(handlers.PingerFunc(db.PingContext), counter, logger)
	channelWS := ws.NewChannelWebSocketHandler(hub, rooms, streams, typing, verifier, memberRepo, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", healthHandler.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/channels/:channel_id/messages", authMiddleware, messageHandler.ListMessages)
	router.POST("/channels/:channel_id/messages", authMiddleware, messageHandler.CreateMessage)
	router.GET("/channels/:channel_id/messages/:message_id/thread", authMiddleware, messageHandler.GetThread)
	router.PATCH("/messages/:message_id", authMiddleware, messageHandler.UpdateMessage)
	router.DELETE("/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.POST("/messages/:message_id/reactions", authMiddleware, reactionHandler.ToggleReaction)
	router.GET("/channels/:channel_id/members", authMiddleware, memberHandler.ListMembers)
	router.PUT("/presence", authMiddleware, memberHandler.UpdatePresence)
	router.GET("/channels/:channel_id/search", authMiddleware, searchHandler.Search)
	router.POST("/channels/:channel_id/attachments", authMiddleware, attachmentHandler.Upload)

	router.GET("/ws/channels/:channel_id", channelWS.Handle)

	logger.Info().Str("port", cfg.Port).Msg("listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}
