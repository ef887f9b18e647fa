package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"dm-service/internal/auth"
	"dm-service/internal/blobstore"
	"dm-service/internal/config"
	"dm-service/internal/db"
	"dm-service/internal/grpcserver"
	"dm-service/internal/handlers"
	"dm-service/internal/importer"
	"dm-service/internal/logging"
	"dm-service/internal/messaging"
	"dm-service/internal/middleware"
	"dm-service/internal/observability"
	"dm-service/internal/pubsub"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

func main() {
	importDir := flag.String("import", "", "import the legacy flat-file data directory and exit")
	issueToken := flag.String("issue-token", "", "print a signed token for the given user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.ServiceName, cfg.Environment, cfg.Debug)
	defer func() { _ = logger.Sync() }()

	authenticator := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if *issueToken != "" {
		token, err := authenticator.Issue(*issueToken, 24*time.Hour)
		if err != nil {
			logger.Fatal("issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	userRepo := repositories.NewUserRepo(database, cfg.StoreTimeout)
	friendRepo := repositories.NewFriendRepo(database, cfg.StoreTimeout)
	messageRepo := repositories.NewMessageRepo(database, cfg.StoreTimeout)
	readRepo := repositories.NewReadStateRepo(database, cfg.StoreTimeout)

	if *importDir != "" {
		report, err := importer.New(userRepo, friendRepo, logger).Run(context.Background(), *importDir)
		if err != nil {
			logger.Fatal("legacy import failed", zap.Error(err))
		}
		fmt.Printf("imported %d users, %d friendships (%d existing, %d skipped)\n",
			report.Users, report.Friendships, report.Existing, report.Skipped)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	auditEmitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRouting, cfg.ServiceName, cfg.Environment, logger)

	var blobs blobstore.Store = blobstore.NewMemoryStore()
	if cfg.MinIOEndpoint != "" {
		store, err := blobstore.NewMinIOStore(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL, logger)
		if err != nil {
			logger.Fatal("failed to connect to object storage", zap.Error(err))
		}
		blobs = store
	} else {
		logger.Warn("MINIO_ENDPOINT not set, attachments are kept in memory")
	}

	hub := ws.NewHub(logger)
	var fanout messaging.Fanout = hub
	if cfg.RedisAddr != "" {
		client, err := pubsub.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		bridge := pubsub.NewRedisBridge(client, hub, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("redis fanout bridge stopped", zap.Error(err))
			}
		}()
		fanout = bridge
	}

	dispatcher := messaging.NewDispatcher(fanout, publisher, cfg.EventBuffer, logger)
	dispatcher.Start(ctx)

	service := messaging.NewService(messaging.Deps{
		Users:    userRepo,
		Friends:  friendRepo,
		Messages: messageRepo,
		Reads:    readRepo,
		Blobs:    blobs,
		Events:   dispatcher,
		Logger:   logger,
	})

	friendHandler := handlers.NewFriendHandler(service, auditEmitter, logger)
	chatHandler := handlers.NewChatHandler(service, auditEmitter, logger)
	attachmentHandler := handlers.NewAttachmentHandler(service, logger)
	chatWS := ws.NewChatWebSocketHandler(hub, service, authenticator, publisher, cfg.SessionBuffer, logger)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, auditEmitter, hub, cfg.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(authenticator, service, logger)

	router.GET("/friends", authMiddleware, friendHandler.ListFriends)
	router.POST("/friends", authMiddleware, friendHandler.AddFriend)
	router.DELETE("/friends/:friend_id", authMiddleware, friendHandler.RemoveFriend)

	router.GET("/chats/:friend_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/chats/:friend_id/messages", authMiddleware, chatHandler.PostMessage)
	router.DELETE("/chats/:friend_id/messages", authMiddleware, chatHandler.ClearConversation)
	router.POST("/chats/:friend_id/read", authMiddleware, chatHandler.MarkRead)
	router.GET("/unread", authMiddleware, chatHandler.GetUnread)

	router.POST("/attachments", authMiddleware, attachmentHandler.Upload)
	router.GET("/attachments/:blob_ref", authMiddleware, attachmentHandler.Download)

	router.GET("/ws/chats/:friend_id", chatWS.Handle)

	grpcSrv := grpcserver.New(cfg.ServiceName, logger)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			logger.Error("grpc server error", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.Stop()
	dispatcher.Stop()
	if err := publisher.Close(); err != nil {
		logger.Warn("publisher close", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
