// Package main runs the contract platform HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pactline/backend/config"
	"github.com/pactline/backend/internal/auth"
	"github.com/pactline/backend/internal/cache"
	"github.com/pactline/backend/internal/contracts"
	"github.com/pactline/backend/internal/emaillogs"
	"github.com/pactline/backend/internal/generation"
	"github.com/pactline/backend/internal/ledger"
	"github.com/pactline/backend/internal/middleware"
	"github.com/pactline/backend/internal/organizations"
	"github.com/pactline/backend/internal/realtime"
	"github.com/pactline/backend/internal/signing"
	"github.com/pactline/backend/internal/workflow"
	"github.com/pactline/backend/pkg/database"
	"github.com/pactline/backend/pkg/queue"
	"github.com/pactline/backend/pkg/redis"
	"github.com/pactline/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	if cfg.Server.AutoMigrate {
		if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	policy, err := workflow.PolicyFor(cfg.Signing.Policy)
	if err != nil {
		logger.Fatal("signing policy", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	viewCache := cache.NewViewCache(rdb.Client, cfg.Redis.ViewCacheTTL, logger)
	fanout := workflow.Fanout{Cache: viewCache, Events: hub}

	// Organizations
	orgRepo := organizations.NewRepository(pool)
	gate := organizations.NewGate(orgRepo, logger)
	orgHandler := organizations.NewHandler(gate)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, gate, jwtService, logger)

	// Contracts
	var generator contracts.Generator
	if cfg.OpenAI.APIKey != "" {
		completer, err := generation.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
		if err != nil {
			logger.Fatal("openai", zap.Error(err))
		}
		generator = generation.NewGenerator(completer, logger)
	} else {
		logger.Info("content generation disabled (OPENAI_API_KEY not set)")
	}
	contractRepo := contracts.NewRepository(pool)
	contractSvc := contracts.NewService(contractRepo, viewCache, fanout, logger)
	contractHandler := contracts.NewHandler(contractSvc, generator, logger)

	// Signing
	signingRepo := signing.NewRepository(pool)
	signingSvc := signing.NewService(signingRepo, rdb, jobQueue, jwtService, signing.Config{
		PublicURL:    cfg.Signing.PublicURL,
		LinkTTL:      cfg.Signing.LinkTTL,
		SessionTTL:   cfg.Signing.SessionTTL,
		ResendLimit:  cfg.Signing.ResendLimit,
		ResendWindow: cfg.Signing.ResendWindow,
	}, logger)
	signingHandler := signing.NewHandler(signingSvc, logger)

	// Workflow
	workflowRepo := workflow.NewRepository(pool)
	workflowSvc := workflow.NewService(workflowRepo, fanout, signingSvc, logger)
	workflowHandler := workflow.NewHandler(workflowSvc, logger)

	// Ledger
	var archiver ledger.Archiver
	if cfg.Signing.ArchiveToBucket && cfg.AWS.SignaturesBucket != "" {
		archiver = jobQueue
	}
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, signingSvc, workflow.NewMachine(policy), fanout, archiver, cfg.Signing.MaxImageBytes, logger)
	ledgerHandler := ledger.NewHandler(ledgerSvc, logger)

	emailLogsRepo := emaillogs.NewRepository(pool)
	emailLogsHandler := emaillogs.NewHandler(emailLogsRepo, contractSvc, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Signing (public challenge and link consumption; session token for the rest)
	sign := router.Group("/sign")
	{
		sign.POST("/verify", signingHandler.Verify)
		sign.POST("/:id/challenge", signingHandler.Challenge)
		session := sign.Group("")
		session.Use(middleware.Signer(jwtService))
		session.GET("/session", signingHandler.Session)
		session.POST("/signature", ledgerHandler.Sign)
	}

	// Protected API (JWT + organization scope)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.Scope(gate, logger))
	{
		api.GET("/organizations/me", orgHandler.Me)

		api.GET("/contracts", contractHandler.List)
		api.POST("/contracts", contractHandler.Create)
		api.POST("/contracts/generate", contractHandler.Generate)
		api.GET("/contracts/:id", contractHandler.Get)
		api.PUT("/contracts/:id", contractHandler.Update)
		api.POST("/contracts/:id/duplicate", contractHandler.Duplicate)
		api.POST("/contracts/:id/revise", contractHandler.Revise)
		api.POST("/contracts/:id/signature-requests", workflowHandler.RequestSignatures)
		api.GET("/contracts/:id/verify", contractHandler.Verify)
		api.GET("/contracts/:id/certificate", contractHandler.Certificate)
		api.GET("/contracts/:id/events", contractHandler.Events)
		api.GET("/contracts/:id/emails", emailLogsHandler.ListByContract)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub,
		realtime.NewUpgrader(cfg.Server.AllowedOrigins()),
		realtime.NewAuthorizer(jwtService, gate, contractSvc),
		logger,
	))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("signing_policy", policy.Name()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
