// Package main runs the poll platform HTTP server with WebSocket and graceful shutdown.
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

	"github.com/pollboard/backend/config"
	"github.com/pollboard/backend/internal/auth"
	"github.com/pollboard/backend/internal/discord"
	"github.com/pollboard/backend/internal/eligibility"
	"github.com/pollboard/backend/internal/export"
	"github.com/pollboard/backend/internal/middleware"
	"github.com/pollboard/backend/internal/notify"
	"github.com/pollboard/backend/internal/polls"
	"github.com/pollboard/backend/internal/tally"
	"github.com/pollboard/backend/internal/votes"
	"github.com/pollboard/backend/internal/webhook"
	"github.com/pollboard/backend/pkg/database"
	"github.com/pollboard/backend/pkg/queue"
	"github.com/pollboard/backend/pkg/redis"
	"github.com/pollboard/backend/pkg/response"
	"github.com/pollboard/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.ExpireHours)
	redisPubSub := notify.NewRedisPubSub(rdb.Client, logger)
	hub := notify.NewHub(logger, redisPubSub, redisPubSub)

	// Eligibility: Discord role lookups plus Redis-backed premium unlocks.
	roleClient := discord.NewRoleClient(cfg.Discord.BotToken, rdb.Client, logger)
	premiumStore := eligibility.NewRedisPremiumStore(rdb.Client, 0, logger)
	checker := eligibility.NewEngine(roleClient, premiumStore, logger)

	// Storage and tally.
	pollRepo := polls.NewRetryingRepository(polls.NewPostgresRepository(pool))
	ledger := votes.NewRetryingLedger(votes.NewPostgresLedger(pool))
	tallies := tally.NewEngine(pollRepo, ledger)

	// Services.
	jobQueue := queue.NewQueue(rdb.Client, logger)
	counter := polls.NewRedisCounter(rdb.Client)
	pollService := polls.NewService(pollRepo, ledger, tallies, counter, hub, jobQueue, cfg.Poll.AllowReopen, logger)
	voteService := votes.NewService(pollRepo, ledger, checker, hub, logger)
	exportBuilder := export.NewBuilder(pollRepo, ledger, cfg.Export.AllowLiveExport)

	// Handlers.
	authHandler := auth.NewHandler(jwtService, cfg.Auth.APIKeyHash, logger)
	pollHandler := polls.NewHandler(pollService, logger)
	voteHandler := votes.NewHandler(voteService, logger)
	exportHandler := export.NewHandler(exportBuilder, pollRepo, s3Client, logger)
	webhookHandler := webhook.NewHandler(premiumStore, logger)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	router.POST("/auth/token", authHandler.Token)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Polls
		api.POST("/polls/:id", middleware.RequireRole("admin"), pollHandler.Create)
		api.GET("/polls/:id", pollHandler.Get)
		api.GET("/polls/:id/tally", pollHandler.Tally)
		api.PATCH("/polls/:id/settings", middleware.RequireRole("admin"), pollHandler.UpdateSettings)
		api.POST("/polls/:id/close", middleware.RequireRole("admin"), pollHandler.Close)
		api.POST("/polls/:id/reopen", middleware.RequireRole("admin"), pollHandler.Reopen)
		api.DELETE("/polls/:id", middleware.RequireRole("admin"), pollHandler.Delete)
		api.GET("/guilds/:guildId/polls", pollHandler.List)

		// Votes
		api.POST("/polls/:id/votes", voteHandler.Cast)
		api.DELETE("/polls/:id/votes", voteHandler.Retract)
		api.GET("/polls/:id/votes/:voterId", voteHandler.ListForVoter)

		// Exports
		api.GET("/polls/:id/export", exportHandler.Download)
		api.GET("/polls/:id/export/url", exportHandler.DownloadURL)
	}

	// Webhooks (no JWT; vote sites deliver unlock events here)
	router.POST("/webhooks/vote-unlock", webhookHandler.VoteUnlock)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		notify.ServeWs(hub, logger, jwtValidate)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
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
