// Package main runs the live discussion session coordination server.
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

	"github.com/campushive/backend/config"
	"github.com/campushive/backend/internal/auth"
	"github.com/campushive/backend/internal/live"
	"github.com/campushive/backend/internal/middleware"
	"github.com/campushive/backend/internal/models"
	"github.com/campushive/backend/internal/participants"
	"github.com/campushive/backend/internal/sessions"
	"github.com/campushive/backend/pkg/database"
	"github.com/campushive/backend/pkg/redis"
	"github.com/campushive/backend/pkg/response"
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

	// Role authority: JWT validation plus DB role lookup
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	userRepo := auth.NewRepository(pool)
	authority := auth.NewAuthority(jwtService, userRepo, logger)

	// Live coordination
	pubsub := live.NewRedisPubSub(rdb.Client, logger)
	hub := live.NewHub(logger, pubsub, pubsub)

	sessionRepo := sessions.NewRepository(pool)
	sessionSvc := sessions.NewService(sessionRepo, cfg.Live.DefaultMaxAttendees, logger)
	participantRepo := participants.NewRepository(pool)
	coordinator := live.NewCoordinator(hub, sessionSvc, participantRepo, logger)

	sessionHandler := sessions.NewHandler(sessionSvc, coordinator, logger)
	participantHandler := participants.NewHandler(participantRepo, sessionSvc, coordinator, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", live.ServeWs(hub, coordinator, authority, logger))

	api := router.Group("")
	api.Use(middleware.Auth(authority))
	{
		// Session lifecycle
		api.POST("/sessions", middleware.RequireRole(models.RoleInstructor), sessionHandler.Create)
		api.GET("/sessions/active", sessionHandler.ListOpen)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.POST("/sessions/:id/initiate", sessionHandler.Initiate)
		api.POST("/sessions/:id/close", sessionHandler.Close)
		api.POST("/sessions/:id/check-status", sessionHandler.CheckStatus)
		api.DELETE("/sessions/:id", middleware.RequireRole(models.RoleAdmin), sessionHandler.Delete)
		api.GET("/courses/:courseId/sessions", sessionHandler.ListByCourse)
		api.GET("/courses/:courseId/sessions/upcoming", sessionHandler.ListUpcomingByCourse)

		// Participant registry
		api.POST("/sessions/:id/participants", participantHandler.Register)
		api.POST("/sessions/:id/participants/leave", participantHandler.Leave)
		api.GET("/sessions/:id/participants", participantHandler.ListAll)
		api.GET("/sessions/:id/participants/active", participantHandler.ListActive)
		api.GET("/sessions/:id/participants/stats", participantHandler.Stats)
		api.PATCH("/sessions/:id/participants/media", participantHandler.UpdateMedia)
	}

	// Background expiry sweep
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweeper := live.NewSweeper(coordinator, cfg.Live.SweepInterval, logger)
	go sweeper.Run(sweepCtx)

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

	sweepCancel()
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
