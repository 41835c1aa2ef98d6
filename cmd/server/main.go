package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lodgepole/campdesk/internal/api"
	"github.com/lodgepole/campdesk/internal/assign"
	"github.com/lodgepole/campdesk/internal/cache"
	"github.com/lodgepole/campdesk/internal/config"
	"github.com/lodgepole/campdesk/internal/db"
	"github.com/lodgepole/campdesk/internal/middleware"
	"github.com/lodgepole/campdesk/internal/observ"
	"github.com/lodgepole/campdesk/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	// A broken cache URL downgrades to no caching; it must never stop
	// the registration desk.
	var invalidator cache.Invalidator = cache.Noop{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL, logger)
		if err != nil {
			logger.Warn("cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			invalidator = redisCache
		}
	}

	store := postgres.NewStore(database.Pool())
	svc := assign.NewService(store, invalidator, logger)

	authHandler := api.NewAuthHandler(store.Staff(), cfg.JWTSecret, logger)
	personHandler := api.NewPersonHandler(svc, store, logger)
	roomHandler := api.NewRoomHandler(svc, store, logger)
	eventHandler := api.NewEventHandler(store, logger)

	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	logger.Info("starting campdesk",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	// Public: load balancers health-check this, and auth issues the
	// tokens everything else requires.
	srv.GET("/v1/health", func(c *gin.Context) {
		if err := database.Health(c.Request.Context()); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.POST("/people", personHandler.Create)
	v1.GET("/people", personHandler.List)
	v1.GET("/people/:id", personHandler.Get)
	v1.PUT("/people/:id/room", personHandler.Reassign)
	v1.DELETE("/people/:id", personHandler.Delete)
	v1.POST("/people/:id/events", eventHandler.Append)
	v1.GET("/people/:id/events", eventHandler.List)

	v1.POST("/rooms", roomHandler.Create)
	v1.GET("/rooms", roomHandler.List)
	v1.GET("/rooms/:number", roomHandler.Get)
	v1.PATCH("/rooms/:id/capacity", roomHandler.UpdateCapacity)
	v1.PATCH("/rooms/:id/active", roomHandler.SetActive)
	v1.PUT("/rooms/:id/lead", roomHandler.SetLead)
	v1.DELETE("/rooms/:id/members/:personID", roomHandler.RemoveMember)
	v1.DELETE("/rooms/:id", roomHandler.Delete)
	v1.POST("/rooms/assignments", roomHandler.BulkAssign)

	v1.GET("/stats/occupancy", roomHandler.Stats)

	return srv.Run(":" + cfg.Port)
}
