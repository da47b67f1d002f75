package main

import (
	"log"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/mindguard/signaling-server/config"
	"github.com/mindguard/signaling-server/internal/events"
	"github.com/mindguard/signaling-server/internal/handlers"
	"github.com/mindguard/signaling-server/internal/logger"
	"github.com/mindguard/signaling-server/internal/presence"
	"github.com/mindguard/signaling-server/internal/redis"
	"github.com/mindguard/signaling-server/internal/relay"
	"github.com/mindguard/signaling-server/internal/transport"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Environment)

	// Optional Redis mirror; a nil mirror is a no-op.
	var mirror *redis.Mirror
	if cfg.Redis.Enabled {
		var err error
		mirror, err = redis.Connect(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer mirror.Close()
		slog.Info("redis presence mirror enabled")
	}

	registry := presence.NewRegistry()
	hub := transport.NewHub()
	router := events.NewRouter(registry, relay.New(registry, hub), hub, mirror)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.Default()
	engine.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	engine.GET("/health", handlers.Health(registry))
	engine.GET("/ws", handlers.ServeWS(hub, router))

	slog.Info("starting signaling server", "port", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
