// Package main runs the live-poll coordinator: WebSocket event server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/livepoll/config"
	"github.com/aura-webinar/livepoll/internal/auth"
	"github.com/aura-webinar/livepoll/internal/middleware"
	"github.com/aura-webinar/livepoll/internal/realtime"
	"github.com/aura-webinar/livepoll/internal/sessions"
	"github.com/aura-webinar/livepoll/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional: mirror room events to Redis for outside observers.
	var mirror realtime.Mirror
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis mirror disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			redisMirror := realtime.NewRedisMirror(rdb.Client, cfg.Redis.ChannelPrefix, logger)
			go redisMirror.Run(ctx)
			mirror = redisMirror
		}
	}

	var tokens realtime.HostTokens
	if cfg.Auth.HostTokenSecret != "" {
		tokens = auth.NewHostTokenService(cfg.Auth.HostTokenSecret, cfg.Auth.HostTokenTTLHours)
	} else if cfg.Auth.EnforceHostRole {
		logger.Warn("ENFORCE_HOST_ROLE without HOST_TOKEN_SECRET: hosts cannot reclaim a session after reconnecting")
	}

	store := sessions.NewStore()
	manager := sessions.NewManager(store, logger)
	hub := realtime.NewHub(logger, mirror)
	dispatcher := realtime.NewDispatcher(manager, hub, logger, realtime.DispatcherOptions{
		Tokens:          tokens,
		EnforceHostRole: cfg.Auth.EnforceHostRole,
	})

	origins := middleware.NewOriginPolicy(cfg.Server.CORSAllowedOrigins)
	transport := realtime.TransportConfig{
		SendBuffer:      cfg.Realtime.SendBuffer,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		PingInterval:    cfg.Realtime.PingInterval,
		PongWait:        cfg.Realtime.PongWait,
		CheckOrigin:     origins.CheckOrigin,
	}
	router := newRouter(logger, origins, manager, realtime.ServeWs(hub, dispatcher, transport, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.Bool("enforce_host_role", cfg.Auth.EnforceHostRole))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped", zap.Int("sessions", manager.Count()))
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
