package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/edge-gateway/internal/config"
	"github.com/aman-churiwal/edge-gateway/internal/logging"
	"github.com/aman-churiwal/edge-gateway/internal/repository"
	"github.com/aman-churiwal/edge-gateway/internal/server"
	"github.com/aman-churiwal/edge-gateway/internal/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// Load env if it exists
	_ = godotenv.Load()

	configPath := os.Getenv("GATEWAY_CONFIG")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Server.Environment, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	redis := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	defer redis.Close()

	// The limiter and cache fail open per request, so a store outage at
	// startup degrades the gateway instead of keeping it down.
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redis.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, starting with rate limiting and caching failing open",
			zap.String("addr", cfg.Redis.GetRedisAddr()),
			zap.Error(err),
		)
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.GetRedisAddr()))
	}
	cancel()

	deps := server.Deps{
		Store:    redis,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	deps.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Database.DSN != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		postgres, err := storage.NewPostgres(connectCtx, cfg.Database.DSN, storage.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer postgres.Close()

		err = postgres.Migrate(connectCtx)
		cancel()
		if err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}

		deps.Jobs = repository.NewJobRepository(postgres)
		deps.Database = postgres
		logger.Info("connected to database")
	} else {
		deps.Jobs = repository.NewMemoryJobRepository()
		logger.Warn("database.dsn is empty, keeping jobs in memory")
	}

	srv := server.New(cfg, deps)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
