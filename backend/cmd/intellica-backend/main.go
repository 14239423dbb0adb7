package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SherlockH0olms/Intellica/backend/internal/config"
	"github.com/SherlockH0olms/Intellica/backend/internal/health"
	httpapi "github.com/SherlockH0olms/Intellica/backend/internal/http"
	"github.com/SherlockH0olms/Intellica/backend/internal/service"
	"github.com/SherlockH0olms/Intellica/common/database"
	"github.com/SherlockH0olms/Intellica/common/logger"
	rediscommon "github.com/SherlockH0olms/Intellica/common/redis"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "intellica-backend")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Intellica Backend", zap.String("version", httpapi.Version))

	checker := health.NewChecker(cfg.Health.Timeout, logger)

	// 依赖项未配置时不阻止启动，/health 中报告 pending
	var db *sql.DB
	if cfg.Database.IsConfigured() {
		if d, err := database.OpenPostgresDB(&cfg.Database); err == nil {
			db = d
			checker.Register("database", health.PostgresCheck(db))
		} else {
			logger.Warn("Database configured but could not be opened", zap.Error(err))
			checker.Register("database", func(context.Context) error { return err })
		}
	} else {
		checker.Register("database", nil)
	}

	var redisClient *rediscommon.Client
	if cfg.Redis.Addr != "" {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		checker.Register("redis", health.RedisCheck(redisClient))
	} else {
		checker.Register("redis", nil)
	}

	if cfg.RabbitMQ.IsConfigured() {
		mgmt := health.NewManagementClient(cfg.RabbitMQ.ManagementURL, cfg.RabbitMQ.Username, cfg.RabbitMQ.Password)
		checker.Register("rabbitmq", health.RabbitMQCheck(mgmt))
	} else {
		checker.Register("rabbitmq", nil)
	}

	router := httpapi.NewRouter(logger)
	router.RegisterSystemRoutes(checker)

	srv := service.NewServer(cfg.HTTP, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	if err := rediscommon.Close(redisClient); err != nil {
		logger.Warn("Redis close", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		logger.Warn("Database close", zap.Error(err))
	}

	logger.Info("Shutting down Intellica Backend")
}
