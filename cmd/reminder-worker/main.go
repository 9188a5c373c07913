package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/voice-agent-scheduling/internal/app/bootstrap"
	"github.com/wolfman30/voice-agent-scheduling/internal/audit"
	"github.com/wolfman30/voice-agent-scheduling/internal/config"
	"github.com/wolfman30/voice-agent-scheduling/internal/reminders"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("reminder worker requires postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB := bootstrap.SQLDB(pool)
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sched, err := bootstrap.BuildScheduling(ctx, cfg, bootstrap.Deps{
		Pool:     pool,
		Audit:    audit.NewService(sqlDB),
		Redis:    redisClient,
		Registry: prometheus.NewRegistry(),
	}, logger)
	if err != nil {
		logger.Error("failed to wire scheduling", "error", err)
		os.Exit(1)
	}

	logger.Info("reminder worker started", "interval", cfg.ReminderInterval, "workers", cfg.ReminderWorkers)
	reminders.NewRunner(sched.Orchestrator, logger).
		WithInterval(cfg.ReminderInterval).
		Run(ctx)
	logger.Info("reminder worker shutting down")
}
