package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/voice-agent-scheduling/internal/api/router"
	"github.com/wolfman30/voice-agent-scheduling/internal/app/bootstrap"
	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	"github.com/wolfman30/voice-agent-scheduling/internal/audit"
	appconfig "github.com/wolfman30/voice-agent-scheduling/internal/config"
	"github.com/wolfman30/voice-agent-scheduling/internal/organizations"
	"github.com/wolfman30/voice-agent-scheduling/internal/reminders"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting voice-agent-scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB := bootstrap.SQLDB(pool)
	defer func() { _ = sqlDB.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, registry := setupMetrics()

	sched, err := bootstrap.BuildScheduling(ctx, cfg, bootstrap.Deps{
		Pool:     pool,
		Audit:    audit.NewService(sqlDB),
		Redis:    redisClient,
		Registry: registry,
	}, logger)
	if err != nil {
		logger.Error("failed to wire scheduling", "error", err)
		os.Exit(1)
	}

	r := router.New(buildRouterConfig(cfg, sched, metricsHandler, readyCheck(pool, redisClient), logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics builds a dedicated registry with process and Go collectors.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func buildRouterConfig(cfg *appconfig.Config, sched *bootstrap.Scheduling, metricsHandler http.Handler, ready func(context.Context) error, logger *logging.Logger) *router.Config {
	rc := &router.Config{
		Logger:             logger,
		MetricsHandler:     metricsHandler,
		Appointments:       appointments.NewHandler(sched.Appointments, logger),
		Reminders:          reminders.NewHandler(sched.Orchestrator, sched.Settings, logger),
		OrgJWTSecret:       cfg.OrgJWTSecret,
		AllowOrgHeader:     cfg.OrgJWTSecret == "" && cfg.Env == "development",
		CronSecret:         cfg.CronSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		PublicRateLimit:    cfg.PublicRateLimit,
		PublicRateBurst:    cfg.PublicRateBurst,
		Ready:              ready,
	}
	if sched.Profiles != nil {
		rc.Organizations = organizations.NewHandler(sched.Profiles, logger)
	}
	if rc.AllowOrgHeader {
		logger.Warn("ORG_JWT_SECRET not set; trusting X-Org-Id header (development only)")
	}
	return rc
}

func readyCheck(pool *pgxpool.Pool, redisClient *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
