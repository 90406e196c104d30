package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bridgezone/market-api/config"
	"github.com/bridgezone/market-api/internal/health"
	"github.com/bridgezone/market-api/internal/infrastructure/postgres"
	ctxlog "github.com/bridgezone/market-api/internal/log"
	"github.com/bridgezone/market-api/internal/metrics"
	"github.com/bridgezone/market-api/internal/sweeper"
	"github.com/bridgezone/market-api/internal/usecase"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	userRepo := postgres.NewUserRepository(pool)
	codeRepo := postgres.NewCodeRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool, logger)
	orderRepo := postgres.NewOrderRepository(pool)
	webhookRepo := postgres.NewWebhookEventRepository(pool)

	billingUsecase := usecase.NewBillingUsecase(subscriptionRepo, orderRepo, webhookRepo, logger)

	retrier := sweeper.NewRetrier(
		webhookRepo,
		billingUsecase,
		logger,
		time.Duration(cfg.RetryIntervalSec)*time.Second,
		cfg.RetryBatchSize,
	)
	go retrier.Start(ctx)

	janitor := sweeper.NewJanitor(userRepo, codeRepo, logger)

	c := cron.New()
	// Expired login codes hold hashes only, but there is no reason to keep them.
	if _, err := c.AddFunc("*/10 * * * *", func() { janitor.PurgeLoginCodes(ctx) }); err != nil {
		log.Fatalf("cron: %v", err)
	}
	// Purchase windows are monthly; an hourly check keeps resets close to the boundary.
	if _, err := c.AddFunc("@hourly", func() { janitor.ResetPurchaseWindows(ctx) }); err != nil {
		log.Fatalf("cron: %v", err)
	}
	c.Start()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	cronCtx := c.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("sweeper shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
