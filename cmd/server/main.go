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
	"github.com/bridgezone/market-api/internal/email"
	"github.com/bridgezone/market-api/internal/health"
	"github.com/bridgezone/market-api/internal/infrastructure/postgres"
	ctxlog "github.com/bridgezone/market-api/internal/log"
	"github.com/bridgezone/market-api/internal/metrics"
	httptransport "github.com/bridgezone/market-api/internal/transport/http"
	"github.com/bridgezone/market-api/internal/transport/http/handler"
	"github.com/bridgezone/market-api/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	userRepo := postgres.NewUserRepository(pool)
	codeRepo := postgres.NewCodeRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool, logger)
	orderRepo := postgres.NewOrderRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	webhookRepo := postgres.NewWebhookEventRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)

	emailSender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)

	authUsecase := usecase.NewAuthUsecase(userRepo, codeRepo, emailSender, []byte(cfg.JWTSecret))
	entitlementUsecase := usecase.NewEntitlementUsecase(userRepo)
	billingUsecase := usecase.NewBillingUsecase(subscriptionRepo, orderRepo, webhookRepo, logger)
	productUsecase := usecase.NewProductUsecase(productRepo)

	authHandler := handler.NewAuthHandler(authUsecase, logger)
	accountHandler := handler.NewAccountHandler(userRepo, entitlementUsecase, billingUsecase, notificationRepo, orderRepo, logger)
	productHandler := handler.NewProductHandler(productUsecase, logger)
	webhookHandler := handler.NewWebhookHandler(billingUsecase, cfg.StripeWebhookSecret, logger)

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, httptransport.RouterConfig{
			JWTKey:        []byte(cfg.JWTSecret),
			AuthRateLimit: rate.Limit(cfg.AuthRateLimit),
			AuthRateBurst: cfg.AuthRateBurst,
		}, authHandler, accountHandler, productHandler, webhookHandler),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
