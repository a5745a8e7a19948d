package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/jacobmousa/OrderCatalog/order-service/internal/api"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/catalog"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/config"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/events"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/repository"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/service"
	"github.com/jacobmousa/OrderCatalog/order-service/migrations"
	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
	"github.com/jacobmousa/OrderCatalog/pkg/database"
	"github.com/jacobmousa/OrderCatalog/pkg/httpx"
	"github.com/jacobmousa/OrderCatalog/pkg/logging"
	"github.com/jacobmousa/OrderCatalog/pkg/metrics"
)

const serviceName = "order-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, database.Options{
		Dialect: cfg.DBDialect,
		DSN:     cfg.DBDSN,
		Retries: cfg.DBConnectRetries,
		Delay:   cfg.DBConnectDelay,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := migrations.AutoMigrateOrders(ctx, db, cfg.DBDialect, 3); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate orders tables")
	}

	var publisher interface {
		service.EventPublisher
		Close() error
	} = events.NopPublisher{}
	if w := config.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic); w != nil {
		publisher = events.NewKafkaPublisher(w)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing order events")
	} else {
		logger.Info().Msg("KAFKA_BROKERS not set, order events disabled")
	}
	defer publisher.Close()

	var idempotency service.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		idempotency = service.NewRedisIdempotencyStore(rdb, cfg.IdempotencyTTL)
	} else {
		logger.Info().Msg("REDIS_ADDR not set, idempotency keys ignored")
	}

	orderRepo := repository.NewOrderRepository(db)
	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogTimeout)
	orderService := service.NewOrderService(orderRepo, catalogClient, publisher, idempotency)
	orderHandler := api.NewOrderHandler(orderService)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "order_service")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpx.ErrorHandler

	e.Use(correlation.Middleware(logger))
	e.Use(logging.RequestLogger())
	e.Use(serverMetrics.Middleware())
	e.Use(middleware.Recover())
	if limiter := httpx.RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst); limiter != nil {
		e.Use(limiter)
	}

	api.RegisterRoutes(e, orderHandler)
	httpx.RegisterHealth(e, serviceName, db)
	e.GET("/metrics", echo.WrapHandler(serverMetrics.Handler()))

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("order service listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
