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

	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
	"github.com/jacobmousa/OrderCatalog/pkg/database"
	"github.com/jacobmousa/OrderCatalog/pkg/httpx"
	"github.com/jacobmousa/OrderCatalog/pkg/logging"
	"github.com/jacobmousa/OrderCatalog/pkg/metrics"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/api"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/cache"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/config"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/consumer"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/repository"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/service"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/migrations"
)

const serviceName = "product-catalog-service"

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

	if err := migrations.AutoMigrateProducts(ctx, db, cfg.DBDialect, 3); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate products table")
	}

	var productCache service.ProductCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		productCache = cache.NewProductCache(rdb, cfg.CacheTTL)
	} else {
		logger.Info().Msg("REDIS_ADDR not set, product cache disabled")
	}

	productRepo := repository.NewProductRepository(db)
	productService := service.NewProductService(productRepo, productCache)
	productHandler := api.NewProductHandler(productService)

	if cfg.WarmCacheOnUp {
		warmed, err := productService.PreWarmCache(logger.WithContext(ctx))
		if err != nil {
			logger.Warn().Err(err).Msg("cache warmup failed")
		} else {
			logger.Info().Int("products", warmed).Msg("cache warmed")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "product_catalog")

	consumerDone := make(chan struct{})
	if reader := config.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID); reader != nil {
		orderConsumer := consumer.NewConsumer(reader, productService, logger, reg)
		go func() {
			defer close(consumerDone)
			if err := orderConsumer.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("order consumer stopped")
			}
			if err := orderConsumer.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing kafka reader")
			}
		}()
	} else {
		close(consumerDone)
		logger.Info().Msg("KAFKA_BROKERS not set, order events not consumed")
	}

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

	api.RegisterRoutes(e, productHandler)
	httpx.RegisterHealth(e, serviceName, db)
	e.GET("/metrics", echo.WrapHandler(serverMetrics.Handler()))

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("product catalog service listening")
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

	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("order consumer did not stop in time")
	}
}
