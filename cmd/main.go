/**
 * @description
 * This is the main entry point for the upsell service: a long-running
 * process that runs the upsell offer lifecycle engine on a recurring tick
 * and serves the inbound guest-message webhook plus a manual tick trigger.
 * It initializes configuration, the database pool, the outbound transports,
 * the optional event producer and rate limiter, then starts the cron
 * scheduler and the HTTP server.
 */
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hoststack/upsell-service/internal/api"
	"github.com/hoststack/upsell-service/internal/app"
	"github.com/hoststack/upsell-service/internal/config"
	"github.com/hoststack/upsell-service/internal/store"
	"github.com/hoststack/upsell-service/pkg/chatclient"
	"github.com/hoststack/upsell-service/pkg/rabbitmq"
	"github.com/hoststack/upsell-service/pkg/smsclient"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	poolCfg.MaxConns = 25
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Optional offer lifecycle event producer.
	var events app.EventPublisher
	var producer *rabbitmq.EventProducer
	if cfg.RabbitMQURL != "" {
		producer, err = rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		events = producer
		logger.Info("event producer connected", "exchange", cfg.EventExchange)
	}

	// Optional webhook rate limiter.
	var limiter *app.RedisMessageRateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse Redis URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		limiter = app.NewRedisMessageRateLimiter(redisClient, "upsell:rate_limit")
		logger.Info("webhook rate limiter enabled")
	}

	// Initialize dependencies
	repository := store.NewRepository(dbpool)
	chat := chatclient.NewClient(cfg.ChatAPIURL, cfg.ChatAPIKey)
	sms := smsclient.NewClient(cfg.SMSGatewayURL, cfg.SMSAPIKey)
	engine := app.NewEngine(
		repository,
		chat,
		sms,
		events,
		logger,
		time.Duration(cfg.OfferExpiryHours)*time.Hour,
		time.Duration(cfg.SendTimeoutSeconds)*time.Second,
	)
	scheduler := app.NewScheduler(engine, logger, cfg.TickSchedule)

	// Start the cron scheduler in the background
	scheduler.Start()
	logger.Info("scheduler started")

	// Start the HTTP server for the webhook and manual tick trigger.
	handlers := api.NewHandlers(
		engine,
		limiter,
		cfg.MessageWebhookSecret,
		cfg.WebhookRateLimit,
		time.Duration(cfg.WebhookRateWindowSeconds)*time.Second,
		logger,
	)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.NewRouter(handlers),
	}

	go func() {
		logger.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for any in-flight tick to finish
	logger.Info("scheduler stopped gracefully")
}
