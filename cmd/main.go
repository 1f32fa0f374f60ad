/**
 * @description
 * This is the main entry point for the save-squad pod service. It wires the
 * configuration, database pool, payment gateway client, event producer,
 * repository, application service, cron scheduler and HTTP router, then
 * runs until a termination signal arrives.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shahzaibimran94/save-squad/internal/api"
	"github.com/shahzaibimran94/save-squad/internal/app"
	"github.com/shahzaibimran94/save-squad/internal/config"
	"github.com/shahzaibimran94/save-squad/internal/store"
	"github.com/shahzaibimran94/save-squad/pkg/rabbitmq"
	"github.com/shahzaibimran94/save-squad/pkg/stripeclient"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	var producer rabbitmq.Publisher
	if cfg.RabbitMQURL != "" {
		p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, falling back to no-op publisher", "error", err)
			producer = &rabbitmq.EventProducerFallback{}
		} else {
			producer = p
		}
	} else {
		producer = &rabbitmq.EventProducerFallback{}
	}
	defer producer.Close()

	gateway := stripeclient.NewClient(cfg.StripeAPIBaseURL, cfg.StripeSecretKey)
	repository := store.NewRepository(dbpool)
	service := app.NewService(repository, gateway, producer, logger, cfg.Currency, cfg.Timezone, cfg.MaxConcurrentCharges)

	jobs := app.NewJobs(service, logger)
	scheduler := app.NewScheduler(jobs, logger, *cfg)
	scheduler.Start()
	logger.Info("scheduler started")

	handler := api.NewHandler(service)
	router := api.NewRouter(handler, cfg.JWTSecret, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server stopped unexpectedly: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
