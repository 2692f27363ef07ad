package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/api"
	"github.com/lalithlochan/beacon/internal/command"
	"github.com/lalithlochan/beacon/internal/config"
	"github.com/lalithlochan/beacon/internal/db"
	"github.com/lalithlochan/beacon/internal/fanout"
	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/observ"
	"github.com/lalithlochan/beacon/internal/sqs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger("command", cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting beacon command service",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.CommandPort),
		zap.Bool("postgres", cfg.UseDatabase()),
	)

	ctx := context.Background()

	// Storage: Postgres when configured, otherwise in-memory
	var repo command.Repository
	var seedTarget db.SafeBaseWriter
	if cfg.UseDatabase() {
		database, err := db.New(ctx, db.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		pgRepo := db.NewRepository(database, logger)
		repo, seedTarget = pgRepo, pgRepo
	} else {
		memRepo := db.NewMemoryRepository()
		repo, seedTarget = memRepo, memRepo
		logger.Warn("DB_HOST not set, using in-memory storage")
	}

	if cfg.SafeBasesFile != "" {
		bases, err := db.LoadSafeBases(cfg.SafeBasesFile)
		if err != nil {
			return fmt.Errorf("failed to load safe bases: %w", err)
		}
		if err := db.Seed(ctx, seedTarget, bases, logger); err != nil {
			return fmt.Errorf("failed to seed safe bases: %w", err)
		}
	}

	hub := fanout.NewHub(cfg.WSSendBuffer, logger.Named("fanout"))
	hub.OnSubscribersChanged(metrics.SetWSSubscribers)
	defer hub.Close()

	svc := command.NewService(repo, hub, logger)

	if cfg.SQSQueueURL != "" {
		producer, err := sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, resolved alerts will not be published",
				zap.Error(err),
			)
		} else {
			svc.WithSink(producer)
		}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(api.RequestLogger(logger))

	handler := api.NewCommandHandler(logger, svc)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		handler.Routes(r)
	})

	// Long-lived observer sockets stay outside the request timeout
	r.Get("/ws", hub.ServeWS)

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.CommandPort),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		svc.Drain()

		logger.Info("server stopped gracefully")
	}

	return nil
}
