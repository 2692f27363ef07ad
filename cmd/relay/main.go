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
	"github.com/lalithlochan/beacon/internal/circuitbreaker"
	"github.com/lalithlochan/beacon/internal/config"
	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/observ"
	"github.com/lalithlochan/beacon/internal/redis"
	"github.com/lalithlochan/beacon/internal/relay"
	"github.com/lalithlochan/beacon/internal/sns"
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

	logger, err := observ.NewLogger("relay", cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting beacon relay",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.RelayPort),
		zap.String("command_url", cfg.CommandURL),
		zap.Bool("redis", cfg.UseRedis()),
	)

	ctx := context.Background()

	// Store: Redis keeps the queue across restarts
	var store relay.Store
	var rateLimiter *redis.RateLimiter
	if cfg.UseRedis() {
		redisClient, err := redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		store = redis.NewRelayStore(redisClient, logger)
		if cfg.RateLimitPerMin > 0 {
			rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  cfg.RateLimitPerMin,
				Window: time.Minute,
			})
		}
	} else {
		store = relay.NewMemoryStore()
		logger.Warn("REDIS_HOST not set, retry queue will not survive restarts")
	}

	var fwd relay.Forwarder = relay.NewHTTPForwarder(relay.HTTPForwarderConfig{
		CommandURL: cfg.CommandURL,
		Timeout:    cfg.ForwardTimeout,
	}, logger)

	if cfg.BreakerMaxFailures > 0 {
		breaker := circuitbreaker.New(circuitbreaker.Config{
			Name:            "command",
			MaxFailures:     cfg.BreakerMaxFailures,
			RecoveryTimeout: cfg.BreakerRecovery,
		}, logger)
		fwd = circuitbreaker.NewProtectedForwarder(fwd, breaker, logger)
	}

	svc := relay.NewService(store, fwd, relay.ProcessorConfig{
		BaseDelay: cfg.RetryBaseDelay,
		MaxDelay:  cfg.RetryMaxDelay,
	}, logger)

	if cfg.SMSReplyEnabled {
		replier, err := sns.NewReplier(ctx, sns.Config{
			Region:   cfg.SNSRegion,
			Endpoint: cfg.AWSEndpoint,
			SenderID: cfg.SNSSenderID,
		}, logger)
		if err != nil {
			logger.Warn("SNS replier unavailable, SMS acks disabled", zap.Error(err))
		} else {
			svc.WithReplier(replier)
		}
	}

	procCtx, procCancel := context.WithCancel(context.Background())
	defer procCancel()

	if err := svc.Start(procCtx); err != nil {
		return fmt.Errorf("failed to start retry queue: %w", err)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(api.RequestLogger(logger))

	handler := api.NewRelayHandler(logger, svc)
	handler.Routes(r, api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.RelayPort),
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

		// Queued items stay in the store for the next run
		procCancel()
		svc.Processor().Wait()

		logger.Info("server stopped gracefully")
	}

	return nil
}
