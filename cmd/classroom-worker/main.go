package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendant/simple-classroom/internal/app"
	"github.com/tendant/simple-classroom/internal/config"
	"github.com/tendant/simple-classroom/internal/notification"
	"github.com/tendant/simple-classroom/internal/queue"
	"github.com/tendant/simple-classroom/internal/realtime"
	"github.com/tendant/simple-classroom/internal/telemetry"
	"github.com/tendant/simple-classroom/internal/worker"
	"github.com/tendant/simple-classroom/pkg/events"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if !cfg.HasRedis() {
		logger.Error("REDIS_URL is required for the worker")
		os.Exit(1)
	}
	if cfg.Store != "postgres" {
		logger.Error("the worker needs a shared store; set STORE=postgres", "store", cfg.Store)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelServiceName+"-worker", cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
	}()

	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	transport, err := notification.NewTransport(cfg.Mail, logger)
	if err != nil {
		logger.Error("failed to create mail transport", "error", err)
		os.Exit(1)
	}

	// Admin-room events from scheduled passes reach API nodes through the relay.
	redisClient, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	relay := realtime.NewRedisRelay(redisClient, "", logger)
	hub := realtime.NewHub(logger, realtime.WithRelay(relay))
	go func() {
		if err := relay.Run(ctx, func(_ events.Room, _ []byte) {}); err != nil {
			logger.Error("live relay stopped", "error", err)
		}
	}()

	mailer := app.NewMailer(cfg, transport, logger)
	services := app.NewServices(cfg, stores, hub, mailer, logger)

	srv, err := queue.NewAsynqServer(cfg.RedisURL, queue.ServerConfig{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      cfg.WorkerQueues,
	}, logger)
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}
	registered := worker.Register(srv, worker.Config{
		Mail:       transport,
		Reconciler: services.Enrollment,
		Purger:     services.Invitations,
		Retention:  cfg.InvitationRetain,
		Logger:     logger,
	})
	logger.Info("worker tasks registered", "tasks", registered)

	if cfg.ReconcileInterval > 0 || cfg.PurgeInterval > 0 {
		scheduler, err := queue.NewScheduler(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to create scheduler", "error", err)
			os.Exit(1)
		}
		if err := worker.RegisterSchedule(scheduler, worker.Schedule{
			ReconcileInterval: cfg.ReconcileInterval,
			PurgeInterval:     cfg.PurgeInterval,
		}); err != nil {
			logger.Error("failed to schedule tasks", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
		logger.Info("scheduled maintenance enabled",
			"reconcile_interval", cfg.ReconcileInterval,
			"purge_interval", cfg.PurgeInterval)
	}

	logger.Info("starting worker", "concurrency", cfg.WorkerConcurrency, "queues", cfg.WorkerQueues)
	if err := srv.Run(ctx); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
	mailer.Wait()
	logger.Info("worker stopped")
}
