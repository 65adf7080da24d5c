package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-classroom/internal/app"
	"github.com/tendant/simple-classroom/internal/config"
	httpserver "github.com/tendant/simple-classroom/internal/http"
	"github.com/tendant/simple-classroom/internal/notification"
	"github.com/tendant/simple-classroom/internal/queue"
	"github.com/tendant/simple-classroom/internal/realtime"
	"github.com/tendant/simple-classroom/internal/telemetry"
	"github.com/tendant/simple-classroom/pkg/auth"
)

func main() {
	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration (also reads .env if present)
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracing shutdown error", "error", err)
		}
	}()

	// Connect to storage
	stores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "error", err, "store", cfg.Store)
		os.Exit(1)
	}
	defer stores.Close()
	logger.Info("storage ready", "store", cfg.Store)

	// Live hub, relayed across nodes when Redis is configured
	var hubOpts []realtime.HubOption
	var relay *realtime.RedisRelay
	if cfg.HasRedis() {
		redisClient, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		relay = realtime.NewRedisRelay(redisClient, "", logger)
		hubOpts = append(hubOpts, realtime.WithRelay(relay))
	}
	hub := realtime.NewHub(logger, hubOpts...)
	if relay != nil {
		go func() {
			if err := relay.Run(ctx, hub.Deliver); err != nil {
				logger.Error("live relay stopped", "error", err)
			}
		}()
		logger.Info("live relay enabled")
	}

	// Mail goes through the worker queue when Redis is configured
	var transport notification.Transport
	if cfg.HasRedis() {
		client, err := queue.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to create queue client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		transport = notification.NewQueueTransport(client)
		logger.Info("mail queued for worker delivery")
	} else {
		transport, err = notification.NewTransport(cfg.Mail, logger)
		if err != nil {
			logger.Error("failed to create mail transport", "error", err)
			os.Exit(1)
		}
		logger.Info("mail sent inline", "transport", cfg.Mail.Transport)
	}
	mailer := app.NewMailer(cfg, transport, logger)

	services := app.NewServices(cfg, stores, hub, mailer, logger)

	// Create router
	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger: logger,
		TokenValidator: auth.NewTokenValidator(auth.TokenConfig{
			Secret: []byte(cfg.JWTSecret),
			Issuer: cfg.JWTIssuer,
			Leeway: cfg.JWTLeeway,
		}),
		EnrollmentService:  services.Enrollment,
		InvitationService:  services.Invitations,
		InboxService:       services.Inbox,
		Hub:                hub,
		HealthCheck:        stores.Ping,
		InvitationRetain:   cfg.InvitationRetain,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitConfig:    cfg.RateLimit,
		SecurityHeaders:    cfg.SecurityHeaders,
		Validation:         cfg.Validation,
	})

	// Create HTTP server. No WriteTimeout: live sessions are long-lived and
	// manage their own deadlines.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	mailer.Wait()

	logger.Info("server stopped")
}
