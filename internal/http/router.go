package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/simple-classroom/internal/config"
	"github.com/tendant/simple-classroom/internal/http/features/admin"
	"github.com/tendant/simple-classroom/internal/http/features/courses"
	"github.com/tendant/simple-classroom/internal/http/features/invitations"
	"github.com/tendant/simple-classroom/internal/http/features/live"
	"github.com/tendant/simple-classroom/internal/http/features/notifications"
	"github.com/tendant/simple-classroom/internal/http/middleware"
	"github.com/tendant/simple-classroom/internal/httputil"
	"github.com/tendant/simple-classroom/internal/realtime"
	"github.com/tendant/simple-classroom/pkg/enrollment"
	"github.com/tendant/simple-classroom/pkg/inbox"
	"github.com/tendant/simple-classroom/pkg/invitation"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger             *slog.Logger
	TokenValidator     middleware.TokenValidator
	EnrollmentService  *enrollment.Service
	InvitationService  *invitation.Service
	InboxService       *inbox.Service
	Hub                *realtime.Hub
	HealthCheck        func(ctx context.Context) error // optional, e.g. a database ping
	InvitationRetain   time.Duration
	CORSAllowedOrigins []string
	RateLimitConfig    config.RateLimitConfig
	SecurityHeaders    config.SecurityHeadersConfig
	Validation         config.ValidationConfig
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.RequestSizeLimit(cfg.Validation.MaxRequestBodySize))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.HealthCheck(ctx); err != nil {
				cfg.Logger.Warn("health check failed", "error", err)
				httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Create rate limiters for different endpoint types
	rateLimiters := middleware.CreateRateLimiters(cfg.RateLimitConfig, cfg.Logger)

	coursesHandler := courses.NewHandler(cfg.Logger, cfg.EnrollmentService)
	invitationsHandler := invitations.NewHandler(cfg.Logger, cfg.InvitationService)
	notificationsHandler := notifications.NewHandler(cfg.Logger, cfg.InboxService)
	adminHandler := admin.NewHandler(cfg.Logger, cfg.EnrollmentService, cfg.InvitationService, cfg.InvitationRetain)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.TokenValidator))

		coursesHandler.RegisterRoutes(r, rateLimiters.Enroll)
		invitationsHandler.RegisterRoutes(r, rateLimiters.Invite)
		notificationsHandler.RegisterRoutes(r)
		adminHandler.RegisterRoutes(r, rateLimiters.Admin)

		// Live sessions (if a hub is configured)
		if cfg.Hub != nil {
			live.NewHandler(cfg.Logger, cfg.Hub, cfg.CORSAllowedOrigins).RegisterRoutes(r)
		}
	})

	return r
}
