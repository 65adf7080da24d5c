package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/simple-classroom/internal/config"
	"github.com/tendant/simple-classroom/internal/httputil"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint class.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates a rate limiter keyed by the authenticated user, or by
// client IP for anonymous requests.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(userOrIPKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				userID, _ := GetUserID(r.Context())
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"user_id", userID,
					"path", r.URL.Path,
					"method", r.Method,
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

func userOrIPKey(r *http.Request) (string, error) {
	if userID, ok := GetUserID(r.Context()); ok {
		return "user:" + userID.String(), nil
	}
	return httprate.KeyByIP(r)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// RateLimiters groups the limiter for each endpoint class.
type RateLimiters struct {
	Invite func(http.Handler) http.Handler
	Enroll func(http.Handler) http.Handler
	Admin  func(http.Handler) http.Handler
}

// CreateRateLimiters creates rate limiting middleware based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) RateLimiters {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return RateLimiters{Invite: noOp, Enroll: noOp, Admin: noOp}
	}
	return RateLimiters{
		Invite: RateLimit(RateLimitConfig{Requests: cfg.InviteRequestsPerWindow, Window: cfg.InviteWindow, Logger: logger}),
		Enroll: RateLimit(RateLimitConfig{Requests: cfg.EnrollRequestsPerWindow, Window: cfg.EnrollWindow, Logger: logger}),
		Admin:  RateLimit(RateLimitConfig{Requests: cfg.AdminRequestsPerWindow, Window: cfg.AdminWindow, Logger: logger}),
	}
}
