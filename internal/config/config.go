package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string `env:"SERVER_ADDR" envDefault:"0.0.0.0"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`

	// Store selects the persistence backend: postgres or memory.
	Store string `env:"STORE" envDefault:"postgres"`
	// SeedFile is a JSON file of users and courses loaded into the memory store.
	SeedFile string `env:"SEED_FILE"`

	// Database
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"25432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"simple_classroom"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// JWT access tokens are issued by the identity service.
	JWTSecret string        `env:"JWT_SECRET"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"simple-idm"`
	JWTLeeway time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`

	// Redis enables the live relay, the mail queue and scheduled tasks.
	RedisURL          string `env:"REDIS_URL"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"10"`
	WorkerQueues      string `env:"WORKER_QUEUES" envDefault:"default=3,mail=1"`

	Mail MailConfig

	// Lifecycle
	AppBaseURL         string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	InvitationTTL      time.Duration `env:"INVITATION_TTL" envDefault:"168h"`
	InvitationRetain   time.Duration `env:"INVITATION_RETENTION" envDefault:"720h"`
	EmailTimeout       time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	ReconcileInterval  time.Duration `env:"RECONCILE_INTERVAL" envDefault:"0s"`
	PurgeInterval      time.Duration `env:"PURGE_INTERVAL" envDefault:"0s"`
	OTelEndpoint       string        `env:"OTEL_ENDPOINT"`
	OTelServiceName    string        `env:"OTEL_SERVICE_NAME" envDefault:"simple-classroom"`
	CORSAllowedOrigins []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	RateLimit       RateLimitConfig
	SecurityHeaders SecurityHeadersConfig
	Validation      ValidationConfig
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	// Transport is one of log, smtp or sendgrid.
	Transport      string `env:"MAIL_TRANSPORT" envDefault:"log"`
	From           string `env:"MAIL_FROM" envDefault:"noreply@localhost"`
	FromName       string `env:"MAIL_FROM_NAME" envDefault:"Simple Classroom"`
	SMTPHost       string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort       int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPUser       string `env:"SMTP_USER"`
	SMTPPassword   string `env:"SMTP_PASSWORD"`
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
}

// RateLimitConfig holds per-endpoint-class request limits.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	InviteRequestsPerWindow int           `env:"RATE_LIMIT_INVITE_REQUESTS" envDefault:"20"`
	InviteWindow            time.Duration `env:"RATE_LIMIT_INVITE_WINDOW" envDefault:"1m"`
	EnrollRequestsPerWindow int           `env:"RATE_LIMIT_ENROLL_REQUESTS" envDefault:"30"`
	EnrollWindow            time.Duration `env:"RATE_LIMIT_ENROLL_WINDOW" envDefault:"1m"`
	AdminRequestsPerWindow  int           `env:"RATE_LIMIT_ADMIN_REQUESTS" envDefault:"10"`
	AdminWindow             time.Duration `env:"RATE_LIMIT_ADMIN_WINDOW" envDefault:"1m"`
}

// SecurityHeadersConfig holds response security header values. Empty values are not sent.
type SecurityHeadersConfig struct {
	Enabled            bool   `env:"SECURITY_HEADERS_ENABLED" envDefault:"true"`
	CSP                string `env:"SECURITY_CSP" envDefault:"default-src 'none'; frame-ancestors 'none'"`
	HSTSMaxAge         int    `env:"SECURITY_HSTS_MAX_AGE" envDefault:"0"`
	FrameOptions       string `env:"SECURITY_FRAME_OPTIONS" envDefault:"DENY"`
	ContentTypeOptions string `env:"SECURITY_CONTENT_TYPE_OPTIONS" envDefault:"nosniff"`
	ReferrerPolicy     string `env:"SECURITY_REFERRER_POLICY" envDefault:"strict-origin-when-cross-origin"`
}

// ValidationConfig holds request validation limits.
type ValidationConfig struct {
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// Load reads an optional .env file, then parses configuration from the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Store {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE must be postgres or memory, got %q", c.Store))
	}
	if c.SeedFile != "" && c.Store != "memory" {
		errs = append(errs, errors.New("SEED_FILE is only supported with STORE=memory"))
	}
	switch c.Mail.Transport {
	case "log", "smtp":
	case "sendgrid":
		if c.Mail.SendGridAPIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required for the sendgrid transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_TRANSPORT must be log, smtp or sendgrid, got %q", c.Mail.Transport))
	}
	if c.InvitationTTL <= 0 {
		errs = append(errs, errors.New("INVITATION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// HasRedis returns true if a Redis URL is configured.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddr, c.ServerPort)
}
