// Package app assembles stores and services from configuration for the
// binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tendant/simple-classroom/internal/config"
	"github.com/tendant/simple-classroom/internal/notification"
	"github.com/tendant/simple-classroom/pkg/enrollment"
	"github.com/tendant/simple-classroom/pkg/events"
	"github.com/tendant/simple-classroom/pkg/inbox"
	"github.com/tendant/simple-classroom/pkg/invitation"
	"github.com/tendant/simple-classroom/pkg/repository"
	"github.com/tendant/simple-classroom/pkg/repository/memstore"
)

type courseStore interface {
	enrollment.CourseStore
	invitation.CourseReader
}

type membershipStore interface {
	enrollment.MembershipStore
	invitation.MembershipReader
}

type userDirectory interface {
	enrollment.UserDirectory
	invitation.UserDirectory
}

// Stores is the persistence backend selected by configuration.
type Stores struct {
	Courses       courseStore
	Memberships   membershipStore
	Users         userDirectory
	Invitations   invitation.Store
	Notifications inbox.Store

	db *sql.DB
}

// OpenStores connects to Postgres, or builds an in-memory store when
// cfg.Store is "memory". The in-memory store starts empty unless
// cfg.SeedFile names a seed document.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.Store == "memory" {
		m := memstore.New()
		if cfg.SeedFile != "" {
			if err := seedMemory(m, cfg.SeedFile); err != nil {
				return nil, err
			}
		}
		return &Stores{
			Courses:       m.Courses(),
			Memberships:   m.Memberships(),
			Users:         m.Users(),
			Invitations:   m.Invitations(),
			Notifications: m.Notifications(),
		}, nil
	}

	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return nil, err
	}
	if err := repository.ValidateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Stores{
		Courses:       repository.NewCoursesRepository(db),
		Memberships:   repository.NewMembershipsRepository(db),
		Users:         repository.NewUsersRepository(db),
		Invitations:   repository.NewInvitationsRepository(db),
		Notifications: repository.NewNotificationsRepository(db),
		db:            db,
	}, nil
}

func seedMemory(m *memstore.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	if err := m.Seed(f, time.Now().UTC()); err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	return nil
}

// Persistent reports whether the stores outlive the process.
func (s *Stores) Persistent() bool {
	return s.db != nil
}

// Ping checks the database connection. The in-memory store is always up.
func (s *Stores) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewMailer builds the best-effort mailer over transport.
func NewMailer(cfg *config.Config, transport notification.Transport, logger *slog.Logger) *notification.BestEffort {
	email := notification.NewEmailService(notification.EmailConfig{
		From:     cfg.Mail.From,
		FromName: cfg.Mail.FromName,
		BaseURL:  cfg.AppBaseURL,
	}, transport)
	return notification.NewBestEffort(email, logger, cfg.EmailTimeout)
}

// Services holds the domain services.
type Services struct {
	Enrollment  *enrollment.Service
	Invitations *invitation.Service
	Inbox       *inbox.Service
}

// NewServices wires the domain services over stores. mailer must not be nil.
func NewServices(cfg *config.Config, stores *Stores, publisher events.Publisher, mailer *notification.BestEffort, logger *slog.Logger) *Services {
	inboxSvc := inbox.NewService(stores.Notifications, nil)
	enrollmentSvc := enrollment.NewService(enrollment.Config{
		Courses:     stores.Courses,
		Memberships: stores.Memberships,
		Users:       stores.Users,
		Inbox:       inboxSvc,
		Mailer:      mailer,
		Publisher:   publisher,
		Logger:      logger,
	})
	invitationSvc := invitation.NewService(invitation.Config{
		Invitations: stores.Invitations,
		Courses:     stores.Courses,
		Memberships: stores.Memberships,
		Users:       stores.Users,
		Enroller:    enrollmentSvc,
		Inbox:       inboxSvc,
		Mailer:      mailer,
		Publisher:   publisher,
		Logger:      logger,
		TTL:         cfg.InvitationTTL,
	})
	return &Services{Enrollment: enrollmentSvc, Invitations: invitationSvc, Inbox: inboxSvc}
}
