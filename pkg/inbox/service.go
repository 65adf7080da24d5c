// Package inbox is the durable per-user notification inbox. It backs up
// live events, which are best-effort, with a record the user can pull later.
package inbox

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store is the inbox persistence boundary.
type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// CreateInput describes one notification to record.
type CreateInput struct {
	UserID string
	Title  string
	Body   string
	Meta   map[string]string
}

// Service manages user inboxes. Every operation is scoped to the calling
// user, so one user can never read or change another's notifications.
type Service struct {
	store Store
	clock func() time.Time
}

// NewService creates an inbox service. A nil clock uses time.Now.
func NewService(store Store, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, clock: clock}
}

// Create records a notification for a user.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Notification, error) {
	userID, err := parseID(input.UserID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.ErrTitleRequired
	}

	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Body:      strings.TrimSpace(input.Body),
		Meta:      input.Meta,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns a user's notifications newest first. limit <= 0 uses the
// default page size; larger values are capped.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return s.store.ListByUser(ctx, uid, limit)
}

// CountUnread returns how many notifications the user has not read.
func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	uid, err := parseID(userID)
	if err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, uid)
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	uid, nid, err := parsePair(userID, id)
	if err != nil {
		return err
	}
	return s.store.MarkRead(ctx, uid, nid, s.clock().UTC())
}

// MarkAllRead marks every unread notification of the user as read and
// returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	uid, err := parseID(userID)
	if err != nil {
		return 0, err
	}
	return s.store.MarkAllRead(ctx, uid, s.clock().UTC())
}

// Remove deletes one of the user's notifications.
func (s *Service) Remove(ctx context.Context, userID, id string) error {
	uid, nid, err := parsePair(userID, id)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, uid, nid)
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, domain.ErrMalformedID
	}
	return id, nil
}

func parsePair(userID, id string) (uuid.UUID, uuid.UUID, error) {
	uid, err := parseID(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	nid, err := parseID(id)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return uid, nid, nil
}
