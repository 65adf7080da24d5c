package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one item in a user's durable inbox.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	Body      string
	Read      bool
	Meta      map[string]string
	CreatedAt time.Time
	ReadAt    *time.Time
}
