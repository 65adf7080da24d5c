package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

// Notifications holds per-user inbox items.
type Notifications struct{ s *Store }

func copyNotification(n *domain.Notification) *domain.Notification {
	cp := *n
	if n.Meta != nil {
		cp.Meta = make(map[string]string, len(n.Meta))
		for k, v := range n.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}

// Create inserts a notification.
func (r *Notifications) Create(_ context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications[n.ID] = copyNotification(n)
	return nil
}

// ListByUser retrieves a user's notifications, newest first.
func (r *Notifications) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]*domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range r.s.notifications {
		if n.UserID == userID {
			result = append(result, copyNotification(n))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *Notifications) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *Notifications) owned(userID, id uuid.UUID) (*domain.Notification, bool) {
	n, ok := r.s.notifications[id]
	if !ok || n.UserID != userID {
		return nil, false
	}
	return n, true
}

// MarkRead marks one of the user's notifications as read.
func (r *Notifications) MarkRead(_ context.Context, userID, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.owned(userID, id)
	if !ok {
		return domain.ErrNotificationNotFound
	}
	if !n.Read {
		n.Read = true
		ts := at
		n.ReadAt = &ts
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (r *Notifications) MarkAllRead(_ context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var changed int64
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			ts := at
			n.ReadAt = &ts
			changed++
		}
	}
	return changed, nil
}

// Delete removes one of the user's notifications.
func (r *Notifications) Delete(_ context.Context, userID, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.owned(userID, id); !ok {
		return domain.ErrNotificationNotFound
	}
	delete(r.s.notifications, id)
	return nil
}
