package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

// NotificationsRepository handles the per-user notification inbox.
type NotificationsRepository struct {
	db *sql.DB
}

// NewNotificationsRepository creates a new notifications repository.
func NewNotificationsRepository(db *sql.DB) *NotificationsRepository {
	return &NotificationsRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationsRepository) Create(ctx context.Context, n *domain.Notification) error {
	// meta must stay an untyped nil when empty: lib/pq binds a nil []byte
	// as an empty string, which jsonb rejects.
	var meta any
	if len(n.Meta) > 0 {
		raw, err := json.Marshal(n.Meta)
		if err != nil {
			return fmt.Errorf("encode notification meta: %w", err)
		}
		meta = raw
	}

	query := `
		INSERT INTO notifications (id, user_id, title, body, read, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.Title,
		n.Body,
		n.Read,
		meta,
		n.CreatedAt,
	)
	return err
}

// ListByUser retrieves a user's notifications, newest first.
func (r *NotificationsRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Notification, error) {
	query := `
		SELECT id, user_id, title, body, read, meta, created_at, read_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var meta []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Read, &meta, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Meta); err != nil {
				return nil, fmt.Errorf("decode notification meta: %w", err)
			}
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationsRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`,
		userID,
	).Scan(&count)
	return count, err
}

// MarkRead marks one of the user's notifications as read. Marking an
// already-read notification succeeds; a notification owned by someone else
// is reported as not found.
func (r *NotificationsRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, userID, at)
	if err != nil {
		return err
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read and
// returns how many changed.
func (r *NotificationsRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET read = TRUE, read_at = $2
		WHERE user_id = $1 AND NOT read
	`
	result, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Delete removes one of the user's notifications.
func (r *NotificationsRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return err
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotificationNotFound
	}
	return nil
}
