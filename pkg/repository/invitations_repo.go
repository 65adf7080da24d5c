package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

// pendingInvitationIndex is the partial unique index that allows at most
// one pending invitation per (course, student).
const pendingInvitationIndex = "invitations_one_pending_idx"

// InvitationsRepository handles course invitation persistence.
type InvitationsRepository struct {
	db *sql.DB
}

// NewInvitationsRepository creates a new invitations repository.
func NewInvitationsRepository(db *sql.DB) *InvitationsRepository {
	return &InvitationsRepository{db: db}
}

const invitationColumns = `
	id, course_id, teacher_id, student_id, student_email, status, message,
	expires_at, accepted_at, declined_at, cancelled_at, created_at, updated_at
`

func scanInvitation(row interface{ Scan(...any) error }) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := row.Scan(
		&inv.ID,
		&inv.CourseID,
		&inv.TeacherID,
		&inv.StudentID,
		&inv.StudentEmail,
		&inv.Status,
		&inv.Message,
		&inv.ExpiresAt,
		&inv.AcceptedAt,
		&inv.DeclinedAt,
		&inv.CancelledAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationsRepository) queryInvitations(ctx context.Context, query string, args ...any) ([]*domain.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Create inserts a pending invitation. A concurrent pending invitation for
// the same pair surfaces as domain.ErrInvitationPending.
func (r *InvitationsRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	query := `
		INSERT INTO invitations (id, course_id, teacher_id, student_id, student_email, status, message, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.CourseID,
		inv.TeacherID,
		inv.StudentID,
		inv.StudentEmail,
		inv.Status,
		inv.Message,
		inv.ExpiresAt,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if isUniqueViolation(err, pendingInvitationIndex) {
		return domain.ErrInvitationPending
	}
	return err
}

// GetByID retrieves an invitation by ID.
func (r *InvitationsRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// FindPending retrieves the pending invitation for a pair, if any.
func (r *InvitationsRepository) FindPending(ctx context.Context, courseID, studentID uuid.UUID) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + `
		FROM invitations
		WHERE course_id = $1 AND student_id = $2 AND status = 'pending'
	`
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, courseID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ExpireStale flips pending invitations of a pair that are past expiry to expired.
func (r *InvitationsRepository) ExpireStale(ctx context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE invitations
		SET status = 'expired', updated_at = $3
		WHERE course_id = $1 AND student_id = $2 AND status = 'pending' AND expires_at < $3
	`
	result, err := r.db.ExecContext(ctx, query, courseID, studentID, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeclineStale flips expired and declined invitations of a pair to declined.
// Accepted and cancelled invitations are left untouched.
func (r *InvitationsRepository) DeclineStale(ctx context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE invitations
		SET status = 'declined', declined_at = COALESCE(declined_at, $3), updated_at = $3
		WHERE course_id = $1 AND student_id = $2 AND status IN ('expired', 'declined')
	`
	result, err := r.db.ExecContext(ctx, query, courseID, studentID, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Transition moves an invitation from one status to another only if it is
// still in the expected status. It returns false when another writer got there
// first. Reverting to pending clears the terminal timestamps.
func (r *InvitationsRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.InvitationStatus, at time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET status = $3,
		    accepted_at  = CASE WHEN $3 = 'accepted'  THEN $4 WHEN $3 = 'pending' THEN NULL ELSE accepted_at END,
		    declined_at  = CASE WHEN $3 = 'declined'  THEN $4 WHEN $3 = 'pending' THEN NULL ELSE declined_at END,
		    cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 WHEN $3 = 'pending' THEN NULL ELSE cancelled_at END,
		    updated_at = $4
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, from, to, at)
	if isUniqueViolation(err, pendingInvitationIndex) {
		return false, domain.ErrInvitationPending
	}
	if err != nil {
		return false, err
	}
	return affected(result)
}

// ListPendingByStudent lists a student's pending invitations that have not expired.
func (r *InvitationsRepository) ListPendingByStudent(ctx context.Context, studentID uuid.UUID, now time.Time) ([]*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + `
		FROM invitations
		WHERE student_id = $1 AND status = 'pending' AND expires_at >= $2
		ORDER BY created_at DESC
	`
	return r.queryInvitations(ctx, query, studentID, now)
}

// ListByTeacher lists every invitation a teacher has issued, newest first.
func (r *InvitationsRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + `
		FROM invitations
		WHERE teacher_id = $1
		ORDER BY created_at DESC
	`
	return r.queryInvitations(ctx, query, teacherID)
}

// PurgeExpired deletes invitations that expired before the cutoff and were
// never accepted.
func (r *InvitationsRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM invitations
		WHERE expires_at < $1 AND status <> 'accepted'
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
