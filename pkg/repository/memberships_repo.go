package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

// MembershipsRepository handles course membership persistence.
type MembershipsRepository struct {
	db *sql.DB
}

// NewMembershipsRepository creates a new memberships repository.
func NewMembershipsRepository(db *sql.DB) *MembershipsRepository {
	return &MembershipsRepository{db: db}
}

const membershipColumns = `
	id, learner_id, course_id, active, enrolled_at, progress_percentage,
	rating, review, created_at, updated_at
`

func scanMembership(row interface{ Scan(...any) error }) (*domain.Membership, error) {
	var m domain.Membership
	var rating sql.NullInt64
	err := row.Scan(
		&m.ID,
		&m.LearnerID,
		&m.CourseID,
		&m.Active,
		&m.EnrolledAt,
		&m.ProgressPercentage,
		&rating,
		&m.Review,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		v := int(rating.Int64)
		m.Rating = &v
	}
	return &m, nil
}

// Create inserts a membership. It returns false without error when a
// membership for the same (learner, course) pair already exists.
func (r *MembershipsRepository) Create(ctx context.Context, m *domain.Membership) (bool, error) {
	return r.CreateTx(ctx, r.db, m)
}

// CreateTx inserts a membership within a transaction.
func (r *MembershipsRepository) CreateTx(ctx context.Context, q Querier, m *domain.Membership) (bool, error) {
	query := `
		INSERT INTO memberships (id, learner_id, course_id, active, enrolled_at, progress_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (learner_id, course_id) DO NOTHING
	`
	result, err := q.ExecContext(ctx, query,
		m.ID,
		m.LearnerID,
		m.CourseID,
		m.Active,
		m.EnrolledAt,
		m.ProgressPercentage,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// Get retrieves the membership for a learner in a course, active or not.
func (r *MembershipsRepository) Get(ctx context.Context, learnerID, courseID uuid.UUID) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE learner_id = $1 AND course_id = $2
	`
	m, err := scanMembership(r.db.QueryRowContext(ctx, query, learnerID, courseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetActive flips the active flag. It returns true only when the stored
// value actually changed, so callers can apply counter deltas exactly once.
// Reactivation refreshes enrolled_at.
func (r *MembershipsRepository) SetActive(ctx context.Context, learnerID, courseID uuid.UUID, active bool, at time.Time) (bool, error) {
	query := `
		UPDATE memberships
		SET active = $3,
		    enrolled_at = CASE WHEN $3 THEN $4 ELSE enrolled_at END,
		    updated_at = $4
		WHERE learner_id = $1 AND course_id = $2 AND active = NOT $3
	`
	result, err := r.db.ExecContext(ctx, query, learnerID, courseID, active, at)
	if err != nil {
		return false, err
	}
	return affected(result)
}

// ListActiveByCourse retrieves all active memberships of a course.
func (r *MembershipsRepository) ListActiveByCourse(ctx context.Context, courseID uuid.UUID) ([]*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE course_id = $1 AND active = TRUE
		ORDER BY enrolled_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// Aggregate computes the course aggregates from the current membership rows.
func (r *MembershipsRepository) Aggregate(ctx context.Context, courseID uuid.UUID) (domain.CourseAggregates, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE active),
			COALESCE(AVG(rating) FILTER (WHERE active AND rating IS NOT NULL), 0),
			COUNT(rating) FILTER (WHERE active)
		FROM memberships
		WHERE course_id = $1
	`
	var agg domain.CourseAggregates
	err := r.db.QueryRowContext(ctx, query, courseID).Scan(
		&agg.EnrollmentCount,
		&agg.AverageRating,
		&agg.TotalRatings,
	)
	if err != nil {
		return domain.CourseAggregates{}, err
	}
	agg.AverageRating = domain.RoundRating(agg.AverageRating)
	return agg, nil
}

// SetRating stores a learner's rating and optional review on an active
// membership.
func (r *MembershipsRepository) SetRating(ctx context.Context, learnerID, courseID uuid.UUID, rating int, review *string) error {
	query := `
		UPDATE memberships
		SET rating = $3, review = $4, updated_at = NOW()
		WHERE learner_id = $1 AND course_id = $2 AND active = TRUE
	`
	result, err := r.db.ExecContext(ctx, query, learnerID, courseID, rating, review)
	if err != nil {
		return err
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrMembershipNotFound
	}
	return nil
}

// SetProgress stores a learner's progress on an active membership.
func (r *MembershipsRepository) SetProgress(ctx context.Context, learnerID, courseID uuid.UUID, pct int) error {
	query := `
		UPDATE memberships
		SET progress_percentage = $3, updated_at = NOW()
		WHERE learner_id = $1 AND course_id = $2 AND active = TRUE
	`
	result, err := r.db.ExecContext(ctx, query, learnerID, courseID, pct)
	if err != nil {
		return err
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrMembershipNotFound
	}
	return nil
}
