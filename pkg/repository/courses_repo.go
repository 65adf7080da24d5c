package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

// CoursesRepository reads courses and maintains their denormalized aggregates.
type CoursesRepository struct {
	db *sql.DB
}

// NewCoursesRepository creates a new courses repository.
func NewCoursesRepository(db *sql.DB) *CoursesRepository {
	return &CoursesRepository{db: db}
}

// GetByID retrieves a course by ID.
func (r *CoursesRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	query := `
		SELECT id, owner_id, title, published, visibility,
		       enrollment_count, average_rating, total_ratings, created_at, updated_at
		FROM courses
		WHERE id = $1
	`
	course := &domain.Course{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&course.ID, &course.OwnerID, &course.Title, &course.Published, &course.Visibility,
		&course.EnrollmentCount, &course.AverageRating, &course.TotalRatings,
		&course.CreatedAt, &course.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return course, nil
}

// ListIDs returns the IDs of every course.
func (r *CoursesRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM courses ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AdjustEnrollmentCount applies delta to the enrollment counter.
// Decrements never take the counter below zero.
func (r *CoursesRepository) AdjustEnrollmentCount(ctx context.Context, id uuid.UUID, delta int) error {
	query := `
		UPDATE courses
		SET enrollment_count = enrollment_count + $2, updated_at = NOW()
		WHERE id = $1 AND enrollment_count + $2 >= 0
	`
	result, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return err
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		// Either the course is gone or the counter is already at zero.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileAggregates recomputes a course's aggregates from its memberships
// and overwrites the stored values, returning both. The course row is locked
// before the memberships are counted, so counter adjustments made meanwhile
// queue behind the overwrite instead of being lost under it.
func (r *CoursesRepository) ReconcileAggregates(ctx context.Context, id uuid.UUID) (before, after domain.CourseAggregates, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return before, after, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		SELECT enrollment_count, average_rating, total_ratings
		FROM courses
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&before.EnrollmentCount, &before.AverageRating, &before.TotalRatings)
	if errors.Is(err, sql.ErrNoRows) {
		return before, after, domain.ErrCourseNotFound
	}
	if err != nil {
		return before, after, err
	}

	query := `
		UPDATE courses c
		SET enrollment_count = a.active_count,
		    average_rating = a.average,
		    total_ratings = a.rated,
		    updated_at = NOW()
		FROM (
			SELECT
				COUNT(*) FILTER (WHERE active) AS active_count,
				COALESCE(ROUND(AVG(rating) FILTER (WHERE active AND rating IS NOT NULL), 2), 0)::float8 AS average,
				COUNT(rating) FILTER (WHERE active) AS rated
			FROM memberships
			WHERE course_id = $1
		) a
		WHERE c.id = $1
		RETURNING c.enrollment_count, c.average_rating, c.total_ratings
	`
	err = tx.QueryRowContext(ctx, query, id).Scan(&after.EnrollmentCount, &after.AverageRating, &after.TotalRatings)
	if err != nil {
		return before, after, err
	}
	if err := tx.Commit(); err != nil {
		return before, after, err
	}
	return before, after, nil
}

// SetRatingAggregate overwrites the rating aggregate, leaving the counter alone.
func (r *CoursesRepository) SetRatingAggregate(ctx context.Context, id uuid.UUID, average float64, total int) error {
	query := `
		UPDATE courses
		SET average_rating = $2, total_ratings = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, average, total)
	if err != nil {
		return err
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCourseNotFound
	}
	return nil
}
