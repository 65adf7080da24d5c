package enrollment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/events"
	"go.opentelemetry.io/otel/attribute"
)

// Delta is a course's aggregates before and after reconciliation.
type Delta struct {
	CourseID uuid.UUID               `json:"courseId"`
	Before   domain.CourseAggregates `json:"before"`
	After    domain.CourseAggregates `json:"after"`
}

// Changed reports whether reconciliation corrected anything.
func (d Delta) Changed() bool {
	return d.Before != d.After
}

// Report is the outcome of reconciling every course.
type Report struct {
	Courses []Delta `json:"courses"`
	Fixed   int     `json:"fixed"`
}

// Reconcile recomputes a course's enrollment counter and rating aggregate
// from its active memberships and overwrites the stored values in one store
// operation. It is a pure function of membership state and safe to run at
// any time.
func (s *Service) Reconcile(ctx context.Context, courseID uuid.UUID) (delta Delta, err error) {
	ctx, span := startSpan(ctx, "Reconcile", attribute.String("course_id", courseID.String()))
	defer func() { endSpan(span, err) }()

	before, after, err := s.courses.ReconcileAggregates(ctx, courseID)
	if errors.Is(err, domain.ErrCourseNotFound) {
		return Delta{}, err
	}
	if err != nil {
		return Delta{}, fmt.Errorf("reconcile aggregates: %w", err)
	}
	return Delta{CourseID: courseID, Before: before, After: after}, nil
}

// ReconcileAll reconciles every course and returns the per-course deltas.
// Courses deleted while the pass runs are skipped.
func (s *Service) ReconcileAll(ctx context.Context) (report Report, err error) {
	ctx, span := startSpan(ctx, "ReconcileAll")
	defer func() { endSpan(span, err) }()

	ids, err := s.courses.ListIDs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list courses: %w", err)
	}

	report.Courses = make([]Delta, 0, len(ids))
	for _, id := range ids {
		delta, err := s.Reconcile(ctx, id)
		if errors.Is(err, domain.ErrCourseNotFound) {
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("reconcile course %s: %w", id, err)
		}
		if delta.Changed() {
			report.Fixed++
			s.logger.Info("corrected course aggregates",
				"course_id", id,
				"count_before", delta.Before.EnrollmentCount,
				"count_after", delta.After.EnrollmentCount)
		}
		report.Courses = append(report.Courses, delta)
	}
	span.SetAttributes(attribute.Int("courses_checked", len(report.Courses)), attribute.Int("courses_fixed", report.Fixed))

	s.publisher.Publish(ctx, events.AdminRoom, events.DashboardStatsUpdate{
		CoursesChecked: len(report.Courses),
		CoursesFixed:   report.Fixed,
	})
	if report.Fixed > 0 {
		s.publisher.Publish(ctx, events.AdminRoom, events.AdminNotification{
			Level:   "warning",
			Title:   "Enrollment counts corrected",
			Message: fmt.Sprintf("%d of %d courses had drifted aggregates", report.Fixed, len(report.Courses)),
		})
	}
	return report, nil
}

// Rate stores a learner's rating and review, then recomputes the course's
// rating aggregate from all active memberships. The recompute is the only
// way the stored average changes, so it always matches Reconcile.
func (s *Service) Rate(ctx context.Context, learnerID, courseID uuid.UUID, rating int, review *string) (agg domain.CourseAggregates, err error) {
	ctx, span := startSpan(ctx, "Rate",
		attribute.String("learner_id", learnerID.String()),
		attribute.String("course_id", courseID.String()))
	defer func() { endSpan(span, err) }()

	if err := domain.ValidateRating(rating); err != nil {
		return domain.CourseAggregates{}, err
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return domain.CourseAggregates{}, err
	}

	err = s.memberships.SetRating(ctx, learnerID, courseID, rating, normalizeReview(review))
	if errors.Is(err, domain.ErrMembershipNotFound) {
		return domain.CourseAggregates{}, domain.ErrNotEnrolled
	}
	if err != nil {
		return domain.CourseAggregates{}, err
	}

	agg, err = s.memberships.Aggregate(ctx, courseID)
	if err != nil {
		return domain.CourseAggregates{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	if err := s.courses.SetRatingAggregate(ctx, courseID, agg.AverageRating, agg.TotalRatings); err != nil {
		return domain.CourseAggregates{}, fmt.Errorf("store rating aggregate: %w", err)
	}
	return agg, nil
}
