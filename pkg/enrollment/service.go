// Package enrollment manages learner memberships in courses and keeps each
// course's denormalized enrollment counter and rating aggregate in line with
// the membership rows.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/auth"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/events"
	"github.com/tendant/simple-classroom/pkg/inbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/tendant/simple-classroom/pkg/enrollment")

// CourseStore reads courses and writes their aggregates.
type CourseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	AdjustEnrollmentCount(ctx context.Context, id uuid.UUID, delta int) error
	ReconcileAggregates(ctx context.Context, id uuid.UUID) (before, after domain.CourseAggregates, err error)
	SetRatingAggregate(ctx context.Context, id uuid.UUID, average float64, total int) error
}

// MembershipStore persists memberships.
type MembershipStore interface {
	Get(ctx context.Context, learnerID, courseID uuid.UUID) (*domain.Membership, error)
	Create(ctx context.Context, m *domain.Membership) (bool, error)
	SetActive(ctx context.Context, learnerID, courseID uuid.UUID, active bool, at time.Time) (bool, error)
	ListActiveByCourse(ctx context.Context, courseID uuid.UUID) ([]*domain.Membership, error)
	Aggregate(ctx context.Context, courseID uuid.UUID) (domain.CourseAggregates, error)
	SetRating(ctx context.Context, learnerID, courseID uuid.UUID, rating int, review *string) error
	SetProgress(ctx context.Context, learnerID, courseID uuid.UUID, pct int) error
}

// UserDirectory looks up accounts owned by the identity service.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error)
}

// Inbox records durable notifications.
type Inbox interface {
	Create(ctx context.Context, input inbox.CreateInput) (*domain.Notification, error)
}

// Mailer sends enrollment emails. Implementations are expected to be best-effort.
type Mailer interface {
	SendEnrollmentEmail(ctx context.Context, to, courseTitle, courseID string) error
	SendRemovalEmail(ctx context.Context, to, courseTitle string) error
}

// Config wires a Service. Courses, Memberships and Users are required.
type Config struct {
	Courses     CourseStore
	Memberships MembershipStore
	Users       UserDirectory
	Inbox       Inbox
	Mailer      Mailer
	Publisher   events.Publisher
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service implements the membership lifecycle and the counter reconciler.
type Service struct {
	courses     CourseStore
	memberships MembershipStore
	users       UserDirectory
	inbox       Inbox
	mailer      Mailer
	publisher   events.Publisher
	logger      *slog.Logger
	clock       func() time.Time
}

// NewService creates an enrollment service.
func NewService(cfg Config) *Service {
	s := &Service{
		courses:     cfg.Courses,
		memberships: cfg.Memberships,
		users:       cfg.Users,
		inbox:       cfg.Inbox,
		mailer:      cfg.Mailer,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "enrollment."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EnrollResult reports the membership after an enroll call and whether the
// call activated it.
type EnrollResult struct {
	Membership *domain.Membership
	Activated  bool
}

// Enroll self-enrolls a learner in an open course. Enrolling while already
// active is a no-op; an inactive membership is reactivated rather than
// duplicated.
func (s *Service) Enroll(ctx context.Context, learnerID, courseID uuid.UUID) (result EnrollResult, err error) {
	ctx, span := startSpan(ctx, "Enroll",
		attribute.String("learner_id", learnerID.String()),
		attribute.String("course_id", courseID.String()))
	defer func() { endSpan(span, err) }()

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return EnrollResult{}, err
	}
	if course.IsOwnedBy(learnerID) {
		return EnrollResult{}, domain.ErrOwnerEnrollment
	}
	if !course.OpenForEnrollment() {
		return EnrollResult{}, domain.ErrCourseNotOpen
	}

	m, activated, err := s.Activate(ctx, learnerID, course)
	if err != nil {
		return EnrollResult{}, err
	}
	if activated {
		s.announceEnrollment(ctx, course, learnerID)
	}
	return EnrollResult{Membership: m, Activated: activated}, nil
}

// Activate makes the learner's membership in course active, creating it if
// needed. It reports whether this call performed the inactive-to-active
// transition; the enrollment counter is incremented exactly when it did.
// Activate applies no ownership or visibility rules and emits no events.
// Once the membership write has happened Activate does not fail.
func (s *Service) Activate(ctx context.Context, learnerID uuid.UUID, course *domain.Course) (*domain.Membership, bool, error) {
	m, activated, err := s.activateMembership(ctx, learnerID, course.ID, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("activate membership: %w", err)
	}
	if activated {
		s.adjustCount(ctx, course.ID, 1)
		s.refreshRating(ctx, course.ID)
	}
	return m, activated, nil
}

// activateMembership does every read before its single write and builds
// the returned membership from what it read.
func (s *Service) activateMembership(ctx context.Context, learnerID, courseID uuid.UUID, now time.Time) (*domain.Membership, bool, error) {
	existing, err := s.memberships.Get(ctx, learnerID, courseID)
	if errors.Is(err, domain.ErrMembershipNotFound) {
		m := domain.NewMembership(learnerID, courseID, now)
		created, err := s.memberships.Create(ctx, m)
		if err != nil {
			return nil, false, err
		}
		if created {
			return m, true, nil
		}
		// A concurrent call created the row.
		existing, err = s.memberships.Get(ctx, learnerID, courseID)
	}
	if err != nil {
		return nil, false, err
	}
	if existing.Active {
		return existing, false, nil
	}

	changed, err := s.memberships.SetActive(ctx, learnerID, courseID, true, now)
	if err != nil {
		return nil, false, err
	}
	existing.Active = true
	if changed {
		existing.EnrolledAt = now
		existing.UpdatedAt = now
	}
	return existing, changed, nil
}

// Remove deactivates a learner's membership. Only the course owner may
// remove learners. The row is kept so rating and progress survive a later
// re-enrollment.
func (s *Service) Remove(ctx context.Context, learnerID, courseID, callerID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "Remove",
		attribute.String("learner_id", learnerID.String()),
		attribute.String("course_id", courseID.String()))
	defer func() { endSpan(span, err) }()

	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return err
	}
	if !course.IsOwnedBy(callerID) {
		return domain.ErrNotCourseOwner
	}

	m, err := s.memberships.Get(ctx, learnerID, courseID)
	if err != nil {
		return err
	}
	if !m.Active {
		return domain.ErrMembershipNotFound
	}

	deactivated, err := s.memberships.SetActive(ctx, learnerID, courseID, false, s.now())
	if err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	if !deactivated {
		// A concurrent removal won.
		return domain.ErrMembershipNotFound
	}
	s.adjustCount(ctx, courseID, -1)
	s.refreshRating(ctx, courseID)
	s.announceRemoval(ctx, course, learnerID)
	return nil
}

// adjustCount applies a counter delta. A failure leaves the counter drifted;
// Reconcile is the correction path, so the error is logged and not returned.
func (s *Service) adjustCount(ctx context.Context, courseID uuid.UUID, delta int) {
	if err := s.courses.AdjustEnrollmentCount(ctx, courseID, delta); err != nil {
		s.logger.Warn("failed to adjust enrollment count", "error", err, "course_id", courseID, "delta", delta)
	}
}

// refreshRating recomputes the rating aggregate after the active set changed,
// since a reactivated or removed membership may carry a rating.
func (s *Service) refreshRating(ctx context.Context, courseID uuid.UUID) {
	agg, err := s.memberships.Aggregate(ctx, courseID)
	if err == nil {
		err = s.courses.SetRatingAggregate(ctx, courseID, agg.AverageRating, agg.TotalRatings)
	}
	if err != nil {
		s.logger.Warn("failed to refresh rating aggregate", "error", err, "course_id", courseID)
	}
}

// currentCount re-reads the counter for event payloads.
func (s *Service) currentCount(ctx context.Context, course *domain.Course, fallbackDelta int) int {
	fresh, err := s.courses.GetByID(ctx, course.ID)
	if err != nil {
		return max(course.EnrollmentCount+fallbackDelta, 0)
	}
	return fresh.EnrollmentCount
}

// EnrollmentStatus is a learner's view of their own enrollment.
type EnrollmentStatus struct {
	Enrolled bool    `json:"enrolled"`
	Progress int     `json:"progress"`
	Rating   *int    `json:"rating,omitempty"`
	Review   *string `json:"review,omitempty"`
}

// GetEnrollment returns the learner's enrollment status in a course.
func (s *Service) GetEnrollment(ctx context.Context, learnerID, courseID uuid.UUID) (EnrollmentStatus, error) {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return EnrollmentStatus{}, err
	}
	m, err := s.memberships.Get(ctx, learnerID, courseID)
	if errors.Is(err, domain.ErrMembershipNotFound) {
		return EnrollmentStatus{}, nil
	}
	if err != nil {
		return EnrollmentStatus{}, err
	}
	if !m.Active {
		return EnrollmentStatus{}, nil
	}
	return EnrollmentStatus{
		Enrolled: true,
		Progress: m.ProgressPercentage,
		Rating:   m.Rating,
		Review:   m.Review,
	}, nil
}

// LearnerSummary is the public part of a learner account.
type LearnerSummary struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// Enrollment is an active membership with its learner.
type Enrollment struct {
	ID                 uuid.UUID       `json:"id"`
	CourseID           uuid.UUID       `json:"courseId"`
	EnrolledAt         time.Time       `json:"enrolledAt"`
	ProgressPercentage int             `json:"progressPercentage"`
	Rating             *int            `json:"rating,omitempty"`
	Review             *string         `json:"review,omitempty"`
	Learner            *LearnerSummary `json:"learner"`
}

// ListEnrollments lists a course's active memberships. Only the owner may list.
func (s *Service) ListEnrollments(ctx context.Context, courseID, callerID uuid.UUID) ([]Enrollment, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsOwnedBy(callerID) {
		return nil, domain.ErrNotCourseOwner
	}

	memberships, err := s.memberships.ListActiveByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(memberships))
	for i, m := range memberships {
		ids[i] = m.LearnerID
	}
	users, err := s.users.GetSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]Enrollment, 0, len(memberships))
	for _, m := range memberships {
		e := Enrollment{
			ID:                 m.ID,
			CourseID:           m.CourseID,
			EnrolledAt:         m.EnrolledAt,
			ProgressPercentage: m.ProgressPercentage,
			Rating:             m.Rating,
			Review:             m.Review,
			Learner:            &LearnerSummary{ID: m.LearnerID},
		}
		if u, ok := users[m.LearnerID]; ok {
			e.Learner.Email = u.Email
			e.Learner.Name = u.DisplayName()
		}
		result = append(result, e)
	}
	return result, nil
}

// UpdateProgress records a learner's progress in a course they are
// actively enrolled in.
func (s *Service) UpdateProgress(ctx context.Context, learnerID, courseID uuid.UUID, pct int) error {
	if err := domain.ValidateProgress(pct); err != nil {
		return err
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return err
	}
	err := s.memberships.SetProgress(ctx, learnerID, courseID, pct)
	if errors.Is(err, domain.ErrMembershipNotFound) {
		return domain.ErrNotEnrolled
	}
	return err
}

func normalizeReview(review *string) *string {
	if review == nil {
		return nil
	}
	cleaned := auth.CleanText(*review)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
