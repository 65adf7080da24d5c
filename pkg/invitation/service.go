// Package invitation runs the course invitation workflow between a course
// owner and a learner: pending invitations are accepted, declined, cancelled
// or lapse after their expiry.
package invitation

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

var tracer = otel.Tracer("github.com/tendant/simple-classroom/pkg/invitation")

// Store persists invitations.
type Store interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error)
	FindPending(ctx context.Context, courseID, studentID uuid.UUID) (*domain.Invitation, error)
	ExpireStale(ctx context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error)
	DeclineStale(ctx context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.InvitationStatus, at time.Time) (bool, error)
	ListPendingByStudent(ctx context.Context, studentID uuid.UUID, now time.Time) ([]*domain.Invitation, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]*domain.Invitation, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// CourseReader looks up courses.
type CourseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error)
}

// MembershipReader looks up memberships.
type MembershipReader interface {
	Get(ctx context.Context, learnerID, courseID uuid.UUID) (*domain.Membership, error)
}

// UserDirectory resolves accounts owned by the identity service.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Enroller activates memberships; see enrollment.Service.Activate.
type Enroller interface {
	Activate(ctx context.Context, learnerID uuid.UUID, course *domain.Course) (*domain.Membership, bool, error)
}

// Inbox records durable notifications.
type Inbox interface {
	Create(ctx context.Context, input inbox.CreateInput) (*domain.Notification, error)
}

// Mailer sends invitation emails. Implementations are expected to be best-effort.
type Mailer interface {
	SendInvitationEmail(ctx context.Context, to, courseTitle, teacherName string, expiresAt time.Time) error
}

// Config wires a Service. Every store and the Enroller are required.
type Config struct {
	Invitations Store
	Courses     CourseReader
	Memberships MembershipReader
	Users       UserDirectory
	Enroller    Enroller
	Inbox       Inbox
	Mailer      Mailer
	Publisher   events.Publisher
	Logger      *slog.Logger
	Clock       func() time.Time
	// TTL is how long a new invitation stays acceptable. Zero uses
	// domain.DefaultInvitationTTL.
	TTL time.Duration
}

// Service implements the invitation state machine.
type Service struct {
	invitations Store
	courses     CourseReader
	memberships MembershipReader
	users       UserDirectory
	enroller    Enroller
	inbox       Inbox
	mailer      Mailer
	publisher   events.Publisher
	logger      *slog.Logger
	clock       func() time.Time
	ttl         time.Duration
}

// NewService creates an invitation service.
func NewService(cfg Config) *Service {
	s := &Service{
		invitations: cfg.Invitations,
		courses:     cfg.Courses,
		memberships: cfg.Memberships,
		users:       cfg.Users,
		enroller:    cfg.Enroller,
		inbox:       cfg.Inbox,
		mailer:      cfg.Mailer,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		ttl:         cfg.TTL,
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
	if s.ttl <= 0 {
		s.ttl = domain.DefaultInvitationTTL
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "invitation."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// View is an invitation as returned to clients, with its lazily computed
// effective status.
type View struct {
	ID           uuid.UUID               `json:"id"`
	CourseID     uuid.UUID               `json:"courseId"`
	TeacherID    uuid.UUID               `json:"teacherId"`
	StudentID    uuid.UUID               `json:"studentId"`
	StudentEmail string                  `json:"studentEmail"`
	Status       domain.InvitationStatus `json:"status"`
	Message      *string                 `json:"message,omitempty"`
	ExpiresAt    time.Time               `json:"expiresAt"`
	AcceptedAt   *time.Time              `json:"acceptedAt,omitempty"`
	DeclinedAt   *time.Time              `json:"declinedAt,omitempty"`
	CancelledAt  *time.Time              `json:"cancelledAt,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
}

func (s *Service) view(inv *domain.Invitation, now time.Time) View {
	return View{
		ID:           inv.ID,
		CourseID:     inv.CourseID,
		TeacherID:    inv.TeacherID,
		StudentID:    inv.StudentID,
		StudentEmail: inv.StudentEmail,
		Status:       inv.EffectiveStatus(now),
		Message:      inv.Message,
		ExpiresAt:    inv.ExpiresAt,
		AcceptedAt:   inv.AcceptedAt,
		DeclinedAt:   inv.DeclinedAt,
		CancelledAt:  inv.CancelledAt,
		CreatedAt:    inv.CreatedAt,
	}
}

// CreateInput describes a new invitation.
type CreateInput struct {
	CourseID     uuid.UUID
	StudentEmail string
	IssuerID     uuid.UUID
	Message      *string
}

// Create invites the learner with StudentEmail to the course. The issuer
// must own the course; the learner must not be actively enrolled and must
// not already hold a pending invitation for it.
func (s *Service) Create(ctx context.Context, input CreateInput) (view View, err error) {
	ctx, span := startSpan(ctx, "Create", attribute.String("course_id", input.CourseID.String()))
	defer func() { endSpan(span, err) }()

	email, err := auth.ParseEmail(input.StudentEmail)
	if err != nil {
		return View{}, err
	}

	course, err := s.courses.GetByID(ctx, input.CourseID)
	if err != nil {
		return View{}, err
	}
	if !course.IsOwnedBy(input.IssuerID) {
		return View{}, domain.ErrNotCourseOwner
	}
	student, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return View{}, err
	}
	if student.ID == input.IssuerID {
		return View{}, domain.ErrSelfInvitation
	}

	m, err := s.memberships.Get(ctx, student.ID, course.ID)
	switch {
	case err == nil && m.Active:
		return View{}, domain.ErrAlreadyEnrolled
	case err != nil && !errors.Is(err, domain.ErrMembershipNotFound):
		return View{}, err
	}

	now := s.now()
	s.cleanupStale(ctx, course.ID, student.ID, now)

	if _, err := s.invitations.FindPending(ctx, course.ID, student.ID); err == nil {
		return View{}, domain.ErrInvitationPending
	} else if !errors.Is(err, domain.ErrInvitationNotFound) {
		return View{}, err
	}

	inv := domain.NewInvitation(course.ID, input.IssuerID, student.ID, student.Email, normalizeMessage(input.Message), now, s.ttl)
	if err := s.invitations.Create(ctx, inv); err != nil {
		return View{}, err
	}

	s.announceInvitation(ctx, inv, course)
	return s.view(inv, now), nil
}

// cleanupStale settles old invitations of the pair before a new one is
// issued: lapsed pending rows become expired, then expired and declined
// rows are marked declined. Failures are logged; the unique pending index
// still guards the insert.
func (s *Service) cleanupStale(ctx context.Context, courseID, studentID uuid.UUID, now time.Time) {
	if _, err := s.invitations.ExpireStale(ctx, courseID, studentID, now); err != nil {
		s.logger.Warn("failed to expire stale invitations", "error", err, "course_id", courseID, "user_id", studentID)
		return
	}
	if _, err := s.invitations.DeclineStale(ctx, courseID, studentID, now); err != nil {
		s.logger.Warn("failed to settle old invitations", "error", err, "course_id", courseID, "user_id", studentID)
	}
}

func checkOpen(inv *domain.Invitation, now time.Time) error {
	if inv.Status != domain.InvitationPending {
		return domain.ErrInvitationNotPending
	}
	if inv.IsExpired(now) {
		return domain.ErrInvitationExpired
	}
	return nil
}

// transition applies a compare-and-set from pending. Losing the race to
// another writer is reported as not pending.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to domain.InvitationStatus, now time.Time) error {
	ok, err := s.invitations.Transition(ctx, id, domain.InvitationPending, to, now)
	if err != nil {
		return fmt.Errorf("transition invitation: %w", err)
	}
	if !ok {
		return domain.ErrInvitationNotPending
	}
	return nil
}

// Accept enrolls the invited learner. Only the invited learner may accept,
// and only while the invitation is pending and unexpired. Exactly one of
// any number of concurrent accepts succeeds.
func (s *Service) Accept(ctx context.Context, id, callerID uuid.UUID) (view View, err error) {
	ctx, span := startSpan(ctx, "Accept", attribute.String("invitation_id", id.String()))
	defer func() { endSpan(span, err) }()

	now := s.now()
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return View{}, err
	}
	if inv.StudentID != callerID {
		return View{}, domain.ErrNotInvitationRecipient
	}
	if err := checkOpen(inv, now); err != nil {
		return View{}, err
	}
	course, err := s.courses.GetByID(ctx, inv.CourseID)
	if err != nil {
		return View{}, err
	}

	if err := s.transition(ctx, inv.ID, domain.InvitationAccepted, now); err != nil {
		return View{}, err
	}

	if _, _, err := s.enroller.Activate(ctx, inv.StudentID, course); err != nil {
		s.revertAccept(ctx, inv.ID)
		return View{}, err
	}

	inv.Status = domain.InvitationAccepted
	inv.AcceptedAt = &now
	inv.UpdatedAt = now
	s.announceAcceptance(ctx, inv, course)
	return s.view(inv, now), nil
}

// revertAccept returns a won invitation to pending when the membership step
// failed, so the learner can retry.
func (s *Service) revertAccept(ctx context.Context, id uuid.UUID) {
	ok, err := s.invitations.Transition(ctx, id, domain.InvitationAccepted, domain.InvitationPending, s.now())
	if err != nil || !ok {
		s.logger.Error("failed to revert invitation after enrollment failure", "error", err, "invitation_id", id)
	}
}

// Decline rejects an invitation. Only the invited learner may decline.
func (s *Service) Decline(ctx context.Context, id, callerID uuid.UUID) (View, error) {
	now := s.now()
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return View{}, err
	}
	if inv.StudentID != callerID {
		return View{}, domain.ErrNotInvitationRecipient
	}
	if err := checkOpen(inv, now); err != nil {
		return View{}, err
	}
	if err := s.transition(ctx, inv.ID, domain.InvitationDeclined, now); err != nil {
		return View{}, err
	}

	inv.Status = domain.InvitationDeclined
	inv.DeclinedAt = &now
	s.announceDecline(ctx, inv)
	return s.view(inv, now), nil
}

// Cancel withdraws an invitation. Only the issuing teacher may cancel.
func (s *Service) Cancel(ctx context.Context, id, issuerID uuid.UUID) (View, error) {
	now := s.now()
	inv, err := s.invitations.GetByID(ctx, id)
	if err != nil {
		return View{}, err
	}
	if inv.TeacherID != issuerID {
		return View{}, domain.ErrNotInvitationIssuer
	}
	if err := checkOpen(inv, now); err != nil {
		return View{}, err
	}
	if err := s.transition(ctx, inv.ID, domain.InvitationCancelled, now); err != nil {
		return View{}, err
	}

	inv.Status = domain.InvitationCancelled
	inv.CancelledAt = &now
	return s.view(inv, now), nil
}

// ListPendingForStudent lists the learner's open invitations, newest first.
func (s *Service) ListPendingForStudent(ctx context.Context, studentID uuid.UUID) ([]View, error) {
	now := s.now()
	invitations, err := s.invitations.ListPendingByStudent(ctx, studentID, now)
	if err != nil {
		return nil, err
	}
	return s.views(invitations, now), nil
}

// ListSentByTeacher lists every invitation the teacher issued, in any status.
func (s *Service) ListSentByTeacher(ctx context.Context, teacherID uuid.UUID) ([]View, error) {
	now := s.now()
	invitations, err := s.invitations.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return s.views(invitations, now), nil
}

func (s *Service) views(invitations []*domain.Invitation, now time.Time) []View {
	out := make([]View, 0, len(invitations))
	for _, inv := range invitations {
		out = append(out, s.view(inv, now))
	}
	return out
}

// PurgeExpired deletes unaccepted invitations whose expiry is older than
// retention. It is a maintenance operation and never runs implicitly.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	n, err := s.invitations.PurgeExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge expired invitations: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged expired invitations", "count", n)
	}
	return n, nil
}

func normalizeMessage(msg *string) *string {
	if msg == nil {
		return nil
	}
	cleaned := auth.CleanText(*msg)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
