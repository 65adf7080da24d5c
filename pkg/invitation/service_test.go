package invitation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-classroom/internal/testutil"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/enrollment"
	"github.com/tendant/simple-classroom/pkg/events"
	"github.com/tendant/simple-classroom/pkg/inbox"
	"github.com/tendant/simple-classroom/pkg/repository/memstore"
)

type fixture struct {
	store      *memstore.Store
	svc        *Service
	enrollment *enrollment.Service
	inbox      *inbox.Service
	publisher  *testutil.Publisher
	mailer     *testutil.Mailer
	clock      *testutil.Clock
	teacher    *domain.User
	student    *domain.User
	course     *domain.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clock := testutil.NewClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	teacherName := "Ada Teacher"
	teacher := &domain.User{ID: uuid.New(), Email: "teacher@example.com", Name: &teacherName}
	student := &domain.User{ID: uuid.New(), Email: "student@example.com"}
	store.PutUser(teacher)
	store.PutUser(student)

	course := &domain.Course{
		ID:         uuid.New(),
		OwnerID:    teacher.ID,
		Title:      "Distributed Systems",
		Published:  true,
		Visibility: domain.VisibilityPublic,
		CreatedAt:  clock.Now(),
	}
	store.PutCourse(course)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	f := &fixture{
		store:     store,
		inbox:     inbox.NewService(store.Notifications(), clock.Now),
		publisher: &testutil.Publisher{},
		mailer:    &testutil.Mailer{},
		clock:     clock,
		teacher:   teacher,
		student:   student,
		course:    course,
	}
	f.enrollment = enrollment.NewService(enrollment.Config{
		Courses:     store.Courses(),
		Memberships: store.Memberships(),
		Users:       store.Users(),
		Inbox:       f.inbox,
		Mailer:      f.mailer,
		Publisher:   f.publisher,
		Logger:      logger,
		Clock:       clock.Now,
	})
	f.svc = f.newService(f.enrollment)
	return f
}

func (f *fixture) newService(enroller Enroller) *Service {
	return NewService(Config{
		Invitations: f.store.Invitations(),
		Courses:     f.store.Courses(),
		Memberships: f.store.Memberships(),
		Users:       f.store.Users(),
		Enroller:    enroller,
		Inbox:       f.inbox,
		Mailer:      f.mailer,
		Publisher:   f.publisher,
		Logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Clock:       f.clock.Now,
	})
}

func (f *fixture) invite(t *testing.T) View {
	t.Helper()
	v, err := f.svc.Create(context.Background(), CreateInput{
		CourseID:     f.course.ID,
		StudentEmail: f.student.Email,
		IssuerID:     f.teacher.ID,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	c, err := f.store.Courses().GetByID(context.Background(), f.course.ID)
	require.NoError(t, err)
	return c.EnrollmentCount
}

func (f *fixture) stored(t *testing.T, id uuid.UUID) *domain.Invitation {
	t.Helper()
	inv, err := f.store.Invitations().GetByID(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func TestInvitationLifecycle_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.invite(t)
	assert.Equal(t, domain.InvitationPending, first.Status)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), first.ExpiresAt)

	accepted, err := f.svc.Accept(ctx, first.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)
	assert.Equal(t, 1, f.count(t))

	m, err := f.store.Memberships().Get(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, m.Active)

	_, err = f.svc.Create(ctx, CreateInput{CourseID: f.course.ID, StudentEmail: f.student.Email, IssuerID: f.teacher.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)
	assert.Equal(t, 0, f.store.InvitationRows(f.course.ID, f.student.ID, domain.InvitationPending))

	require.NoError(t, f.enrollment.Remove(ctx, f.student.ID, f.course.ID, f.teacher.ID))
	assert.Equal(t, 0, f.count(t))

	third := f.invite(t)
	assert.Equal(t, domain.InvitationPending, third.Status)
	assert.NotEqual(t, first.ID, third.ID)

	_, err = f.svc.Accept(ctx, third.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, 1, f.store.MembershipRows(f.student.ID, f.course.ID))
}

func TestCreate_AnnouncesToStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg := "  Welcome aboard  "
	v, err := f.svc.Create(ctx, CreateInput{
		CourseID:     f.course.ID,
		StudentEmail: "  Student@Example.com ",
		IssuerID:     f.teacher.ID,
		Message:      &msg,
	})
	require.NoError(t, err)
	assert.Equal(t, f.student.ID, v.StudentID)
	assert.Equal(t, "student@example.com", v.StudentEmail)
	require.NotNil(t, v.Message)
	assert.Equal(t, "Welcome aboard", *v.Message)

	assert.Equal(t, []events.Room{events.UserRoom(f.student.ID)}, f.publisher.Rooms(events.TypeCourseInvitationCreated))
	ev := f.publisher.Named(events.TypeCourseInvitationCreated)[0].Event.(events.CourseInvitationCreated)
	assert.Equal(t, "Ada Teacher", ev.TeacherName)
	assert.Equal(t, f.course.Title, ev.CourseTitle)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "invitation", sent[0].Kind)
	assert.Equal(t, f.student.Email, sent[0].To)

	notes, err := f.inbox.List(ctx, f.student.ID.String(), 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Course invitation", notes[0].Title)
}

func TestCreate_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stranger := &domain.User{ID: uuid.New(), Email: "stranger@example.com"}
	f.store.PutUser(stranger)

	tests := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{
			name:  "invalid email",
			input: CreateInput{CourseID: f.course.ID, StudentEmail: "not-an-email", IssuerID: f.teacher.ID},
			want:  domain.ErrInvalidEmail,
		},
		{
			name:  "unknown course",
			input: CreateInput{CourseID: uuid.New(), StudentEmail: f.student.Email, IssuerID: f.teacher.ID},
			want:  domain.ErrCourseNotFound,
		},
		{
			name:  "issuer is not owner",
			input: CreateInput{CourseID: f.course.ID, StudentEmail: f.student.Email, IssuerID: stranger.ID},
			want:  domain.ErrNotCourseOwner,
		},
		{
			name:  "unknown learner",
			input: CreateInput{CourseID: f.course.ID, StudentEmail: "ghost@example.com", IssuerID: f.teacher.ID},
			want:  domain.ErrUserNotFound,
		},
		{
			name:  "self invitation",
			input: CreateInput{CourseID: f.course.ID, StudentEmail: f.teacher.Email, IssuerID: f.teacher.ID},
			want:  domain.ErrSelfInvitation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.publisher.All())
	assert.Empty(t, f.mailer.Sent())
}

func TestCreate_RejectsSecondPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.invite(t)

	_, err := f.svc.Create(ctx, CreateInput{CourseID: f.course.ID, StudentEmail: f.student.Email, IssuerID: f.teacher.ID})
	assert.ErrorIs(t, err, domain.ErrInvitationPending)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	assert.Equal(t, 1, f.store.InvitationRows(f.course.ID, f.student.ID, domain.InvitationPending))
}

func TestCreate_ConcurrentOnlyOnePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, CreateInput{CourseID: f.course.ID, StudentEmail: f.student.Email, IssuerID: f.teacher.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvitationPending)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.store.InvitationRows(f.course.ID, f.student.ID, domain.InvitationPending))
}

func TestCreate_SettlesStaleInvitations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	lapsed := f.invite(t)
	f.clock.Advance(8 * 24 * time.Hour)

	fresh := f.invite(t)
	assert.Equal(t, domain.InvitationPending, fresh.Status)

	old := f.stored(t, lapsed.ID)
	assert.Equal(t, domain.InvitationDeclined, old.Status)
	require.NotNil(t, old.DeclinedAt)

	_, err := f.svc.Decline(ctx, fresh.ID, f.student.ID)
	require.NoError(t, err)
	cancelled := f.invite(t)
	_, err = f.svc.Cancel(ctx, cancelled.ID, f.teacher.ID)
	require.NoError(t, err)

	f.invite(t)
	assert.Equal(t, domain.InvitationCancelled, f.stored(t, cancelled.ID).Status)
	assert.Equal(t, 2, f.store.InvitationRows(f.course.ID, f.student.ID, domain.InvitationDeclined))
}

func TestAccept_SecondCallConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	_, err := f.svc.Accept(ctx, v.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t))

	_, err = f.svc.Accept(ctx, v.ID, f.student.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, 1, f.store.MembershipRows(f.student.ID, f.course.ID))
}

func TestAccept_ConcurrentCallsOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(ctx, v.ID, f.student.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.count(t))
	assert.Len(t, f.publisher.Named(events.TypeCourseEnrollmentAdded), 2)
}

func TestAccept_AnnouncesToCourseAndTeacher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	_, err := f.svc.Accept(ctx, v.ID, f.student.ID)
	require.NoError(t, err)

	assert.ElementsMatch(t, []events.Room{
		events.CourseRoom(f.course.ID),
		events.UserRoom(f.teacher.ID),
	}, f.publisher.Rooms(events.TypeCourseEnrollmentAdded))
	ev := f.publisher.Named(events.TypeCourseEnrollmentAdded)[0].Event.(events.CourseEnrollmentAdded)
	assert.Equal(t, 1, ev.EnrollmentCount)
	assert.Equal(t, v.ID, ev.InvitationID)

	notes, err := f.inbox.List(ctx, f.teacher.ID.String(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	assert.Equal(t, "Invitation accepted", notes[0].Title)
}

func TestAccept_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	_, err := f.svc.Accept(ctx, uuid.New(), f.student.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)

	_, err = f.svc.Accept(ctx, v.ID, f.teacher.ID)
	assert.ErrorIs(t, err, domain.ErrNotInvitationRecipient)

	f.clock.Advance(7*24*time.Hour + time.Second)
	_, err = f.svc.Accept(ctx, v.ID, f.student.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationExpired)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	assert.Equal(t, 0, f.count(t))
	assert.Equal(t, 0, f.store.MembershipRows(f.student.ID, f.course.ID))
}

func TestAccept_ReactivatesRemovedMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.enrollment.Enroll(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	require.NoError(t, f.enrollment.Remove(ctx, f.student.ID, f.course.ID, f.teacher.ID))
	assert.Equal(t, 0, f.count(t))

	v := f.invite(t)
	_, err = f.svc.Accept(ctx, v.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, 1, f.store.MembershipRows(f.student.ID, f.course.ID))
}

type failingEnroller struct{}

var errEnrollDown = errors.New("membership store unavailable")

func (failingEnroller) Activate(context.Context, uuid.UUID, *domain.Course) (*domain.Membership, bool, error) {
	return nil, false, errEnrollDown
}

func TestAccept_RevertsWhenActivationFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	broken := f.newService(failingEnroller{})
	_, err := broken.Accept(ctx, v.ID, f.student.ID)
	assert.ErrorIs(t, err, errEnrollDown)

	inv := f.stored(t, v.ID)
	assert.Equal(t, domain.InvitationPending, inv.Status)
	assert.Nil(t, inv.AcceptedAt)
	assert.Empty(t, f.publisher.Named(events.TypeCourseEnrollmentAdded))

	_, err = f.svc.Accept(ctx, v.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t))
}

func TestAccept_MailerFailureDoesNotFail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mailer.Fail = true

	v := f.invite(t)
	_, err := f.svc.Accept(ctx, v.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t))
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	_, err := f.svc.Decline(ctx, v.ID, f.teacher.ID)
	assert.ErrorIs(t, err, domain.ErrNotInvitationRecipient)

	declined, err := f.svc.Decline(ctx, v.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationDeclined, declined.Status)
	require.NotNil(t, declined.DeclinedAt)

	_, err = f.svc.Decline(ctx, v.ID, f.student.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)
	_, err = f.svc.Accept(ctx, v.ID, f.student.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)

	assert.Equal(t, 0, f.count(t))
	notes, err := f.inbox.List(ctx, f.teacher.ID.String(), 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "Invitation declined", notes[0].Title)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	_, err := f.svc.Cancel(ctx, v.ID, f.student.ID)
	assert.ErrorIs(t, err, domain.ErrNotInvitationIssuer)

	cancelled, err := f.svc.Cancel(ctx, v.ID, f.teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.Accept(ctx, v.ID, f.student.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)
	_, err = f.svc.Cancel(ctx, v.ID, f.teacher.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotPending)
}

func TestListings_ComputeExpiryLazily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.invite(t)

	pending, err := f.svc.ListPendingForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, v.ID, pending[0].ID)

	f.clock.Advance(8 * 24 * time.Hour)

	pending, err = f.svc.ListPendingForStudent(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sent, err := f.svc.ListSentByTeacher(ctx, f.teacher.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, domain.InvitationExpired, sent[0].Status)
	assert.Equal(t, domain.InvitationPending, f.stored(t, v.ID).Status)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	lapsed := f.invite(t)
	_, err := f.svc.Cancel(ctx, lapsed.ID, f.teacher.ID)
	require.NoError(t, err)
	kept := f.invite(t)
	_, err = f.svc.Accept(ctx, kept.ID, f.student.ID)
	require.NoError(t, err)

	f.clock.Advance(30 * 24 * time.Hour)

	n, err := f.svc.PurgeExpired(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.Invitations().GetByID(ctx, lapsed.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	assert.Equal(t, domain.InvitationAccepted, f.stored(t, kept.ID).Status)
}
