package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-classroom/pkg/domain"
)

func TestMemberships_CreateIsUniquePerPair(t *testing.T) {
	ctx := context.Background()
	s := New()
	learner, course := uuid.New(), uuid.New()
	now := time.Now()

	created, err := s.Memberships().Create(ctx, domain.NewMembership(learner, course, now))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Memberships().Create(ctx, domain.NewMembership(learner, course, now))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, s.MembershipRows(learner, course))
}

func TestMemberships_SetActiveReportsChange(t *testing.T) {
	ctx := context.Background()
	s := New()
	learner, course := uuid.New(), uuid.New()
	start := time.Now().Add(-time.Hour)
	_, err := s.Memberships().Create(ctx, domain.NewMembership(learner, course, start))
	require.NoError(t, err)

	changed, err := s.Memberships().SetActive(ctx, learner, course, true, time.Now())
	require.NoError(t, err)
	assert.False(t, changed, "already active")

	changed, err = s.Memberships().SetActive(ctx, learner, course, false, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	later := time.Now()
	changed, err = s.Memberships().SetActive(ctx, learner, course, true, later)
	require.NoError(t, err)
	assert.True(t, changed)

	m, err := s.Memberships().Get(ctx, learner, course)
	require.NoError(t, err)
	assert.True(t, m.Active)
	assert.Equal(t, later, m.EnrolledAt)
}

func TestCourses_AdjustEnrollmentCountNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()
	s.PutCourse(&domain.Course{ID: id})

	require.NoError(t, s.Courses().AdjustEnrollmentCount(ctx, id, -1))
	c, err := s.Courses().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, c.EnrollmentCount)

	require.NoError(t, s.Courses().AdjustEnrollmentCount(ctx, id, 1))
	c, _ = s.Courses().GetByID(ctx, id)
	assert.Equal(t, 1, c.EnrollmentCount)

	err = s.Courses().AdjustEnrollmentCount(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}

func TestInvitations_OnePendingPerPair(t *testing.T) {
	ctx := context.Background()
	s := New()
	course, teacher, student := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	first := domain.NewInvitation(course, teacher, student, "s@example.com", nil, now, 0)
	require.NoError(t, s.Invitations().Create(ctx, first))

	second := domain.NewInvitation(course, teacher, student, "s@example.com", nil, now, 0)
	err := s.Invitations().Create(ctx, second)
	assert.ErrorIs(t, err, domain.ErrInvitationPending)
	assert.Equal(t, 1, s.InvitationRows(course, student, ""))
}

func TestInvitations_TransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv := domain.NewInvitation(uuid.New(), uuid.New(), uuid.New(), "s@example.com", nil, time.Now(), 0)
	require.NoError(t, s.Invitations().Create(ctx, inv))

	var wg sync.WaitGroup
	wins := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Invitations().Transition(ctx, inv.ID, domain.InvitationPending, domain.InvitationAccepted, time.Now())
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won)

	got, err := s.Invitations().GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationAccepted, got.Status)
	assert.NotNil(t, got.AcceptedAt)
}

func TestInvitations_DeclineStaleLeavesAcceptedAndCancelled(t *testing.T) {
	ctx := context.Background()
	s := New()
	course, teacher, student := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	statuses := []domain.InvitationStatus{
		domain.InvitationExpired,
		domain.InvitationDeclined,
		domain.InvitationAccepted,
		domain.InvitationCancelled,
	}
	for _, st := range statuses {
		inv := domain.NewInvitation(course, teacher, student, "s@example.com", nil, now, 0)
		inv.Status = st
		require.NoError(t, s.Invitations().Create(ctx, inv))
	}

	n, err := s.Invitations().DeclineStale(ctx, course, student, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, s.InvitationRows(course, student, domain.InvitationDeclined))
	assert.Equal(t, 1, s.InvitationRows(course, student, domain.InvitationAccepted))
	assert.Equal(t, 1, s.InvitationRows(course, student, domain.InvitationCancelled))
}

func TestInvitations_PurgeExpiredKeepsAccepted(t *testing.T) {
	ctx := context.Background()
	s := New()
	course, teacher := uuid.New(), uuid.New()
	past := time.Now().Add(-30 * 24 * time.Hour)

	stale := domain.NewInvitation(course, teacher, uuid.New(), "a@example.com", nil, past, 0)
	accepted := domain.NewInvitation(course, teacher, uuid.New(), "b@example.com", nil, past, 0)
	accepted.Status = domain.InvitationAccepted
	fresh := domain.NewInvitation(course, teacher, uuid.New(), "c@example.com", nil, time.Now(), 0)
	for _, inv := range []*domain.Invitation{stale, accepted, fresh} {
		require.NoError(t, s.Invitations().Create(ctx, inv))
	}

	n, err := s.Invitations().PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Invitations().GetByID(ctx, stale.ID)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	_, err = s.Invitations().GetByID(ctx, accepted.ID)
	assert.NoError(t, err)
}

func TestNotifications_ScopedToOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner, intruder := uuid.New(), uuid.New()
	n := &domain.Notification{ID: uuid.New(), UserID: owner, Title: "hello", CreatedAt: time.Now()}
	require.NoError(t, s.Notifications().Create(ctx, n))

	assert.ErrorIs(t, s.Notifications().MarkRead(ctx, intruder, n.ID, time.Now()), domain.ErrNotificationNotFound)
	assert.ErrorIs(t, s.Notifications().Delete(ctx, intruder, n.ID), domain.ErrNotificationNotFound)

	count, err := s.Notifications().CountUnread(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.Notifications().MarkRead(ctx, owner, n.ID, time.Now()))
	count, _ = s.Notifications().CountUnread(ctx, owner)
	assert.Equal(t, 0, count)
}

func TestUsers_GetByEmailIsCaseInsensitive(t *testing.T) {
	s := New()
	u := &domain.User{ID: uuid.New(), Email: "Learner@Example.com"}
	s.PutUser(u)

	got, err := s.Users().GetByEmail(context.Background(), "learner@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestMemberships_SetRatingRequiresActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	learner, course := uuid.New(), uuid.New()
	now := time.Now()

	_, err := s.Memberships().Create(ctx, domain.NewMembership(learner, course, now))
	require.NoError(t, err)
	require.NoError(t, s.Memberships().SetRating(ctx, learner, course, 4, nil))

	_, err = s.Memberships().SetActive(ctx, learner, course, false, now)
	require.NoError(t, err)
	err = s.Memberships().SetRating(ctx, learner, course, 1, nil)
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)

	m, err := s.Memberships().Get(ctx, learner, course)
	require.NoError(t, err)
	require.NotNil(t, m.Rating)
	assert.Equal(t, 4, *m.Rating)
}

func TestCourses_ReconcileAggregates(t *testing.T) {
	ctx := context.Background()
	s := New()
	course := &domain.Course{ID: uuid.New(), EnrollmentCount: 9, AverageRating: 1, TotalRatings: 7}
	s.PutCourse(course)
	now := time.Now()

	ratings := []int{5, 4, 4}
	for i, r := range ratings {
		learner := uuid.New()
		_, err := s.Memberships().Create(ctx, domain.NewMembership(learner, course.ID, now))
		require.NoError(t, err)
		require.NoError(t, s.Memberships().SetRating(ctx, learner, course.ID, r, nil))
		if i == 2 {
			_, err = s.Memberships().SetActive(ctx, learner, course.ID, false, now)
			require.NoError(t, err)
		}
	}

	before, after, err := s.Courses().ReconcileAggregates(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CourseAggregates{EnrollmentCount: 9, AverageRating: 1, TotalRatings: 7}, before)
	assert.Equal(t, domain.CourseAggregates{EnrollmentCount: 2, AverageRating: 4.5, TotalRatings: 2}, after)

	stored, err := s.Courses().GetByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, after, stored.Aggregates())

	_, _, err = s.Courses().ReconcileAggregates(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}
