// Package memstore is an in-memory implementation of the classroom
// repositories. It honors the same uniqueness and conditional-update rules
// as the Postgres schema and is used for local development (STORE=memory)
// and in tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

type pairKey struct {
	a, b uuid.UUID
}

// Store holds every table behind a single lock so multi-row checks are atomic.
type Store struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]*domain.User
	courses       map[uuid.UUID]*domain.Course
	memberships   map[pairKey]*domain.Membership // (learner, course)
	invitations   map[uuid.UUID]*domain.Invitation
	notifications map[uuid.UUID]*domain.Notification
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*domain.User),
		courses:       make(map[uuid.UUID]*domain.Course),
		memberships:   make(map[pairKey]*domain.Membership),
		invitations:   make(map[uuid.UUID]*domain.Invitation),
		notifications: make(map[uuid.UUID]*domain.Notification),
	}
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// PutCourse inserts or replaces a course.
func (s *Store) PutCourse(c *domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.courses[c.ID] = &cp
}

// Users returns the user directory view.
func (s *Store) Users() *Users { return &Users{s: s} }

// Courses returns the courses view.
func (s *Store) Courses() *Courses { return &Courses{s: s} }

// Memberships returns the memberships view.
func (s *Store) Memberships() *Memberships { return &Memberships{s: s} }

// Invitations returns the invitations view.
func (s *Store) Invitations() *Invitations { return &Invitations{s: s} }

// Notifications returns the notifications view.
func (s *Store) Notifications() *Notifications { return &Notifications{s: s} }

// MembershipRows counts stored membership rows for a pair, active or not.
func (s *Store) MembershipRows(learnerID, courseID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.memberships[pairKey{learnerID, courseID}]; ok {
		return 1
	}
	return 0
}

// InvitationRows counts stored invitations for a (course, student) pair,
// optionally restricted to one status.
func (s *Store) InvitationRows(courseID, studentID uuid.UUID, status domain.InvitationStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, inv := range s.invitations {
		if inv.CourseID != courseID || inv.StudentID != studentID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		n++
	}
	return n
}

// Users is the read-only user directory.
type Users struct{ s *Store }

// GetByID retrieves a user by ID.
func (r *Users) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByEmail retrieves a user by case-insensitive email.
func (r *Users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// GetSummaries retrieves the users with the given IDs keyed by ID.
func (r *Users) GetSummaries(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok && u.DeletedAt == nil {
			cp := *u
			result[id] = &cp
		}
	}
	return result, nil
}

// Courses holds courses and their aggregates.
type Courses struct{ s *Store }

// GetByID retrieves a course by ID.
func (r *Courses) GetByID(_ context.Context, id uuid.UUID) (*domain.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, domain.ErrCourseNotFound
	}
	cp := *c
	return &cp, nil
}

// ListIDs returns the IDs of every course, oldest first.
func (r *Courses) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	courses := make([]*domain.Course, 0, len(r.s.courses))
	for _, c := range r.s.courses {
		courses = append(courses, c)
	}
	sort.Slice(courses, func(i, j int) bool {
		return courses[i].CreatedAt.Before(courses[j].CreatedAt)
	})
	ids := make([]uuid.UUID, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	return ids, nil
}

// AdjustEnrollmentCount applies delta, never taking the counter below zero.
func (r *Courses) AdjustEnrollmentCount(_ context.Context, id uuid.UUID, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return domain.ErrCourseNotFound
	}
	if c.EnrollmentCount+delta < 0 {
		return nil
	}
	c.EnrollmentCount += delta
	c.UpdatedAt = time.Now()
	return nil
}

// ReconcileAggregates recomputes a course's aggregates from its memberships
// and overwrites the stored values under one lock.
func (r *Courses) ReconcileAggregates(_ context.Context, id uuid.UUID) (before, after domain.CourseAggregates, err error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return before, after, domain.ErrCourseNotFound
	}
	var rows []*domain.Membership
	for key, m := range r.s.memberships {
		if key.b == id {
			rows = append(rows, m)
		}
	}
	before = c.Aggregates()
	after = domain.ComputeAggregates(rows)
	c.EnrollmentCount = after.EnrollmentCount
	c.AverageRating = after.AverageRating
	c.TotalRatings = after.TotalRatings
	c.UpdatedAt = time.Now()
	return before, after, nil
}

// SetRatingAggregate overwrites the rating aggregate.
func (r *Courses) SetRatingAggregate(_ context.Context, id uuid.UUID, average float64, total int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return domain.ErrCourseNotFound
	}
	c.AverageRating = average
	c.TotalRatings = total
	c.UpdatedAt = time.Now()
	return nil
}

// Memberships holds learner memberships keyed by (learner, course).
type Memberships struct{ s *Store }

// Create inserts a membership, returning false if the pair already exists.
func (r *Memberships) Create(_ context.Context, m *domain.Membership) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := pairKey{m.LearnerID, m.CourseID}
	if _, exists := r.s.memberships[key]; exists {
		return false, nil
	}
	cp := *m
	r.s.memberships[key] = &cp
	return true, nil
}

// Get retrieves the membership for a pair, active or not.
func (r *Memberships) Get(_ context.Context, learnerID, courseID uuid.UUID) (*domain.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.memberships[pairKey{learnerID, courseID}]
	if !ok {
		return nil, domain.ErrMembershipNotFound
	}
	return copyMembership(m), nil
}

// SetActive flips the active flag and reports whether it changed.
func (r *Memberships) SetActive(_ context.Context, learnerID, courseID uuid.UUID, active bool, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[pairKey{learnerID, courseID}]
	if !ok || m.Active == active {
		return false, nil
	}
	m.Active = active
	if active {
		m.EnrolledAt = at
	}
	m.UpdatedAt = at
	return true, nil
}

// ListActiveByCourse retrieves all active memberships of a course.
func (r *Memberships) ListActiveByCourse(_ context.Context, courseID uuid.UUID) ([]*domain.Membership, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []*domain.Membership
	for key, m := range r.s.memberships {
		if key.b == courseID && m.Active {
			result = append(result, copyMembership(m))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EnrolledAt.Before(result[j].EnrolledAt)
	})
	return result, nil
}

// Aggregate computes the course aggregates from the current memberships.
func (r *Memberships) Aggregate(_ context.Context, courseID uuid.UUID) (domain.CourseAggregates, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var rows []*domain.Membership
	for key, m := range r.s.memberships {
		if key.b == courseID {
			rows = append(rows, m)
		}
	}
	return domain.ComputeAggregates(rows), nil
}

// SetRating stores a learner's rating and optional review on an active
// membership.
func (r *Memberships) SetRating(_ context.Context, learnerID, courseID uuid.UUID, rating int, review *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[pairKey{learnerID, courseID}]
	if !ok || !m.Active {
		return domain.ErrMembershipNotFound
	}
	v := rating
	m.Rating = &v
	if review != nil {
		rv := *review
		m.Review = &rv
	} else {
		m.Review = nil
	}
	m.UpdatedAt = time.Now()
	return nil
}

// SetProgress stores progress on an active membership.
func (r *Memberships) SetProgress(_ context.Context, learnerID, courseID uuid.UUID, pct int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[pairKey{learnerID, courseID}]
	if !ok || !m.Active {
		return domain.ErrMembershipNotFound
	}
	m.ProgressPercentage = pct
	m.UpdatedAt = time.Now()
	return nil
}

func copyMembership(m *domain.Membership) *domain.Membership {
	cp := *m
	if m.Rating != nil {
		v := *m.Rating
		cp.Rating = &v
	}
	if m.Review != nil {
		v := *m.Review
		cp.Review = &v
	}
	return &cp
}
