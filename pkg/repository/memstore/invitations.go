package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
)

// Invitations holds course invitations. At most one pending invitation may
// exist per (course, student).
type Invitations struct{ s *Store }

func copyInvitation(inv *domain.Invitation) *domain.Invitation {
	cp := *inv
	return &cp
}

func (r *Invitations) pendingFor(courseID, studentID uuid.UUID) *domain.Invitation {
	for _, inv := range r.s.invitations {
		if inv.CourseID == courseID && inv.StudentID == studentID && inv.Status == domain.InvitationPending {
			return inv
		}
	}
	return nil
}

// Create inserts a pending invitation.
func (r *Invitations) Create(_ context.Context, inv *domain.Invitation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if inv.Status == domain.InvitationPending && r.pendingFor(inv.CourseID, inv.StudentID) != nil {
		return domain.ErrInvitationPending
	}
	r.s.invitations[inv.ID] = copyInvitation(inv)
	return nil
}

// GetByID retrieves an invitation by ID.
func (r *Invitations) GetByID(_ context.Context, id uuid.UUID) (*domain.Invitation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inv, ok := r.s.invitations[id]
	if !ok {
		return nil, domain.ErrInvitationNotFound
	}
	return copyInvitation(inv), nil
}

// FindPending retrieves the pending invitation for a pair.
func (r *Invitations) FindPending(_ context.Context, courseID, studentID uuid.UUID) (*domain.Invitation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	inv := r.pendingFor(courseID, studentID)
	if inv == nil {
		return nil, domain.ErrInvitationNotFound
	}
	return copyInvitation(inv), nil
}

// ExpireStale flips lapsed pending invitations of a pair to expired.
func (r *Invitations) ExpireStale(_ context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, inv := range r.s.invitations {
		if inv.CourseID == courseID && inv.StudentID == studentID &&
			inv.Status == domain.InvitationPending && inv.ExpiresAt.Before(now) {
			inv.Status = domain.InvitationExpired
			inv.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// DeclineStale flips expired and declined invitations of a pair to declined.
func (r *Invitations) DeclineStale(_ context.Context, courseID, studentID uuid.UUID, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, inv := range r.s.invitations {
		if inv.CourseID != courseID || inv.StudentID != studentID {
			continue
		}
		if inv.Status != domain.InvitationExpired && inv.Status != domain.InvitationDeclined {
			continue
		}
		inv.Status = domain.InvitationDeclined
		if inv.DeclinedAt == nil {
			at := now
			inv.DeclinedAt = &at
		}
		inv.UpdatedAt = now
		n++
	}
	return n, nil
}

// Transition moves an invitation from one status to another only if it is
// still in the expected status.
func (r *Invitations) Transition(_ context.Context, id uuid.UUID, from, to domain.InvitationStatus, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invitations[id]
	if !ok || inv.Status != from {
		return false, nil
	}
	if to == domain.InvitationPending && r.pendingFor(inv.CourseID, inv.StudentID) != nil {
		return false, domain.ErrInvitationPending
	}
	ts := at
	switch to {
	case domain.InvitationAccepted:
		inv.AcceptedAt = &ts
	case domain.InvitationDeclined:
		inv.DeclinedAt = &ts
	case domain.InvitationCancelled:
		inv.CancelledAt = &ts
	case domain.InvitationPending:
		inv.AcceptedAt, inv.DeclinedAt, inv.CancelledAt = nil, nil, nil
	}
	inv.Status = to
	inv.UpdatedAt = at
	return true, nil
}

func (r *Invitations) collect(match func(*domain.Invitation) bool) []*domain.Invitation {
	var result []*domain.Invitation
	for _, inv := range r.s.invitations {
		if match(inv) {
			result = append(result, copyInvitation(inv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// ListPendingByStudent lists a student's unexpired pending invitations, newest first.
func (r *Invitations) ListPendingByStudent(_ context.Context, studentID uuid.UUID, now time.Time) ([]*domain.Invitation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.collect(func(inv *domain.Invitation) bool {
		return inv.StudentID == studentID && inv.Status == domain.InvitationPending && !inv.ExpiresAt.Before(now)
	}), nil
}

// ListByTeacher lists every invitation a teacher has issued, newest first.
func (r *Invitations) ListByTeacher(_ context.Context, teacherID uuid.UUID) ([]*domain.Invitation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.collect(func(inv *domain.Invitation) bool {
		return inv.TeacherID == teacherID
	}), nil
}

// PurgeExpired deletes unaccepted invitations that expired before the cutoff.
func (r *Invitations) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, inv := range r.s.invitations {
		if inv.ExpiresAt.Before(before) && inv.Status != domain.InvitationAccepted {
			delete(r.s.invitations, id)
			n++
		}
	}
	return n, nil
}
