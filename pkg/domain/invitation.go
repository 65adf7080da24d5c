package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus represents the lifecycle state of a course invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationExpired   InvitationStatus = "expired"
	InvitationCancelled InvitationStatus = "cancelled"
)

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// IsTerminal returns true for states with no further transitions.
func (s InvitationStatus) IsTerminal() bool {
	return s != InvitationPending
}

// Valid returns true if s is a known status.
func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationDeclined, InvitationExpired, InvitationCancelled:
		return true
	}
	return false
}

// Invitation is a course owner's proposal to a learner to join a course.
type Invitation struct {
	ID           uuid.UUID
	CourseID     uuid.UUID
	TeacherID    uuid.UUID
	StudentID    uuid.UUID
	StudentEmail string
	Status       InvitationStatus
	Message      *string
	ExpiresAt    time.Time
	AcceptedAt   *time.Time
	DeclinedAt   *time.Time
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewInvitation returns a pending invitation expiring ttl after now.
func NewInvitation(courseID, teacherID, studentID uuid.UUID, studentEmail string, message *string, now time.Time, ttl time.Duration) *Invitation {
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &Invitation{
		ID:           uuid.New(),
		CourseID:     courseID,
		TeacherID:    teacherID,
		StudentID:    studentID,
		StudentEmail: studentEmail,
		Status:       InvitationPending,
		Message:      message,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsExpired returns true once now is past ExpiresAt.
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// EffectiveStatus reports a pending invitation past its expiry as expired,
// whether or not the stored status was ever flipped.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && i.IsExpired(now) {
		return InvitationExpired
	}
	return i.Status
}

// IsOpen returns true if the invitation can still be accepted or declined.
func (i *Invitation) IsOpen(now time.Time) bool {
	return i.EffectiveStatus(now) == InvitationPending
}
