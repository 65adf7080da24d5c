package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinRating   = 1
	MaxRating   = 5
	MaxProgress = 100
)

// Membership represents a learner's enrollment in a course. Removal toggles
// Active off; the row is kept so a later enrollment reactivates it.
type Membership struct {
	ID                 uuid.UUID
	LearnerID          uuid.UUID
	CourseID           uuid.UUID
	Active             bool
	EnrolledAt         time.Time
	ProgressPercentage int
	Rating             *int
	Review             *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsActive returns true if the membership is active.
func (m *Membership) IsActive() bool {
	return m != nil && m.Active
}

// NewMembership returns an active membership enrolled at now.
func NewMembership(learnerID, courseID uuid.UUID, now time.Time) *Membership {
	return &Membership{
		ID:         uuid.New(),
		LearnerID:  learnerID,
		CourseID:   courseID,
		Active:     true,
		EnrolledAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ValidateRating checks a rating is within 1..5.
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// ValidateProgress checks a progress percentage is within 0..100.
func ValidateProgress(pct int) error {
	if pct < 0 || pct > MaxProgress {
		return ErrInvalidProgress
	}
	return nil
}
