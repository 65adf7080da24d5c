package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Visibility controls whether learners can self-enroll.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Course is owned by the authoring service; this service only maintains
// its denormalized enrollment and rating aggregates.
type Course struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	Title           string
	Published       bool
	Visibility      Visibility
	EnrollmentCount int
	AverageRating   float64
	TotalRatings    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOwnedBy returns true if userID owns the course.
func (c *Course) IsOwnedBy(userID uuid.UUID) bool {
	return c.OwnerID == userID
}

// OpenForEnrollment returns true if learners may enroll without an invitation.
func (c *Course) OpenForEnrollment() bool {
	return c.Published && c.Visibility == VisibilityPublic
}

// Aggregates returns the course's stored aggregate values.
func (c *Course) Aggregates() CourseAggregates {
	return CourseAggregates{
		EnrollmentCount: c.EnrollmentCount,
		AverageRating:   c.AverageRating,
		TotalRatings:    c.TotalRatings,
	}
}

// CourseAggregates are the values derived from a course's memberships.
type CourseAggregates struct {
	EnrollmentCount int     `json:"enrollmentCount"`
	AverageRating   float64 `json:"averageRating"`
	TotalRatings    int     `json:"totalRatings"`
}

// ComputeAggregates derives course aggregates from its memberships.
// Only active memberships count; ratings are averaged over active
// memberships that carry one.
func ComputeAggregates(memberships []*Membership) CourseAggregates {
	var agg CourseAggregates
	sum := 0
	for _, m := range memberships {
		if !m.Active {
			continue
		}
		agg.EnrollmentCount++
		if m.Rating != nil {
			agg.TotalRatings++
			sum += *m.Rating
		}
	}
	if agg.TotalRatings > 0 {
		agg.AverageRating = RoundRating(float64(sum) / float64(agg.TotalRatings))
	}
	return agg
}

// RoundRating rounds an average rating to two decimal places.
func RoundRating(v float64) float64 {
	return math.Round(v*100) / 100
}
