package enrollment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/events"
	"github.com/tendant/simple-classroom/pkg/inbox"
)

// Side effects below run after the state change has been stored. They log
// failures and never return them.

func (s *Service) lookupLearner(ctx context.Context, learnerID uuid.UUID) *domain.User {
	learner, err := s.users.GetByID(ctx, learnerID)
	if err != nil {
		s.logger.Warn("failed to load learner for announcement", "error", err, "user_id", learnerID)
		return nil
	}
	return learner
}

func (s *Service) announceEnrollment(ctx context.Context, course *domain.Course, learnerID uuid.UUID) {
	learner := s.lookupLearner(ctx, learnerID)
	name := learnerID.String()
	if learner != nil {
		name = learner.DisplayName()
	}

	ev := events.EnrollmentAdded{
		CourseID:        course.ID,
		CourseTitle:     course.Title,
		LearnerID:       learnerID,
		LearnerName:     name,
		EnrollmentCount: s.currentCount(ctx, course, 1),
	}
	s.publisher.Publish(ctx, events.CourseRoom(course.ID), ev)
	s.publisher.Publish(ctx, events.UserRoom(learnerID), ev)
	s.publisher.Publish(ctx, events.UserRoom(course.OwnerID), ev)

	meta := map[string]string{"courseId": course.ID.String(), "link": "/courses/" + course.ID.String()}
	s.record(ctx, learnerID, "Enrollment confirmed",
		fmt.Sprintf("You are now enrolled in %s.", course.Title), meta)
	s.record(ctx, course.OwnerID, "New enrollment",
		fmt.Sprintf("%s enrolled in %s.", name, course.Title), meta)

	if learner != nil && s.mailer != nil {
		if err := s.mailer.SendEnrollmentEmail(ctx, learner.Email, course.Title, course.ID.String()); err != nil {
			s.logger.Warn("failed to send enrollment email", "error", err, "user_id", learnerID)
		}
	}
}

func (s *Service) announceRemoval(ctx context.Context, course *domain.Course, learnerID uuid.UUID) {
	learner := s.lookupLearner(ctx, learnerID)
	name := learnerID.String()
	if learner != nil {
		name = learner.DisplayName()
	}

	ev := events.EnrollmentRemoved{
		CourseID:        course.ID,
		CourseTitle:     course.Title,
		LearnerID:       learnerID,
		EnrollmentCount: s.currentCount(ctx, course, -1),
	}
	s.publisher.Publish(ctx, events.CourseRoom(course.ID), ev)
	s.publisher.Publish(ctx, events.UserRoom(learnerID), ev)
	s.publisher.Publish(ctx, events.UserRoom(course.OwnerID), ev)

	meta := map[string]string{"courseId": course.ID.String()}
	s.record(ctx, learnerID, "Enrollment ended",
		fmt.Sprintf("You have been removed from %s.", course.Title), meta)
	s.record(ctx, course.OwnerID, "Learner removed",
		fmt.Sprintf("%s was removed from %s.", name, course.Title), meta)

	if learner != nil && s.mailer != nil {
		if err := s.mailer.SendRemovalEmail(ctx, learner.Email, course.Title); err != nil {
			s.logger.Warn("failed to send removal email", "error", err, "user_id", learnerID)
		}
	}
}

func (s *Service) record(ctx context.Context, userID uuid.UUID, title, body string, meta map[string]string) {
	if s.inbox == nil {
		return
	}
	_, err := s.inbox.Create(ctx, inbox.CreateInput{
		UserID: userID.String(),
		Title:  title,
		Body:   body,
		Meta:   meta,
	})
	if err != nil {
		s.logger.Warn("failed to record notification", "error", err, "user_id", userID)
	}
}
