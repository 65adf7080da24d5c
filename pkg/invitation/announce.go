package invitation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/events"
	"github.com/tendant/simple-classroom/pkg/inbox"
)

// Side effects below run after the transition has been stored. They log
// failures and never return them.

func (s *Service) displayName(ctx context.Context, id uuid.UUID) string {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("failed to load user for announcement", "error", err, "user_id", id)
		return id.String()
	}
	return u.DisplayName()
}

func (s *Service) announceInvitation(ctx context.Context, inv *domain.Invitation, course *domain.Course) {
	teacherName := s.displayName(ctx, inv.TeacherID)

	s.publisher.Publish(ctx, events.UserRoom(inv.StudentID), events.CourseInvitationCreated{
		InvitationID: inv.ID,
		CourseID:     course.ID,
		CourseTitle:  course.Title,
		TeacherID:    inv.TeacherID,
		TeacherName:  teacherName,
		Message:      inv.Message,
		ExpiresAt:    inv.ExpiresAt,
	})

	s.record(ctx, inv.StudentID, "Course invitation",
		fmt.Sprintf("%s invited you to join %s.", teacherName, course.Title),
		map[string]string{"invitationId": inv.ID.String(), "courseId": course.ID.String(), "link": "/invitations"})

	if s.mailer != nil {
		if err := s.mailer.SendInvitationEmail(ctx, inv.StudentEmail, course.Title, teacherName, inv.ExpiresAt); err != nil {
			s.logger.Warn("failed to send invitation email", "error", err, "invitation_id", inv.ID)
		}
	}
}

func (s *Service) announceAcceptance(ctx context.Context, inv *domain.Invitation, course *domain.Course) {
	count := course.EnrollmentCount
	if fresh, err := s.courses.GetByID(ctx, course.ID); err == nil {
		count = fresh.EnrollmentCount
	}

	ev := events.CourseEnrollmentAdded{
		CourseID:        course.ID,
		LearnerID:       inv.StudentID,
		InvitationID:    inv.ID,
		EnrollmentCount: count,
	}
	s.publisher.Publish(ctx, events.CourseRoom(course.ID), ev)
	s.publisher.Publish(ctx, events.UserRoom(inv.TeacherID), ev)

	s.record(ctx, inv.TeacherID, "Invitation accepted",
		fmt.Sprintf("%s accepted your invitation to %s.", s.displayName(ctx, inv.StudentID), course.Title),
		map[string]string{"invitationId": inv.ID.String(), "courseId": course.ID.String()})
}

func (s *Service) announceDecline(ctx context.Context, inv *domain.Invitation) {
	s.record(ctx, inv.TeacherID, "Invitation declined",
		fmt.Sprintf("%s declined your course invitation.", s.displayName(ctx, inv.StudentID)),
		map[string]string{"invitationId": inv.ID.String(), "courseId": inv.CourseID.String()})
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
