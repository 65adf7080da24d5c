package notification

import (
	"context"
	"fmt"
	"html"
	"time"
)

type EmailConfig struct {
	From     string
	FromName string
	// BaseURL is the public web app address used to build links.
	BaseURL string
}

type EmailService struct {
	config    EmailConfig
	transport Transport
}

func NewEmailService(config EmailConfig, transport Transport) *EmailService {
	return &EmailService{config: config, transport: transport}
}

// CourseURL returns the web link for a course.
func (s *EmailService) CourseURL(courseID string) string {
	return fmt.Sprintf("%s/courses/%s", s.config.BaseURL, courseID)
}

// InvitationsURL returns the web link for the learner's invitation list.
func (s *EmailService) InvitationsURL() string {
	return s.config.BaseURL + "/invitations"
}

func (s *EmailService) SendInvitationEmail(ctx context.Context, to, courseTitle, teacherName string, expiresAt time.Time) error {
	subject := fmt.Sprintf("You're invited to join %s", courseTitle)
	link := s.InvitationsURL()
	body := fmt.Sprintf(`<html><body>
		<h2>Course Invitation</h2>
		<p>%s has invited you to join <strong>%s</strong>.</p>
		<p><a href="%s">Click here to view your invitations</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This invitation expires on %s.</p>
	</body></html>`,
		html.EscapeString(teacherName), html.EscapeString(courseTitle), link, link,
		expiresAt.UTC().Format("January 2, 2006"))
	return s.sendEmail(ctx, to, subject, body)
}

func (s *EmailService) SendEnrollmentEmail(ctx context.Context, to, courseTitle, courseID string) error {
	subject := fmt.Sprintf("You're enrolled in %s", courseTitle)
	link := s.CourseURL(courseID)
	body := fmt.Sprintf(`<html><body>
		<h2>Welcome to %s</h2>
		<p>You are now enrolled. Pick up where you left off at any time.</p>
		<p><a href="%s">Go to the course</a></p>
	</body></html>`, html.EscapeString(courseTitle), link)
	return s.sendEmail(ctx, to, subject, body)
}

func (s *EmailService) SendRemovalEmail(ctx context.Context, to, courseTitle string) error {
	subject := fmt.Sprintf("Your enrollment in %s has ended", courseTitle)
	body := fmt.Sprintf(`<html><body>
		<h2>Enrollment Ended</h2>
		<p>The course owner has removed you from <strong>%s</strong>.</p>
		<p>Your progress and rating are kept if you are invited back.</p>
	</body></html>`, html.EscapeString(courseTitle))
	return s.sendEmail(ctx, to, subject, body)
}

func (s *EmailService) sendEmail(ctx context.Context, to, subject, body string) error {
	from := Sender{Address: s.config.From, Name: s.config.FromName}
	return s.transport.Send(ctx, from, Message{To: to, Subject: subject, HTML: body})
}
