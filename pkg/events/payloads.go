package events

import (
	"time"

	"github.com/google/uuid"
)

// Event tags.
const (
	TypeEnrollmentAdded         = "enrollmentAdded"
	TypeEnrollmentRemoved       = "enrollmentRemoved"
	TypeCourseInvitationCreated = "courseInvitationCreated"
	TypeCourseEnrollmentAdded   = "courseEnrollmentAdded"
	TypeClassroomStudentAdded   = "classroomStudentAdded"
	TypeClassroomStudentRemoved = "classroomStudentRemoved"
	TypeSubmissionCreated       = "submissionCreated"
	TypeSubmissionGraded        = "submissionGraded"
	TypeClassMessage            = "classMessage"
	TypeClassMessageUpdated     = "classMessageUpdated"
	TypeClassMessageDeleted     = "classMessageDeleted"
	TypeLessonMessageUpdated    = "lessonMessageUpdated"
	TypeLessonMessageDeleted    = "lessonMessageDeleted"
	TypeAnalyticsUpdate         = "analyticsUpdate"
	TypeDashboardStatsUpdate    = "dashboardStatsUpdate"
	TypeAdminNotification       = "adminNotification"
)

var registry = map[string]func() Event{
	TypeEnrollmentAdded:         func() Event { return &EnrollmentAdded{} },
	TypeEnrollmentRemoved:       func() Event { return &EnrollmentRemoved{} },
	TypeCourseInvitationCreated: func() Event { return &CourseInvitationCreated{} },
	TypeCourseEnrollmentAdded:   func() Event { return &CourseEnrollmentAdded{} },
	TypeClassroomStudentAdded:   func() Event { return &ClassroomStudentAdded{} },
	TypeClassroomStudentRemoved: func() Event { return &ClassroomStudentRemoved{} },
	TypeSubmissionCreated:       func() Event { return &SubmissionCreated{} },
	TypeSubmissionGraded:        func() Event { return &SubmissionGraded{} },
	TypeClassMessage:            func() Event { return &ClassMessage{} },
	TypeClassMessageUpdated:     func() Event { return &ClassMessageUpdated{} },
	TypeClassMessageDeleted:     func() Event { return &ClassMessageDeleted{} },
	TypeLessonMessageUpdated:    func() Event { return &LessonMessageUpdated{} },
	TypeLessonMessageDeleted:    func() Event { return &LessonMessageDeleted{} },
	TypeAnalyticsUpdate:         func() Event { return &AnalyticsUpdate{} },
	TypeDashboardStatsUpdate:    func() Event { return &DashboardStatsUpdate{} },
	TypeAdminNotification:       func() Event { return &AdminNotification{} },
}

// Enrollment events

type EnrollmentAdded struct {
	CourseID        uuid.UUID `json:"courseId"`
	CourseTitle     string    `json:"courseTitle"`
	LearnerID       uuid.UUID `json:"learnerId"`
	LearnerName     string    `json:"learnerName"`
	EnrollmentCount int       `json:"enrollmentCount"`
}

func (EnrollmentAdded) EventName() string { return TypeEnrollmentAdded }

type EnrollmentRemoved struct {
	CourseID        uuid.UUID `json:"courseId"`
	CourseTitle     string    `json:"courseTitle"`
	LearnerID       uuid.UUID `json:"learnerId"`
	EnrollmentCount int       `json:"enrollmentCount"`
}

func (EnrollmentRemoved) EventName() string { return TypeEnrollmentRemoved }

type CourseInvitationCreated struct {
	InvitationID uuid.UUID `json:"invitationId"`
	CourseID     uuid.UUID `json:"courseId"`
	CourseTitle  string    `json:"courseTitle"`
	TeacherID    uuid.UUID `json:"teacherId"`
	TeacherName  string    `json:"teacherName"`
	Message      *string   `json:"message,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (CourseInvitationCreated) EventName() string { return TypeCourseInvitationCreated }

type CourseEnrollmentAdded struct {
	CourseID        uuid.UUID `json:"courseId"`
	LearnerID       uuid.UUID `json:"learnerId"`
	InvitationID    uuid.UUID `json:"invitationId"`
	EnrollmentCount int       `json:"enrollmentCount"`
}

func (CourseEnrollmentAdded) EventName() string { return TypeCourseEnrollmentAdded }

// Classroom events

type ClassroomStudentAdded struct {
	ClassroomID uuid.UUID `json:"classroomId"`
	StudentID   uuid.UUID `json:"studentId"`
}

func (ClassroomStudentAdded) EventName() string { return TypeClassroomStudentAdded }

type ClassroomStudentRemoved struct {
	ClassroomID uuid.UUID `json:"classroomId"`
	StudentID   uuid.UUID `json:"studentId"`
}

func (ClassroomStudentRemoved) EventName() string { return TypeClassroomStudentRemoved }

type SubmissionCreated struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	AssignmentID uuid.UUID `json:"assignmentId"`
	ClassroomID  uuid.UUID `json:"classroomId"`
	StudentID    uuid.UUID `json:"studentId"`
}

func (SubmissionCreated) EventName() string { return TypeSubmissionCreated }

type SubmissionGraded struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	AssignmentID uuid.UUID `json:"assignmentId"`
	StudentID    uuid.UUID `json:"studentId"`
	Grade        float64   `json:"grade"`
	Feedback     *string   `json:"feedback,omitempty"`
}

func (SubmissionGraded) EventName() string { return TypeSubmissionGraded }

// Message events

type ClassMessage struct {
	MessageID   uuid.UUID `json:"messageId"`
	ClassroomID uuid.UUID `json:"classroomId"`
	AuthorID    uuid.UUID `json:"authorId"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (ClassMessage) EventName() string { return TypeClassMessage }

type ClassMessageUpdated struct {
	MessageID   uuid.UUID `json:"messageId"`
	ClassroomID uuid.UUID `json:"classroomId"`
	Body        string    `json:"body"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (ClassMessageUpdated) EventName() string { return TypeClassMessageUpdated }

type ClassMessageDeleted struct {
	MessageID   uuid.UUID `json:"messageId"`
	ClassroomID uuid.UUID `json:"classroomId"`
}

func (ClassMessageDeleted) EventName() string { return TypeClassMessageDeleted }

type LessonMessageUpdated struct {
	MessageID uuid.UUID `json:"messageId"`
	LessonID  uuid.UUID `json:"lessonId"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (LessonMessageUpdated) EventName() string { return TypeLessonMessageUpdated }

type LessonMessageDeleted struct {
	MessageID uuid.UUID `json:"messageId"`
	LessonID  uuid.UUID `json:"lessonId"`
}

func (LessonMessageDeleted) EventName() string { return TypeLessonMessageDeleted }

// Admin channel events

type AnalyticsUpdate struct {
	Metric string            `json:"metric"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

func (AnalyticsUpdate) EventName() string { return TypeAnalyticsUpdate }

type DashboardStatsUpdate struct {
	CoursesChecked int `json:"coursesChecked"`
	CoursesFixed   int `json:"coursesFixed"`
}

func (DashboardStatsUpdate) EventName() string { return TypeDashboardStatsUpdate }

type AdminNotification struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (AdminNotification) EventName() string { return TypeAdminNotification }
