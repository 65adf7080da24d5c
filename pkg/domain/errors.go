package domain

import "errors"

// Kind classifies a domain error so transports can map it to a stable status.
type Kind string

const (
	KindInternal   Kind = "internal"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindBadRequest Kind = "bad_request"
)

// Error is a business-rule violation with a fixed Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// KindOf returns the Kind of the first domain error in err's chain,
// or KindInternal when err carries none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// Lookup errors
var (
	ErrCourseNotFound       = newError(KindNotFound, "course not found")
	ErrUserNotFound         = newError(KindNotFound, "user not found")
	ErrMembershipNotFound   = newError(KindNotFound, "enrollment not found")
	ErrInvitationNotFound   = newError(KindNotFound, "invitation not found")
	ErrNotificationNotFound = newError(KindNotFound, "notification not found")
)

// Authorization errors
var (
	ErrNotCourseOwner         = newError(KindForbidden, "only the course owner can perform this action")
	ErrNotInvitationRecipient = newError(KindForbidden, "invitation was issued to another user")
	ErrNotInvitationIssuer    = newError(KindForbidden, "only the issuing teacher can cancel this invitation")
	ErrCourseNotOpen          = newError(KindForbidden, "course is not open for enrollment")
	ErrOwnerEnrollment        = newError(KindForbidden, "course owner cannot enroll in their own course")
	ErrNotEnrolled            = newError(KindForbidden, "you are not enrolled in this course")
	ErrAdminRequired          = newError(KindForbidden, "admin role required")
)

// State conflicts
var (
	ErrAlreadyEnrolled      = newError(KindConflict, "already enrolled")
	ErrInvitationPending    = newError(KindConflict, "a pending invitation already exists for this learner")
	ErrInvitationNotPending = newError(KindConflict, "invitation is no longer pending")
	ErrInvitationExpired    = newError(KindConflict, "invitation expired")
	ErrMembershipExists     = newError(KindConflict, "enrollment already exists")
	ErrMalformedID          = newError(KindConflict, "malformed identifier")
)

// Validation errors
var (
	ErrInvalidRating   = newError(KindBadRequest, "rating must be between 1 and 5")
	ErrInvalidProgress = newError(KindBadRequest, "progress must be between 0 and 100")
	ErrInvalidEmail    = newError(KindBadRequest, "invalid email address")
	ErrSelfInvitation  = newError(KindBadRequest, "cannot invite yourself")
	ErrTitleRequired   = newError(KindBadRequest, "notification title is required")
)
