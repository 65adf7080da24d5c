package courses

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/internal/http/middleware"
	"github.com/tendant/simple-classroom/internal/httputil"
	"github.com/tendant/simple-classroom/pkg/enrollment"
)

// Handler handles course enrollment endpoints.
type Handler struct {
	logger     *slog.Logger
	enrollment *enrollment.Service
}

// NewHandler creates a new enrollment handler.
func NewHandler(logger *slog.Logger, svc *enrollment.Service) *Handler {
	return &Handler{logger: logger, enrollment: svc}
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// RateRequest represents a course rating.
type RateRequest struct {
	Rating int     `json:"rating" validate:"required,min=1,max=5"`
	Review *string `json:"review,omitempty" validate:"omitempty,max=2000"`
}

// RatingResponse is the course rating aggregate after a rating was stored.
type RatingResponse struct {
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int     `json:"totalRatings"`
}

// ProgressRequest represents a progress update.
type ProgressRequest struct {
	Progress *int `json:"progress" validate:"required,min=0,max=100"`
}

// Enroll self-enrolls the caller in a course.
// POST /v1/courses/{id}/enroll
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, courseID, ok := h.identify(w, r)
	if !ok {
		return
	}

	result, err := h.enrollment.Enroll(r.Context(), userID, courseID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	if !result.Activated {
		httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Already enrolled in this course"})
		return
	}
	httputil.JSON(w, http.StatusCreated, MessageResponse{Message: "Successfully enrolled in course"})
}

// GetEnrollment returns the caller's enrollment status.
// GET /v1/courses/{id}/enrollment
func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	userID, courseID, ok := h.identify(w, r)
	if !ok {
		return
	}

	status, err := h.enrollment.GetEnrollment(r.Context(), userID, courseID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, status)
}

// Rate stores the caller's rating and review.
// POST /v1/courses/{id}/rating
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, courseID, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req RateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	agg, err := h.enrollment.Rate(r.Context(), userID, courseID, req.Rating, req.Review)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, RatingResponse{AverageRating: agg.AverageRating, TotalRatings: agg.TotalRatings})
}

// UpdateProgress records the caller's progress.
// PUT /v1/courses/{id}/progress
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID, courseID, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req ProgressRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if err := h.enrollment.UpdateProgress(r.Context(), userID, courseID, *req.Progress); err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Progress updated"})
}

// ListEnrollments lists a course's active learners. Owner only.
// GET /v1/courses/{id}/enrollments
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, courseID, ok := h.identify(w, r)
	if !ok {
		return
	}

	list, err := h.enrollment.ListEnrollments(r.Context(), courseID, userID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"enrollments": list})
}

// Remove deactivates a learner's membership. Owner only.
// DELETE /v1/courses/{id}/enrollments/{learnerId}
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, courseID, ok := h.identify(w, r)
	if !ok {
		return
	}
	learnerID, err := httputil.PathUUID(r, "learnerId")
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}

	if err := h.enrollment.Remove(r.Context(), learnerID, courseID, userID); err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Learner removed from course"})
}

func (h *Handler) identify(w http.ResponseWriter, r *http.Request) (userID, courseID uuid.UUID, ok bool) {
	userID, ok = middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return userID, courseID, false
	}
	return userID, courseID, true
}
