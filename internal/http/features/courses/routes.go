package courses

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers course enrollment routes. r must already carry
// the auth middleware; enrollLimit throttles the mutating endpoints.
func (h *Handler) RegisterRoutes(r chi.Router, enrollLimit func(http.Handler) http.Handler) {
	r.Get("/v1/courses/{id}/enrollment", h.GetEnrollment)
	r.Get("/v1/courses/{id}/enrollments", h.ListEnrollments)

	r.Group(func(r chi.Router) {
		r.Use(enrollLimit)
		r.Post("/v1/courses/{id}/enroll", h.Enroll)
		r.Post("/v1/courses/{id}/rating", h.Rate)
		r.Put("/v1/courses/{id}/progress", h.UpdateProgress)
		r.Delete("/v1/courses/{id}/enrollments/{learnerId}", h.Remove)
	})
}
