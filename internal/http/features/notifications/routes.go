package notifications

import "github.com/go-chi/chi/v5"

// RegisterRoutes registers inbox routes. r must already carry the auth
// middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/notifications", h.List)
	r.Get("/v1/notifications/unread-count", h.UnreadCount)
	r.Post("/v1/notifications/mark-read/{id}", h.MarkRead)
	r.Post("/v1/notifications/mark-all-read", h.MarkAllRead)
	r.Delete("/v1/notifications/{id}", h.Delete)
}
