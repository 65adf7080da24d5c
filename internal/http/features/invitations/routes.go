package invitations

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers invitation routes. r must already carry the auth
// middleware; createLimit throttles invitation creation.
func (h *Handler) RegisterRoutes(r chi.Router, createLimit func(http.Handler) http.Handler) {
	r.With(createLimit).Post("/v1/invitations", h.Create)
	r.Get("/v1/invitations/mine", h.ListMine)
	r.Get("/v1/invitations/sent", h.ListSent)
	r.Put("/v1/invitations/{id}/accept", h.Accept)
	r.Put("/v1/invitations/{id}/decline", h.Decline)
	r.Delete("/v1/invitations/{id}", h.Cancel)
}
