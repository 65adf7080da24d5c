package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-classroom/internal/http/middleware"
	"github.com/tendant/simple-classroom/internal/httputil"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/enrollment"
	"github.com/tendant/simple-classroom/pkg/invitation"
)

// Handler handles maintenance endpoints reserved for administrators.
type Handler struct {
	logger      *slog.Logger
	enrollment  *enrollment.Service
	invitations *invitation.Service
	retention   time.Duration
}

// NewHandler creates a new admin handler. retention is how long expired
// invitations are kept before a purge deletes them.
func NewHandler(logger *slog.Logger, enrollmentSvc *enrollment.Service, invitationSvc *invitation.Service, retention time.Duration) *Handler {
	return &Handler{
		logger:      logger,
		enrollment:  enrollmentSvc,
		invitations: invitationSvc,
		retention:   retention,
	}
}

// PurgeResponse reports how many invitations a purge deleted.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

// FixEnrollmentCounts reconciles every course's counters.
// POST /v1/admin/fix-enrollment-counts
func (h *Handler) FixEnrollmentCounts(w http.ResponseWriter, r *http.Request) {
	report, err := h.enrollment.ReconcileAll(r.Context())
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// PurgeExpiredInvitations deletes expired invitations past retention.
// POST /v1/admin/invitations/purge-expired
func (h *Handler) PurgeExpiredInvitations(w http.ResponseWriter, r *http.Request) {
	n, err := h.invitations.PurgeExpired(r.Context(), h.retention)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}

// RegisterRoutes registers admin routes behind the admin role check. r must
// already carry the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(domain.RoleAdmin))
		r.Use(limit)
		r.Post("/v1/admin/fix-enrollment-counts", h.FixEnrollmentCounts)
		r.Post("/v1/admin/invitations/purge-expired", h.PurgeExpiredInvitations)
	})
}
