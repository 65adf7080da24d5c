package invitations

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/tendant/simple-classroom/internal/http/middleware"
	"github.com/tendant/simple-classroom/internal/httputil"
	"github.com/tendant/simple-classroom/pkg/invitation"
)

// Handler handles course invitation endpoints.
type Handler struct {
	logger      *slog.Logger
	invitations *invitation.Service
}

// NewHandler creates a new invitations handler.
func NewHandler(logger *slog.Logger, svc *invitation.Service) *Handler {
	return &Handler{logger: logger, invitations: svc}
}

// CreateRequest represents a new invitation.
type CreateRequest struct {
	CourseID     string  `json:"courseId" validate:"required,uuid"`
	StudentEmail string  `json:"studentEmail" validate:"required,email,max=254"`
	Message      *string `json:"message,omitempty" validate:"omitempty,max=1000"`
}

// ListResponse wraps a list of invitations.
type ListResponse struct {
	Invitations []invitation.View `json:"invitations"`
}

// Create invites a learner to one of the caller's courses.
// POST /v1/invitations
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	view, err := h.invitations.Create(r.Context(), invitation.CreateInput{
		CourseID:     uuid.MustParse(req.CourseID),
		StudentEmail: req.StudentEmail,
		IssuerID:     userID,
		Message:      req.Message,
	})
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, view)
}

// ListMine lists the caller's pending invitations.
// GET /v1/invitations/mine
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	views, err := h.invitations.ListPendingForStudent(r.Context(), userID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ListResponse{Invitations: views})
}

// ListSent lists every invitation the caller issued.
// GET /v1/invitations/sent
func (h *Handler) ListSent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	views, err := h.invitations.ListSentByTeacher(r.Context(), userID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, ListResponse{Invitations: views})
}

// Accept accepts an invitation addressed to the caller.
// PUT /v1/invitations/{id}/accept
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invitations.Accept)
}

// Decline declines an invitation addressed to the caller.
// PUT /v1/invitations/{id}/decline
func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invitations.Decline)
}

// Cancel withdraws an invitation the caller issued.
// DELETE /v1/invitations/{id}
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.invitations.Cancel)
}

type transitionFunc func(ctx context.Context, id, callerID uuid.UUID) (invitation.View, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}

	view, err := fn(r.Context(), id, userID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, view)
}
