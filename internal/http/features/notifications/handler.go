package notifications

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-classroom/internal/http/middleware"
	"github.com/tendant/simple-classroom/internal/httputil"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/inbox"
)

// Handler handles inbox endpoints.
type Handler struct {
	logger *slog.Logger
	inbox  *inbox.Service
}

// NewHandler creates a new notifications handler.
func NewHandler(logger *slog.Logger, svc *inbox.Service) *Handler {
	return &Handler{logger: logger, inbox: svc}
}

// NotificationResponse represents one inbox item.
type NotificationResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Read      bool              `json:"read"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
}

// ListResponse is a page of the inbox plus the unread total.
type ListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Unread        int                    `json:"unread"`
}

func toResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID.String(),
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		Meta:      n.Meta,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}

// List returns the caller's newest notifications.
// GET /v1/notifications?limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	items, err := h.inbox.List(r.Context(), userID, httputil.QueryInt(r, "limit", 0))
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	unread, err := h.inbox.CountUnread(r.Context(), userID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}

	resp := ListResponse{Notifications: make([]NotificationResponse, 0, len(items)), Unread: unread}
	for _, n := range items {
		resp.Notifications = append(resp.Notifications, toResponse(n))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// UnreadCount returns the number of unread notifications.
// GET /v1/notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	unread, err := h.inbox.CountUnread(r.Context(), userID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]int{"unread": unread})
}

// MarkRead marks one notification as read.
// POST /v1/notifications/mark-read/{id}
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.inbox.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// MarkAllRead marks every notification as read.
// POST /v1/notifications/mark-all-read
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	n, err := h.inbox.MarkAllRead(r.Context(), userID)
	if err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Delete removes one notification.
// DELETE /v1/notifications/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.inbox.Remove(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httputil.ErrorFrom(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID.String(), true
}
