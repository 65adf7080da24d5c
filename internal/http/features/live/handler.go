// Package live serves the websocket endpoint that streams room events to
// signed-in users.
package live

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/tendant/simple-classroom/internal/http/middleware"
	"github.com/tendant/simple-classroom/internal/httputil"
	"github.com/tendant/simple-classroom/internal/realtime"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/events"
)

const (
	readTimeout = 60 * time.Second
	readLimit   = 4 << 10
)

// Handler upgrades authenticated requests to live sessions.
type Handler struct {
	logger   *slog.Logger
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a live handler. Browser origins must be listed in
// allowedOrigins; requests without an Origin header are accepted.
func NewHandler(logger *slog.Logger, hub *realtime.Hub, allowedOrigins []string) *Handler {
	return &Handler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

type inboundFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type ackFrame struct {
	Type   string      `json:"type"`
	Room   events.Room `json:"room,omitempty"`
	UserID string      `json:"userId,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Serve upgrades the request and processes join and leave frames until the
// client disconnects.
// GET /v1/live
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		return
	}

	conn := realtime.NewConnection(userID, claims.HasRole(domain.RoleAdmin), ws)
	h.hub.Attach(conn)
	defer func() {
		h.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	h.reply(conn, ackFrame{Type: "connected", UserID: userID.String()})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug("live session ended", "error", err, "user_id", userID, "session_id", conn.ID)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.replyError(conn, "bad_request", "invalid payload")
			continue
		}
		switch frame.Type {
		case "join":
			h.handleJoin(conn, frame)
		case "leave":
			h.handleLeave(conn, frame)
		default:
			h.replyError(conn, "unsupported_type", "unknown frame type")
		}
	}
}

func (h *Handler) handleJoin(conn *realtime.Connection, frame inboundFrame) {
	room, err := events.ParseRoom(frame.Room)
	if err != nil {
		h.replyError(conn, "bad_request", "invalid room")
		return
	}
	if err := h.hub.Join(room, conn); err != nil {
		if errors.Is(err, realtime.ErrRoomForbidden) {
			h.replyError(conn, "forbidden", err.Error())
		}
		return
	}
	h.reply(conn, ackFrame{Type: "joined", Room: room})
}

func (h *Handler) handleLeave(conn *realtime.Connection, frame inboundFrame) {
	room, err := events.ParseRoom(frame.Room)
	if err != nil {
		h.replyError(conn, "bad_request", "invalid room")
		return
	}
	h.hub.Leave(room, conn)
	h.reply(conn, ackFrame{Type: "left", Room: room})
}

func (h *Handler) reply(conn *realtime.Connection, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to encode live frame", "error", err)
		return
	}
	_ = conn.Send(payload)
}

func (h *Handler) replyError(conn *realtime.Connection, code, msg string) {
	h.reply(conn, errorFrame{Type: "error", Code: code, Error: msg})
}

// RegisterRoutes registers the websocket endpoint. r must already carry the
// auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/live", h.Serve)
}
