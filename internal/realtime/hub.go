package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tendant/simple-classroom/pkg/events"
)

var ErrRoomForbidden = errors.New("room not allowed for this session")

// Relay forwards locally published frames to other nodes. Forward must not block.
type Relay interface {
	Forward(room events.Room, frame []byte)
}

// Hub coordinates websocket sessions and rooms. A user may hold several
// sessions at once; every session is in its own user room and admin
// sessions are also in the admin room. Hub implements events.Publisher.
type Hub struct {
	mu           sync.RWMutex
	sessions     map[string]*Connection
	rooms        map[events.Room]map[string]*Connection
	sessionRooms map[string]map[events.Room]struct{}

	logger *slog.Logger
	clock  func() time.Time
	relay  Relay
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRelay forwards every published frame to relay as well.
func WithRelay(relay Relay) HubOption {
	return func(h *Hub) { h.relay = relay }
}

// WithClock overrides the frame timestamp source.
func WithClock(clock func() time.Time) HubOption {
	return func(h *Hub) { h.clock = clock }
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		sessions:     make(map[string]*Connection),
		rooms:        make(map[events.Room]map[string]*Connection),
		sessionRooms: make(map[string]map[events.Room]struct{}),
		logger:       logger,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ events.Publisher = (*Hub)(nil)

// Attach registers conn, starts its write loop and joins its implicit rooms.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	h.sessions[conn.ID] = conn
	h.sessionRooms[conn.ID] = make(map[events.Room]struct{})
	h.joinLocked(events.UserRoom(conn.UserID), conn)
	if conn.Admin {
		h.joinLocked(events.AdminRoom, conn)
	}
	h.mu.Unlock()

	conn.Start()
}

// Detach removes conn from every room.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	h.detachLocked(conn.ID)
	h.mu.Unlock()
}

// Join adds conn to room. Sessions may not join another user's room, and
// only admin sessions may join the admin room.
func (h *Hub) Join(room events.Room, conn *Connection) error {
	if room == events.AdminRoom && !conn.Admin {
		return ErrRoomForbidden
	}
	if room.IsUser() && room != events.UserRoom(conn.UserID) {
		return ErrRoomForbidden
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[conn.ID]; !ok {
		return ErrConnectionClosed
	}
	h.joinLocked(room, conn)
	return nil
}

// Leave removes conn from room. The implicit user room cannot be left.
func (h *Hub) Leave(room events.Room, conn *Connection) {
	if room == events.UserRoom(conn.UserID) {
		return
	}
	h.mu.Lock()
	h.leaveLocked(room, conn.ID)
	h.mu.Unlock()
}

// Publish encodes ev, delivers it to local sessions in room and hands it
// to the relay. Failures are logged.
func (h *Hub) Publish(_ context.Context, room events.Room, ev events.Event) {
	frame, err := events.Encode(room, ev, h.clock())
	if err != nil {
		h.logger.Error("failed to encode event", "error", err, "event", ev.EventName(), "room", room)
		return
	}
	h.Broadcast(room, frame)
	if h.relay != nil {
		h.relay.Forward(room, frame)
	}
}

// Deliver sends a frame received from another node to local sessions only.
func (h *Hub) Deliver(room events.Room, frame []byte) {
	h.Broadcast(room, frame)
}

// Broadcast writes frame to every local session in room and returns the
// number of sessions it was queued for. An empty room drops the frame.
func (h *Hub) Broadcast(room events.Room, frame []byte) int {
	h.mu.RLock()
	members := make([]*Connection, 0, len(h.rooms[room]))
	for _, conn := range h.rooms[room] {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range members {
		if err := conn.Send(frame); err != nil {
			if errors.Is(err, ErrBufferExceeded) {
				h.logger.Warn("dropped slow live session", "session_id", conn.ID, "user_id", conn.UserID)
			}
			h.Detach(conn)
			continue
		}
		delivered++
	}
	return delivered
}

// RoomSize returns the number of local sessions in room.
func (h *Hub) RoomSize(room events.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session and clears all rooms.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Connection, 0, len(h.sessions))
	for _, conn := range h.sessions {
		sessions = append(sessions, conn)
	}
	h.sessions = make(map[string]*Connection)
	h.rooms = make(map[events.Room]map[string]*Connection)
	h.sessionRooms = make(map[string]map[events.Room]struct{})
	h.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (h *Hub) joinLocked(room events.Room, conn *Connection) {
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Connection)
		h.rooms[room] = members
	}
	members[conn.ID] = conn
	h.sessionRooms[conn.ID][room] = struct{}{}
}

func (h *Hub) detachLocked(sessionID string) {
	if _, ok := h.sessions[sessionID]; !ok {
		return
	}
	delete(h.sessions, sessionID)
	for room := range h.sessionRooms[sessionID] {
		h.leaveLocked(room, sessionID)
	}
	delete(h.sessionRooms, sessionID)
}

func (h *Hub) leaveLocked(room events.Room, sessionID string) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if joined, ok := h.sessionRooms[sessionID]; ok {
		delete(joined, room)
	}
}
