// Package events defines the live events pushed to connected sessions and
// the rooms they are addressed to.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room is a named group of live sessions.
type Room string

// AdminRoom is joined by sessions holding the admin role.
const AdminRoom Room = "admin"

const (
	courseRoomPrefix    = "course:"
	classroomRoomPrefix = "classroom:"
	userRoomPrefix      = "user:"
)

// CourseRoom returns the room for sessions viewing a course.
func CourseRoom(id uuid.UUID) Room { return Room(courseRoomPrefix + id.String()) }

// ClassroomRoom returns the room for sessions viewing a classroom.
func ClassroomRoom(id uuid.UUID) Room { return Room(classroomRoomPrefix + id.String()) }

// UserRoom returns the room every session of a user joins on connect.
func UserRoom(id uuid.UUID) Room { return Room(userRoomPrefix + id.String()) }

var ErrInvalidRoom = errors.New("invalid room")

// ParseRoom validates a room name received from a client.
func ParseRoom(s string) (Room, error) {
	s = strings.TrimSpace(s)
	if s == string(AdminRoom) {
		return AdminRoom, nil
	}
	for _, prefix := range []string{courseRoomPrefix, classroomRoomPrefix, userRoomPrefix} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			id, err := uuid.Parse(rest)
			if err != nil {
				return "", fmt.Errorf("%w: %q", ErrInvalidRoom, s)
			}
			return Room(prefix + id.String()), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRoom, s)
}

// IsUser reports whether r is a user room.
func (r Room) IsUser() bool {
	return strings.HasPrefix(string(r), userRoomPrefix)
}

// Event is a typed live-event payload. The name is the wire tag.
type Event interface {
	EventName() string
}

// Publisher fans events out to the sessions in a room.
//
// Delivery is at-most-once and non-blocking. Publish never waits on
// subscribers, drops events for rooms with no sessions, and never reports
// delivery failure to the caller. Anything a user must not miss is also
// written to their notification inbox.
type Publisher interface {
	Publish(ctx context.Context, room Room, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Room, Event) {}

// Envelope is the wire frame for an event.
type Envelope struct {
	Type      string          `json:"type"`
	Room      Room            `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Encode renders ev as a wire frame addressed to room.
func Encode(room Room, ev Event, at time.Time) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{
		Type:      ev.EventName(),
		Room:      room,
		Timestamp: at.UTC(),
		Data:      data,
	})
}

// Decode parses a wire frame back into its envelope and typed payload.
func Decode(frame []byte) (Envelope, Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("decode envelope: %w", err)
	}
	factory, ok := registry[env.Type]
	if !ok {
		return env, nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	ev := factory()
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return env, nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return env, ev, nil
}
