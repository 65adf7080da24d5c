package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseRoom(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		input   string
		want    Room
		wantErr bool
	}{
		{name: "course room", input: "course:" + id.String(), want: CourseRoom(id)},
		{name: "classroom room", input: "classroom:" + id.String(), want: ClassroomRoom(id)},
		{name: "user room", input: "user:" + id.String(), want: UserRoom(id)},
		{name: "admin room", input: "admin", want: AdminRoom},
		{name: "surrounding whitespace", input: "  course:" + id.String() + " ", want: CourseRoom(id)},
		{name: "unknown prefix", input: "lesson:" + id.String(), wantErr: true},
		{name: "malformed id", input: "course:not-a-uuid", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoom(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRoom) {
					t.Fatalf("ParseRoom(%q) error = %v, want ErrInvalidRoom", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoom(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseRoom(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRoom_IsUser(t *testing.T) {
	if !UserRoom(uuid.New()).IsUser() {
		t.Error("user room should report IsUser")
	}
	if CourseRoom(uuid.New()).IsUser() {
		t.Error("course room should not report IsUser")
	}
}

func TestEncode_FrameCarriesTypeRoomAndTimestamp(t *testing.T) {
	courseID := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := EnrollmentAdded{CourseID: courseID, LearnerID: uuid.New(), EnrollmentCount: 3}

	frame, err := Encode(CourseRoom(courseID), ev, at)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	for _, key := range []string{"type", "room", "timestamp", "data"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("frame missing %q", key)
		}
	}

	env, decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if env.Type != TypeEnrollmentAdded {
		t.Errorf("Type = %q, want %q", env.Type, TypeEnrollmentAdded)
	}
	if !env.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", env.Timestamp, at)
	}
	got, ok := decoded.(*EnrollmentAdded)
	if !ok {
		t.Fatalf("decoded %T, want *EnrollmentAdded", decoded)
	}
	if got.CourseID != courseID || got.EnrollmentCount != 3 {
		t.Errorf("decoded payload = %+v", got)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, _, err := Decode([]byte(`{"type":"somethingElse","room":"admin","timestamp":"2026-01-01T00:00:00Z","data":{}}`))
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestRegistry_CoversEveryTag(t *testing.T) {
	for tag, factory := range registry {
		if got := factory().EventName(); got != tag {
			t.Errorf("registry[%q] builds %q", tag, got)
		}
	}
	if len(registry) != 16 {
		t.Errorf("registry has %d event types, want 16", len(registry))
	}
}
