package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-classroom/internal/config"
	"github.com/tendant/simple-classroom/internal/realtime"
	"github.com/tendant/simple-classroom/internal/testutil"
	"github.com/tendant/simple-classroom/pkg/auth"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/enrollment"
	"github.com/tendant/simple-classroom/pkg/events"
	"github.com/tendant/simple-classroom/pkg/inbox"
	"github.com/tendant/simple-classroom/pkg/invitation"
	"github.com/tendant/simple-classroom/pkg/repository/memstore"
)

type apiFixture struct {
	srv       *httptest.Server
	store     *memstore.Store
	tokens    *auth.TokenValidator
	clock     *testutil.Clock
	teacher   *domain.User
	student   *domain.User
	course    *domain.Course
	hub       *realtime.Hub
	mailer    *testutil.Mailer
	unhealthy atomic.Bool
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := memstore.New()
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Second))

	teacher := &domain.User{ID: uuid.New(), Email: "teacher@example.com"}
	student := &domain.User{ID: uuid.New(), Email: "student@example.com"}
	store.PutUser(teacher)
	store.PutUser(student)
	course := &domain.Course{
		ID:         uuid.New(),
		OwnerID:    teacher.ID,
		Title:      "Compilers",
		Published:  true,
		Visibility: domain.VisibilityPublic,
	}
	store.PutCourse(course)

	hub := realtime.NewHub(logger)
	inboxSvc := inbox.NewService(store.Notifications(), clock.Now)
	mailer := &testutil.Mailer{}
	enrollmentSvc := enrollment.NewService(enrollment.Config{
		Courses:     store.Courses(),
		Memberships: store.Memberships(),
		Users:       store.Users(),
		Inbox:       inboxSvc,
		Mailer:      mailer,
		Publisher:   hub,
		Logger:      logger,
		Clock:       clock.Now,
	})
	invitationSvc := invitation.NewService(invitation.Config{
		Invitations: store.Invitations(),
		Courses:     store.Courses(),
		Memberships: store.Memberships(),
		Users:       store.Users(),
		Enroller:    enrollmentSvc,
		Inbox:       inboxSvc,
		Mailer:      mailer,
		Publisher:   hub,
		Logger:      logger,
		Clock:       clock.Now,
	})

	f := &apiFixture{
		store:   store,
		tokens:  auth.NewTokenValidator(auth.TokenConfig{Secret: []byte("router-test"), Issuer: "simple-idm"}),
		clock:   clock,
		teacher: teacher,
		student: student,
		course:  course,
		hub:     hub,
		mailer:  mailer,
	}
	router := NewRouter(RouterConfig{
		Logger:            logger,
		TokenValidator:    f.tokens,
		EnrollmentService: enrollmentSvc,
		InvitationService: invitationSvc,
		InboxService:      inboxSvc,
		Hub:               hub,
		HealthCheck: func(ctx context.Context) error {
			if f.unhealthy.Load() {
				return errors.New("db down")
			}
			return nil
		},
		InvitationRetain: 24 * time.Hour,
		RateLimitConfig:  config.RateLimitConfig{Enabled: false},
		Validation:       config.ValidationConfig{MaxRequestBodySize: 1 << 20},
	})
	f.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		f.srv.Close()
	})
	return f
}

func (f *apiFixture) token(t *testing.T, userID uuid.UUID, roles ...string) string {
	t.Helper()
	token, err := f.tokens.Issue(userID, "", roles, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path string, userID uuid.UUID, body any, roles ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID, roles...))
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func (f *apiFixture) courseCount(t *testing.T) int {
	t.Helper()
	c, err := f.store.Courses().GetByID(context.Background(), f.course.ID)
	require.NoError(t, err)
	return c.EnrollmentCount
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	f.unhealthy.Store(true)
	status, body = f.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unavailable", body["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/v1/invitations/mine", "/v1/notifications", "/v1/courses/" + f.course.ID.String() + "/enrollment"} {
		status, body := f.do(t, http.MethodGet, path, uuid.Nil, nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, "unauthorized", body["code"], path)
	}
}

func TestInvitationLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	courseID := f.course.ID.String()
	invite := map[string]any{"courseId": courseID, "studentEmail": "Student@Example.com", "message": "join us"}

	status, created := f.do(t, http.MethodPost, "/v1/invitations", f.teacher.ID, invite)
	require.Equal(t, http.StatusCreated, status, created)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "student@example.com", created["studentEmail"])
	invitationID := created["id"].(string)

	status, mine := f.do(t, http.MethodGet, "/v1/invitations/mine", f.student.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, mine["invitations"], 1)

	status, accepted := f.do(t, http.MethodPut, "/v1/invitations/"+invitationID+"/accept", f.student.ID, nil)
	require.Equal(t, http.StatusOK, status, accepted)
	assert.Equal(t, "accepted", accepted["status"])
	assert.Equal(t, 1, f.courseCount(t))

	status, again := f.do(t, http.MethodPut, "/v1/invitations/"+invitationID+"/accept", f.student.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", again["code"])
	assert.Equal(t, 1, f.courseCount(t))

	status, dup := f.do(t, http.MethodPost, "/v1/invitations", f.teacher.ID, invite)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already enrolled", dup["error"])

	status, _ = f.do(t, http.MethodDelete, "/v1/courses/"+courseID+"/enrollments/"+f.student.ID.String(), f.teacher.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, f.courseCount(t))

	status, third := f.do(t, http.MethodPost, "/v1/invitations", f.teacher.ID, invite)
	require.Equal(t, http.StatusCreated, status, third)
	assert.Equal(t, "pending", third["status"])

	status, sent := f.do(t, http.MethodGet, "/v1/invitations/sent", f.teacher.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, sent["invitations"], 2)

	status, cancelled := f.do(t, http.MethodDelete, "/v1/invitations/"+third["id"].(string), f.teacher.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", cancelled["status"])
}

func TestInvitationErrorsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name       string
		method     string
		path       string
		caller     uuid.UUID
		body       any
		wantStatus int
		wantCode   string
	}{
		{"malformed id", http.MethodPut, "/v1/invitations/not-a-uuid/accept", f.student.ID, nil, http.StatusConflict, "conflict"},
		{"unknown invitation", http.MethodPut, "/v1/invitations/" + uuid.NewString() + "/decline", f.student.ID, nil, http.StatusNotFound, "not_found"},
		{"not the owner", http.MethodPost, "/v1/invitations", f.student.ID,
			map[string]any{"courseId": f.course.ID.String(), "studentEmail": "teacher@example.com"}, http.StatusForbidden, "forbidden"},
		{"unknown learner", http.MethodPost, "/v1/invitations", f.teacher.ID,
			map[string]any{"courseId": f.course.ID.String(), "studentEmail": "nobody@example.com"}, http.StatusNotFound, "not_found"},
		{"missing fields", http.MethodPost, "/v1/invitations", f.teacher.ID, map[string]any{}, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.wantStatus, status, body)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestEnrollmentOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	base := "/v1/courses/" + f.course.ID.String()

	status, body := f.do(t, http.MethodPost, base+"/enroll", f.student.ID, nil)
	require.Equal(t, http.StatusCreated, status, body)
	assert.NotEmpty(t, body["message"])

	status, _ = f.do(t, http.MethodPost, base+"/enroll", f.student.ID, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, f.courseCount(t))

	status, body = f.do(t, http.MethodPost, base+"/rating", f.student.ID, map[string]any{"rating": 4, "review": "solid"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 4.0, body["averageRating"])

	status, _ = f.do(t, http.MethodPost, base+"/rating", f.student.ID, map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, http.MethodPut, base+"/progress", f.student.ID, map[string]any{"progress": 40})
	require.Equal(t, http.StatusOK, status)

	status, body = f.do(t, http.MethodGet, base+"/enrollment", f.student.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["enrolled"])
	assert.Equal(t, 40.0, body["progress"])
	assert.Equal(t, 4.0, body["rating"])
	assert.Equal(t, "solid", body["review"])

	status, body = f.do(t, http.MethodGet, base+"/enrollments", f.teacher.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["enrollments"], 1)

	status, body = f.do(t, http.MethodGet, base+"/enrollments", f.student.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["code"])

	status, _ = f.do(t, http.MethodPost, base+"/enroll", f.teacher.ID, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestNotificationsOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, http.MethodPost, "/v1/invitations", f.teacher.ID,
		map[string]any{"courseId": f.course.ID.String(), "studentEmail": f.student.Email})
	require.Equal(t, http.StatusCreated, status)

	status, body := f.do(t, http.MethodGet, "/v1/notifications?limit=5", f.student.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["unread"])
	items := body["notifications"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "Course invitation", first["title"])
	id := first["id"].(string)

	status, _ = f.do(t, http.MethodPost, "/v1/notifications/mark-read/"+id, f.teacher.ID, nil)
	assert.Equal(t, http.StatusNotFound, status, "another user's notification")

	status, _ = f.do(t, http.MethodPost, "/v1/notifications/mark-read/"+id, f.student.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = f.do(t, http.MethodGet, "/v1/notifications/unread-count", f.student.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["unread"])

	status, body = f.do(t, http.MethodPost, "/v1/notifications/mark-all-read", f.student.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["updated"])

	status, _ = f.do(t, http.MethodDelete, "/v1/notifications/"+id, f.student.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = f.do(t, http.MethodDelete, "/v1/notifications/bogus", f.student.ID, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "malformed identifier", body["error"])
}

func TestAdminRoutes(t *testing.T) {
	f := newAPIFixture(t)
	admin := uuid.New()

	status, _ := f.do(t, http.MethodPost, "/v1/admin/fix-enrollment-counts", f.teacher.ID, nil, domain.RoleTeacher)
	assert.Equal(t, http.StatusForbidden, status)

	// Drift the counter behind the store's back.
	require.NoError(t, f.store.Courses().AdjustEnrollmentCount(context.Background(), f.course.ID, 3))

	status, body := f.do(t, http.MethodPost, "/v1/admin/fix-enrollment-counts", admin, nil, domain.RoleAdmin)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, 1.0, body["fixed"])
	courses := body["courses"].([]any)
	require.Len(t, courses, 1)
	assert.Equal(t, f.course.ID.String(), courses[0].(map[string]any)["courseId"])
	assert.Equal(t, 0, f.courseCount(t))

	status, body = f.do(t, http.MethodPost, "/v1/admin/invitations/purge-expired", admin, nil, domain.RoleAdmin)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["deleted"])
}

func TestLiveSessionReceivesRoomEvents(t *testing.T) {
	f := newAPIFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/live?access_token=" + f.token(t, f.teacher.ID)
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	read := func() map[string]any {
		t.Helper()
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame map[string]any
		require.NoError(t, client.ReadJSON(&frame))
		return frame
	}

	assert.Equal(t, "connected", read()["type"])

	require.NoError(t, client.WriteJSON(map[string]string{"type": "join", "room": "admin"}))
	frame := read()
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "forbidden", frame["code"])

	room := events.CourseRoom(f.course.ID)
	require.NoError(t, client.WriteJSON(map[string]string{"type": "join", "room": string(room)}))
	assert.Equal(t, "joined", read()["type"])

	status, _ := f.do(t, http.MethodPost, "/v1/courses/"+f.course.ID.String()+"/enroll", f.student.ID, nil)
	require.Equal(t, http.StatusCreated, status)

	// The teacher session sits in both the course room and its own user
	// room, so the enrollment reaches it through each.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		frame := read()
		seen[frame["type"].(string)+"@"+frame["room"].(string)] = true
	}
	assert.True(t, seen[events.TypeEnrollmentAdded+"@"+string(room)], seen)

	require.NoError(t, client.WriteJSON(map[string]string{"type": "leave", "room": string(room)}))
	assert.Equal(t, "left", read()["type"])
	require.Eventually(t, func() bool { return f.hub.RoomSize(room) == 0 }, time.Second, 10*time.Millisecond)
}
