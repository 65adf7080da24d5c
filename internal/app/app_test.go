package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-classroom/internal/config"
	"github.com/tendant/simple-classroom/internal/notification"
	"github.com/tendant/simple-classroom/pkg/domain"
	"github.com/tendant/simple-classroom/pkg/events"
	"github.com/tendant/simple-classroom/pkg/inbox"
)

func TestMemoryStoresWireServices(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := &config.Config{Store: "memory", InvitationTTL: 48 * time.Hour, Mail: config.MailConfig{From: "noreply@example.com"}}

	stores, err := OpenStores(context.Background(), cfg)
	require.NoError(t, err)
	defer stores.Close()
	assert.False(t, stores.Persistent())
	assert.NoError(t, stores.Ping(context.Background()))

	mailer := NewMailer(cfg, notification.NewLogTransport(logger), logger)
	svc := NewServices(cfg, stores, events.Nop{}, mailer, logger)

	n, err := svc.Inbox.Create(context.Background(), inboxInput(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, "Welcome", n.Title)

	_, err = svc.Enrollment.Enroll(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)

	n64, err := svc.Invitations.PurgeExpired(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n64)
	mailer.Wait()
}

func inboxInput(userID uuid.UUID) inbox.CreateInput {
	return inbox.CreateInput{UserID: userID.String(), Title: "Welcome", Body: "hello"}
}

func TestMemoryStoresLoadSeedFile(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg := &config.Config{Store: "memory", SeedFile: "testdata/seed.json", InvitationTTL: time.Hour}

	stores, err := OpenStores(ctx, cfg)
	require.NoError(t, err)
	defer stores.Close()

	courseID := uuid.MustParse("0b6a3f5e-1d2c-4e8f-9a7b-3c2d1e0f9a01")
	learnerID := uuid.MustParse("6f1c2a52-4a47-4c43-9e49-4d1f4f0f2a02")

	mailer := NewMailer(cfg, notification.NewLogTransport(logger), logger)
	svc := NewServices(cfg, stores, events.Nop{}, mailer, logger)

	res, err := svc.Enrollment.Enroll(ctx, learnerID, courseID)
	require.NoError(t, err)
	assert.True(t, res.Activated)

	course, err := stores.Courses.GetByID(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", course.Title)
	assert.Equal(t, 1, course.EnrollmentCount)
	mailer.Wait()
}

func TestMemoryStoresMissingSeedFile(t *testing.T) {
	cfg := &config.Config{Store: "memory", SeedFile: "testdata/missing.json"}

	_, err := OpenStores(context.Background(), cfg)
	assert.ErrorContains(t, err, "open seed file")
}
