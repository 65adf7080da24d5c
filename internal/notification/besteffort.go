package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSendTimeout = 10 * time.Second

// BestEffort sends mail in the background. Its methods always return nil:
// a failed or slow delivery is logged and never reaches the caller, and a
// caller's canceled request does not cancel delivery.
type BestEffort struct {
	email   *EmailService
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewBestEffort wraps email. A non-positive timeout uses a 10s default.
func NewBestEffort(email *EmailService, logger *slog.Logger, timeout time.Duration) *BestEffort {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &BestEffort{email: email, logger: logger, timeout: timeout}
}

func (b *BestEffort) SendInvitationEmail(ctx context.Context, to, courseTitle, teacherName string, expiresAt time.Time) error {
	b.dispatch(ctx, "invitation", to, func(ctx context.Context) error {
		return b.email.SendInvitationEmail(ctx, to, courseTitle, teacherName, expiresAt)
	})
	return nil
}

func (b *BestEffort) SendEnrollmentEmail(ctx context.Context, to, courseTitle, courseID string) error {
	b.dispatch(ctx, "enrollment", to, func(ctx context.Context) error {
		return b.email.SendEnrollmentEmail(ctx, to, courseTitle, courseID)
	})
	return nil
}

func (b *BestEffort) SendRemovalEmail(ctx context.Context, to, courseTitle string) error {
	b.dispatch(ctx, "removal", to, func(ctx context.Context) error {
		return b.email.SendRemovalEmail(ctx, to, courseTitle)
	})
	return nil
}

// Wait blocks until every in-flight send has finished.
func (b *BestEffort) Wait() {
	b.wg.Wait()
}

func (b *BestEffort) dispatch(parent context.Context, kind, to string, send func(context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("email send panicked", "kind", kind, "to", to, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			b.logger.Warn("email send failed", "kind", kind, "to", to, "error", err)
		}
	}()
}
