// Package worker wires background tasks to the queue server: queued mail
// delivery and the opt-in maintenance passes.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-classroom/internal/notification"
	"github.com/tendant/simple-classroom/internal/queue"
	"github.com/tendant/simple-classroom/pkg/enrollment"
)

const (
	// TaskReconcileAll recomputes every course's counters.
	TaskReconcileAll = "enrollment:reconcile_all"
	// TaskPurgeExpired deletes invitations expired past the retention window.
	TaskPurgeExpired = "invitation:purge_expired"
)

// Reconciler restores course aggregates from membership state.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (enrollment.Report, error)
}

// Purger deletes lapsed invitations.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Config holds the task dependencies. A nil dependency leaves its task
// unregistered.
type Config struct {
	Mail       notification.Transport
	Reconciler Reconciler
	Purger     Purger
	Retention  time.Duration
	Logger     *slog.Logger
}

// Register adds a handler to srv for every configured task and returns the
// registered task types.
func Register(srv queue.Server, cfg Config) []string {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var registered []string
	if cfg.Mail != nil {
		srv.Register(notification.MailTaskType, notification.MailTaskHandler(cfg.Mail))
		registered = append(registered, notification.MailTaskType)
	}
	if cfg.Reconciler != nil {
		srv.Register(TaskReconcileAll, ReconcileHandler(cfg.Reconciler, logger))
		registered = append(registered, TaskReconcileAll)
	}
	if cfg.Purger != nil {
		srv.Register(TaskPurgeExpired, PurgeHandler(cfg.Purger, cfg.Retention, logger))
		registered = append(registered, TaskPurgeExpired)
	}
	return registered
}

// ReconcileHandler runs a full reconcile pass.
func ReconcileHandler(r Reconciler, logger *slog.Logger) queue.Handler {
	return func(ctx context.Context, _ queue.Task) error {
		report, err := r.ReconcileAll(ctx)
		if err != nil {
			return fmt.Errorf("reconcile enrollments: %w", err)
		}
		logger.Info("reconciled enrollment counts", "courses", len(report.Courses), "fixed", report.Fixed)
		return nil
	}
}

// PurgeHandler deletes invitations expired longer than retention.
func PurgeHandler(p Purger, retention time.Duration, logger *slog.Logger) queue.Handler {
	return func(ctx context.Context, _ queue.Task) error {
		n, err := p.PurgeExpired(ctx, retention)
		if err != nil {
			return err
		}
		logger.Info("purge pass finished", "deleted", n)
		return nil
	}
}

// Registrar schedules periodic tasks. *queue.Scheduler implements it.
type Registrar interface {
	Register(spec string, t queue.Task, opts ...queue.EnqueueOption) (string, error)
}

// Schedule holds the intervals of the periodic tasks. A non-positive
// interval leaves its task unscheduled.
type Schedule struct {
	ReconcileInterval time.Duration
	PurgeInterval     time.Duration
}

// RegisterSchedule adds the periodic tasks to s.
func RegisterSchedule(s Registrar, sched Schedule) error {
	entries := []struct {
		interval time.Duration
		taskType string
	}{
		{sched.ReconcileInterval, TaskReconcileAll},
		{sched.PurgeInterval, TaskPurgeExpired},
	}
	for _, e := range entries {
		if e.interval <= 0 {
			continue
		}
		spec := "@every " + e.interval.String()
		opt := queue.EnqueueOption{Queue: "default", UniqueTTL: e.interval, MaxRetry: 1}
		if _, err := s.Register(spec, queue.Task{Type: e.taskType}, opt); err != nil {
			return fmt.Errorf("schedule %s: %w", e.taskType, err)
		}
	}
	return nil
}
