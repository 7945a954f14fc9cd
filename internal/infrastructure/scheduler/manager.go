// Package scheduler runs the payment background jobs using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// BatchJob processes one batch and returns the number of items changed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// SweepJob is the recovery sweep.
type SweepJob interface {
	Sweep(ctx context.Context) (*usecases.SweepReport, error)
}

// JobObserver is told the outcome of every job run; metrics implement it.
type JobObserver interface {
	TransactionsExpired(n int)
	SweepCompleted(report *usecases.SweepReport)
}

// SchedulerManager owns a single gocron scheduler for all payment jobs.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	observer  JobObserver
	logger    logger.Interface

	started   bool
	startedMu sync.RWMutex
}

// NewSchedulerManager creates a scheduler running in UTC.
func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// SetObserver sets the job observer (optional dependency injection)
func (m *SchedulerManager) SetObserver(o JobObserver) {
	m.observer = o
}

// ========================================
// Expiry Job
// ========================================

// RegisterExpiryJob expires transactions past their provider validity window.
func (m *SchedulerManager) RegisterExpiryJob(job BatchJob, interval time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			m.runExpiry(ctx, job)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("payment", "expire"),
		gocron.WithName("payment-expiry"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered payment expiry job", "interval", interval.String())
	return nil
}

func (m *SchedulerManager) runExpiry(ctx context.Context, job BatchJob) {
	startTime := time.Now()

	count, err := job.Execute(ctx)
	if err != nil {
		m.logger.Errorw("failed to expire transactions",
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}
	if m.observer != nil {
		m.observer.TransactionsExpired(count)
	}
	if count > 0 {
		m.logger.Infow("transactions expired",
			"count", count,
			"duration", time.Since(startTime),
		)
	}
}

// ========================================
// Recovery Sweep Job
// ========================================

// RegisterRecoverySweepJob reminds payers of abandoned payments. The first
// run waits one interval so a restart loop cannot spam reminders.
func (m *SchedulerManager) RegisterRecoverySweepJob(job SweepJob, interval time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			m.runSweep(ctx, job)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("payment", "recovery"),
		gocron.WithName("payment-recovery-sweep"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered recovery sweep job", "interval", interval.String())
	return nil
}

func (m *SchedulerManager) runSweep(ctx context.Context, job SweepJob) {
	report, err := job.Sweep(ctx)
	if err != nil {
		m.logger.Errorw("recovery sweep failed", "error", err)
		return
	}
	if m.observer != nil {
		m.observer.SweepCompleted(report)
	}
	if len(report.Errors) > 0 {
		m.logger.Warnw("recovery sweep finished with errors",
			"notified", report.Notified,
			"errors", len(report.Errors),
		)
	}
}

// Start starts the scheduler. Calling it twice is a no-op.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop waits for running jobs to complete before returning.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")

	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

// IsStarted returns whether the scheduler is running.
func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}
