// Package jobs runs scheduled maintenance against the aggregate store.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Resyncer rebuilds the aggregates.
type Resyncer interface {
	Resync(ctx context.Context) (*analytics.ResyncResult, error)
}

// ResyncJob is a cron.Job that rebuilds the aggregates. A run that finds
// the aggregates lock held by another rebuild is skipped.
type ResyncJob struct {
	resyncer Resyncer
	timeout  time.Duration
	logger   *zap.Logger
}

func NewResyncJob(resyncer Resyncer, timeout time.Duration, logger *zap.Logger) *ResyncJob {
	return &ResyncJob{resyncer: resyncer, timeout: timeout, logger: logger}
}

func (j *ResyncJob) Run() {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	j.logger.Info("scheduled resync starting")
	res, err := j.resyncer.Resync(ctx)
	if errors.Is(err, storage.ErrLockNotAcquired) {
		j.logger.Warn("scheduled resync skipped, aggregates lock is held")
		return
	}
	if err != nil {
		j.logger.Error("scheduled resync failed", zap.Error(err))
		return
	}
	j.logger.Info("scheduled resync finished",
		zap.Int("events_applied", res.EventsApplied),
		zap.Int64("duration_ms", res.DurationMs),
	)
}

// Manager owns the cron engine. Schedules use a leading seconds field.
type Manager struct {
	engine *cron.Cron
	logger *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		engine: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
	}
}

// Register schedules job under spec. An empty spec is ignored.
func (m *Manager) Register(name, spec string, job cron.Job) error {
	if spec == "" {
		return nil
	}
	if _, err := m.engine.AddJob(spec, job); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	m.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Entries reports how many jobs are scheduled.
func (m *Manager) Entries() int {
	return len(m.engine.Entries())
}

func (m *Manager) Start() {
	m.logger.Info("cron engine starting")
	m.engine.Start()
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (m *Manager) Stop(ctx context.Context) {
	m.logger.Info("cron engine stopping")
	done := m.engine.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		m.logger.Warn("cron jobs still running at shutdown")
	}
}
