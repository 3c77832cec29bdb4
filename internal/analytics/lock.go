package analytics

import (
	"context"
	"time"

	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
)

// aggregatesLock serializes writers that must not interleave with a clear
// or a rebuild of the aggregate store.
const aggregatesLock = "aggregates"

func noopUnlock(context.Context) error { return nil }

// acquire takes name on locker, waiting at most wait. A nil locker always
// succeeds.
func acquire(ctx context.Context, locker storage.Locker, name string, wait time.Duration, m *metrics.Metrics) (func(context.Context) error, error) {
	if locker == nil {
		return noopUnlock, nil
	}

	lockCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	start := time.Now()
	unlock, err := locker.Lock(lockCtx, name)
	if m != nil {
		m.RecordLockWait(name, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

// release unlocks with a fresh context so a cancelled request still frees
// the lock.
func release(unlock func(context.Context) error, logger *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := unlock(ctx); err != nil {
		logger.Warn("failed to release lock", zap.String("lock", name), zap.Error(err))
	}
}
