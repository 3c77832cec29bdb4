// Package simulator generates synthetic traffic against the ingest path
// while the simulation record says it is running.
package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"go.uber.org/zap"
)

var (
	Devices = []string{"mobile", "desktop", "tablet"}
	Regions = []string{"US-East", "US-West", "EU-Central", "AP-Southeast"}
)

const (
	minDelay      = 100 * time.Millisecond
	baseDelay     = 2 * time.Second
	delayPerLevel = 180 * time.Millisecond
)

type EventRecorder interface {
	RecordEventBatch(ctx context.Context, events []analytics.EventInput) (*analytics.BatchResult, error)
}

type StateReader interface {
	GetState(ctx context.Context) (*models.SimulationState, error)
}

type AdLister interface {
	ListAds(ctx context.Context, brandID string) ([]*models.Ad, error)
}

type Config struct {
	// IdleInterval is how often a stopped simulation is polled.
	IdleInterval       time.Duration
	EventsPerIntensity int
}

// Runner fires one batch per cycle, sized and paced by the stored
// intensity.
type Runner struct {
	recorder EventRecorder
	state    StateReader
	ads      AdLister
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRunner(recorder EventRecorder, state StateReader, ads AdLister, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = time.Second
	}
	if cfg.EventsPerIntensity <= 0 {
		cfg.EventsPerIntensity = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		recorder: recorder,
		state:    state,
		ads:      ads,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run loops until ctx is done. Failures are logged and the loop carries
// on.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("simulator started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("simulator stopped")
			return nil
		case <-timer.C:
		}
		timer.Reset(r.cycle(ctx))
	}
}

// cycle runs one step and returns the wait before the next.
func (r *Runner) cycle(ctx context.Context) time.Duration {
	state, err := r.state.GetState(ctx)
	if err != nil {
		r.logger.Warn("failed to read simulation state", zap.Error(err))
		return r.cfg.IdleInterval
	}
	if state.Status != models.SimulationRunning {
		return r.cfg.IdleInterval
	}

	if _, err := r.Tick(ctx, state.Intensity); err != nil && ctx.Err() == nil {
		r.logger.Warn("simulated batch failed", zap.Error(err))
	}
	return Delay(state.Intensity)
}

// Tick records one synthetic batch and returns how many events landed.
func (r *Runner) Tick(ctx context.Context, intensity int) (int, error) {
	ads, err := r.ads.ListAds(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(ads) == 0 {
		return 0, nil
	}

	batch := r.Generate(ads, BatchSize(intensity, r.cfg.EventsPerIntensity))
	res, err := r.recorder.RecordEventBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.RecordSimulated(res.Count)
	}
	r.logger.Debug("simulated batch recorded", zap.Int("count", res.Count), zap.Int("intensity", intensity))
	return res.Count, nil
}

// Generate draws n events over ads. Clicks follow each ad type's click
// probability.
func (r *Runner) Generate(ads []*models.Ad, n int) []analytics.EventInput {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]analytics.EventInput, n)
	for i := range out {
		ad := ads[r.rng.Intn(len(ads))]
		out[i] = analytics.EventInput{
			AdID:    ad.ID,
			Device:  Devices[r.rng.Intn(len(Devices))],
			Region:  Regions[r.rng.Intn(len(Regions))],
			IsClick: r.rng.Float64() < ad.Type.ClickProbability(),
		}
	}
	return out
}

// BatchSize is the number of events fired per cycle at intensity.
func BatchSize(intensity, perLevel int) int {
	n := intensity * perLevel
	if n < 1 {
		return 1
	}
	return n
}

// Delay is the pause between batches at intensity.
func Delay(intensity int) time.Duration {
	d := baseDelay - time.Duration(intensity)*delayPerLevel
	if d < minDelay {
		return minDelay
	}
	return d
}
