package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radiusdt/adpulse/internal/models"
	"github.com/radiusdt/adpulse/internal/storage"
	"go.uber.org/zap"
)

// SimulationService owns the singleton simulation record. Readers get the
// defaults until the first write creates it.
type SimulationService struct {
	repo   storage.SimulationRepo
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewSimulationService(repo storage.SimulationRepo, logger *zap.Logger) *SimulationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulationService{repo: repo, logger: logger, now: time.Now}
}

// SetClock overrides the clock used to stamp updates.
func (s *SimulationService) SetClock(now func() time.Time) {
	s.now = now
}

// GetState returns the stored record or the defaults when none exists.
func (s *SimulationService) GetState(ctx context.Context) (*models.SimulationState, error) {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation state: %w", err)
	}
	if state == nil {
		return models.DefaultSimulationState(), nil
	}
	return state, nil
}

// ResetChartOrigin sets the chart reset time to now, creating the record
// if needed. Recent counts and the pulse feed ignore buckets before it.
func (s *SimulationService) ResetChartOrigin(ctx context.Context) (*models.SimulationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.GetState(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UnixMilli()
	state.ChartResetTime = &now
	state.LastUpdated = now

	if err := s.repo.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save simulation state: %w", err)
	}
	s.logger.Info("chart origin reset", zap.Int64("chart_reset_time", now))
	return state, nil
}

// Start marks the simulation running. A nil intensity keeps the stored
// one, falling back to the default when none is usable.
func (s *SimulationService) Start(ctx context.Context, intensity *int) (*models.SimulationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if intensity != nil {
		if err := models.ValidateIntensity(*intensity); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		state.Intensity = *intensity
	}
	if models.ValidateIntensity(state.Intensity) != nil {
		state.Intensity = models.DefaultIntensity
	}
	state.Status = models.SimulationRunning
	state.LastUpdated = s.now().UnixMilli()

	if err := s.repo.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save simulation state: %w", err)
	}
	s.logger.Info("simulation started", zap.Int("intensity", state.Intensity))
	return state, nil
}

// Stop marks the simulation stopped. It is a no-op before the record
// exists.
func (s *SimulationService) Stop(ctx context.Context) (*models.SimulationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation state: %w", err)
	}
	if state == nil {
		return models.DefaultSimulationState(), nil
	}
	state.Status = models.SimulationStopped
	state.LastUpdated = s.now().UnixMilli()

	if err := s.repo.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save simulation state: %w", err)
	}
	s.logger.Info("simulation stopped")
	return state, nil
}
