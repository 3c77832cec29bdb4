package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/adpulse/internal/models"
)

type InMemorySimulationRepo struct {
	mu    sync.RWMutex
	state *models.SimulationState
}

func NewInMemorySimulationRepo() *InMemorySimulationRepo {
	return &InMemorySimulationRepo{}
}

func (r *InMemorySimulationRepo) Get(ctx context.Context) (*models.SimulationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state == nil {
		return nil, nil
	}
	return copyState(r.state), nil
}

func (r *InMemorySimulationRepo) Save(ctx context.Context, s *models.SimulationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = copyState(s)
	return nil
}

func copyState(s *models.SimulationState) *models.SimulationState {
	cp := *s
	if s.ChartResetTime != nil {
		t := *s.ChartResetTime
		cp.ChartResetTime = &t
	}
	return &cp
}
