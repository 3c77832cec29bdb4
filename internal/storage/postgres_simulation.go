package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/adpulse/internal/models"
)

// PostgresSimulationRepo stores the simulation record as the single row
// with id = 1.
type PostgresSimulationRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSimulationRepo(pool *pgxpool.Pool) *PostgresSimulationRepo {
	return &PostgresSimulationRepo{pool: pool}
}

func (r *PostgresSimulationRepo) Get(ctx context.Context) (*models.SimulationState, error) {
	var s models.SimulationState
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT status, intensity, last_updated, chart_reset_time
		FROM simulation_state WHERE id = 1
	`).Scan(&status, &s.Intensity, &s.LastUpdated, &s.ChartResetTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation state: %w", err)
	}
	s.Status = models.SimulationStatus(status)
	return &s, nil
}

func (r *PostgresSimulationRepo) Save(ctx context.Context, s *models.SimulationState) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO simulation_state (id, status, intensity, last_updated, chart_reset_time)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			intensity = EXCLUDED.intensity,
			last_updated = EXCLUDED.last_updated,
			chart_reset_time = EXCLUDED.chart_reset_time
	`, string(s.Status), s.Intensity, s.LastUpdated, s.ChartResetTime)
	if err != nil {
		return fmt.Errorf("failed to save simulation state: %w", err)
	}
	return nil
}
