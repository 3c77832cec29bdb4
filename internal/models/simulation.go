package models

import "fmt"

type SimulationStatus string

const (
	SimulationRunning SimulationStatus = "running"
	SimulationStopped SimulationStatus = "stopped"
)

const (
	MinIntensity     = 1
	MaxIntensity     = 10
	DefaultIntensity = 5
)

// SimulationState is the singleton control record for the traffic
// simulator. ChartResetTime, when set, is the earliest timestamp the
// recent-window and pulse queries will report.
type SimulationState struct {
	Status         SimulationStatus `json:"status"`
	Intensity      int              `json:"intensity"`
	LastUpdated    int64            `json:"last_updated"`
	ChartResetTime *int64           `json:"chart_reset_time,omitempty"`
}

// DefaultSimulationState is what readers see before the record exists.
func DefaultSimulationState() *SimulationState {
	return &SimulationState{
		Status:    SimulationStopped,
		Intensity: DefaultIntensity,
	}
}

// ResetTime returns ChartResetTime or 0 when unset.
func (s *SimulationState) ResetTime() int64 {
	if s == nil || s.ChartResetTime == nil {
		return 0
	}
	return *s.ChartResetTime
}

func ValidateIntensity(v int) error {
	if v < MinIntensity || v > MaxIntensity {
		return fmt.Errorf("intensity must be between %d and %d, got %d", MinIntensity, MaxIntensity, v)
	}
	return nil
}
