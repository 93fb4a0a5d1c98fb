package domain

import (
	"fmt"
	"math"
	"time"
)

// ShiftConfiguration process-wide production constants
type ShiftConfiguration struct {
	UnitsPerMinute  int64         `mapstructure:"units_per_minute"`
	ShiftMinutes    int64         `mapstructure:"shift_minutes"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// DefaultShift 90 units/min over a 720 minute shift, refreshed every minute
func DefaultShift() ShiftConfiguration {
	return ShiftConfiguration{
		UnitsPerMinute:  90,
		ShiftMinutes:    720,
		RefreshInterval: 60 * time.Second,
	}
}

// ExpectedUnits production at 100% uptime
func (s ShiftConfiguration) ExpectedUnits() int64 {
	return s.UnitsPerMinute * s.ShiftMinutes
}

// Validate rejects zero or negative factors and products that overflow int64.
func (s ShiftConfiguration) Validate() error {
	if s.UnitsPerMinute <= 0 {
		return fmt.Errorf("%w: units_per_minute must be positive, got %d", ErrConfiguration, s.UnitsPerMinute)
	}
	if s.ShiftMinutes <= 0 {
		return fmt.Errorf("%w: shift_minutes must be positive, got %d", ErrConfiguration, s.ShiftMinutes)
	}
	if s.UnitsPerMinute > math.MaxInt64/s.ShiftMinutes {
		return fmt.Errorf("%w: units_per_minute * shift_minutes overflows (%d * %d)", ErrConfiguration, s.UnitsPerMinute, s.ShiftMinutes)
	}
	if s.RefreshInterval <= 0 {
		return fmt.Errorf("%w: refresh_interval must be positive, got %s", ErrConfiguration, s.RefreshInterval)
	}
	return nil
}

// Classification goal attainment tier
type Classification string

const (
	ClassificationOnTrack  Classification = "on-track"
	ClassificationAtRisk   Classification = "at-risk"
	ClassificationCritical Classification = "critical"
)

// Classify maps a goal probability to its tier:
// >= 90 on-track, [70, 90) at-risk, < 70 critical.
func Classify(probabilityPercent float64) Classification {
	switch {
	case probabilityPercent >= 90:
		return ClassificationOnTrack
	case probabilityPercent >= 70:
		return ClassificationAtRisk
	default:
		return ClassificationCritical
	}
}

// IndicatorSnapshot derived indicators for one refresh; never persisted
type IndicatorSnapshot struct {
	ExpectedUnits          int64          `json:"expected_units"`
	AdjustedUnits          int64          `json:"adjusted_units"`
	GoalProbabilityPercent float64        `json:"goal_probability_percent"`
	TotalStoppedMinutes    int64          `json:"total_stopped_minutes"`
	LostUnits              int64          `json:"lost_units"`
	Classification         Classification `json:"classification"`
	ComputedAt             time.Time      `json:"computed_at"`
}
