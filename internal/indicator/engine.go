// Package indicator turns recorded stoppages into production indicators.
package indicator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"line-monitor/internal/domain"
	"line-monitor/internal/repository"
)

// DefaultReporter is used when a registration does not name who reported it.
const DefaultReporter = "operador@empresa.com"

// Engine computes indicators from the stoppage store. It holds no state between calls.
type Engine struct {
	store  repository.StoppageRepository
	shift  domain.ShiftConfiguration
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides time.Now for RecordedAt and ComputedAt
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine fails with domain.ErrConfiguration when shift is invalid.
func NewEngine(store repository.StoppageRepository, shift domain.ShiftConfiguration, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := shift.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		store:  store,
		shift:  shift,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Shift returns the configuration the engine was built with
func (e *Engine) Shift() domain.ShiftConfiguration {
	return e.shift
}

// ComputeAdjustedUnits active minutes clamp to [0, shift], so the result stays in [0, expected]
// even when legacy rows carry negative durations.
func ComputeAdjustedUnits(shift domain.ShiftConfiguration, totalStopped int64) int64 {
	active := shift.ShiftMinutes - totalStopped
	switch {
	case active < 0:
		active = 0
	case active > shift.ShiftMinutes:
		active = shift.ShiftMinutes
	}
	return active * shift.UnitsPerMinute
}

// ComputeGoalProbability round(adjusted/expected*100, 2)
func ComputeGoalProbability(adjusted, expected int64) (float64, error) {
	if expected == 0 {
		return 0, fmt.Errorf("%w: expected units is zero", domain.ErrDivisionByZero)
	}
	pct := decimal.NewFromInt(adjusted).
		Div(decimal.NewFromInt(expected)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	return pct.InexactFloat64(), nil
}

// AdjustedProduction units produced after subtracting all recorded stoppage time
func (e *Engine) AdjustedProduction(ctx context.Context) (int64, error) {
	total, err := e.store.SumAllDurations(ctx)
	if err != nil {
		return 0, err
	}
	return ComputeAdjustedUnits(e.shift, total), nil
}

// GoalProbability adjusted production as a percentage of expected production
func (e *Engine) GoalProbability(ctx context.Context) (float64, error) {
	adjusted, err := e.AdjustedProduction(ctx)
	if err != nil {
		return 0, err
	}
	return ComputeGoalProbability(adjusted, e.shift.ExpectedUnits())
}

// Snapshot reads the stoppage total once and derives every indicator from it.
func (e *Engine) Snapshot(ctx context.Context) (*domain.IndicatorSnapshot, error) {
	total, err := e.store.SumAllDurations(ctx)
	if err != nil {
		return nil, err
	}

	expected := e.shift.ExpectedUnits()
	adjusted := ComputeAdjustedUnits(e.shift, total)
	probability, err := ComputeGoalProbability(adjusted, expected)
	if err != nil {
		return nil, err
	}

	return &domain.IndicatorSnapshot{
		ExpectedUnits:          expected,
		AdjustedUnits:          adjusted,
		GoalProbabilityPercent: probability,
		TotalStoppedMinutes:    total,
		LostUnits:              expected - adjusted,
		Classification:         domain.Classify(probability),
		ComputedAt:             e.now(),
	}, nil
}

// DailyTrend stopped minutes per calendar day, ascending. Empty (not nil) when nothing is recorded.
func (e *Engine) DailyTrend(ctx context.Context) ([]domain.DailyAggregate, error) {
	days, err := e.store.SumDurationsGroupedByDate(ctx)
	if err != nil {
		return nil, err
	}
	if days == nil {
		return []domain.DailyAggregate{}, nil
	}
	sort.SliceStable(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days, nil
}

// CategoryStatistics one entry per category that has at least one event
func (e *Engine) CategoryStatistics(ctx context.Context) (map[domain.Category]domain.CategoryStatistic, error) {
	rows, err := e.store.SumAndCountGroupedByCategory(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(map[domain.Category]domain.CategoryStatistic, len(rows))
	for _, row := range rows {
		if row.Count == 0 {
			continue
		}
		// legacy rows may carry the old terminal spelling
		if c, err := domain.ParseCategory(string(row.Category)); err == nil {
			row.Category = c
		}
		merged := stats[row.Category]
		merged.Category = row.Category
		merged.Count += row.Count
		merged.TotalMinutes += row.TotalMinutes
		stats[row.Category] = merged
	}
	return stats, nil
}

// ListStoppages most recent first
func (e *Engine) ListStoppages(ctx context.Context, limit int) ([]domain.StoppageEvent, error) {
	return e.store.ListStoppages(ctx, limit)
}

// RegisterStoppageRequest input for RegisterStoppage
type RegisterStoppageRequest struct {
	DurationMinutes int    `json:"duration_minutes"`
	Category        string `json:"category"`
	Reason          string `json:"reason"`
	ReportedBy      string `json:"reported_by"`
}

// RegisterStoppage validates, timestamps and persists a stoppage.
// Invalid input fails with domain.ErrValidation and is never sent to the store.
func (e *Engine) RegisterStoppage(ctx context.Context, req RegisterStoppageRequest) (*domain.StoppageEvent, error) {
	if req.DurationMinutes < 0 {
		return nil, fmt.Errorf("%w: duration must be non-negative, got %d", domain.ErrValidation, req.DurationMinutes)
	}
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}

	reportedBy := strings.TrimSpace(req.ReportedBy)
	if reportedBy == "" {
		reportedBy = DefaultReporter
	}

	event := &domain.StoppageEvent{
		DurationMinutes: req.DurationMinutes,
		Category:        category,
		Reason:          strings.TrimSpace(req.Reason),
		ReportedBy:      reportedBy,
		RecordedAt:      e.now(),
	}

	id, err := e.store.Insert(ctx, event)
	if err != nil {
		return nil, err
	}
	event.ID = id

	e.logger.Info("Registered stoppage",
		zap.Int64("id", id),
		zap.Int("minutes", event.DurationMinutes),
		zap.String("category", string(event.Category)),
		zap.String("reported_by", event.ReportedBy),
	)
	return event, nil
}
