package repository

import (
	"context"

	"line-monitor/internal/domain"
)

// StoppageRepository stoppage store (table paradas)
// Append-only: events are inserted once and never updated or deleted.
type StoppageRepository interface {
	// Insert persists event and returns the store-assigned id
	Insert(ctx context.Context, event *domain.StoppageEvent) (int64, error)

	// SumAllDurations total stopped minutes across all events (0 when empty)
	SumAllDurations(ctx context.Context) (int64, error)

	// SumDurationsGroupedByDate per calendar day, ascending
	SumDurationsGroupedByDate(ctx context.Context) ([]domain.DailyAggregate, error)

	// SumAndCountGroupedByCategory one row per category with events
	SumAndCountGroupedByCategory(ctx context.Context) ([]domain.CategoryStatistic, error)

	// ListStoppages most recent first; limit <= 0 means no limit
	ListStoppages(ctx context.Context, limit int) ([]domain.StoppageEvent, error)
}
