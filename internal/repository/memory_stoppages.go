package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"line-monitor/internal/domain"
)

// MemoryStoppageRepository keeps stoppages in process memory when the DB is disabled.
// Days are bucketed in loc.
type MemoryStoppageRepository struct {
	mu     sync.RWMutex
	events []domain.StoppageEvent
	nextID int64
	loc    *time.Location
}

func NewMemoryStoppageRepository(loc *time.Location) *MemoryStoppageRepository {
	if loc == nil {
		loc = time.Local
	}
	return &MemoryStoppageRepository{
		nextID: 1,
		loc:    loc,
	}
}

func (r *MemoryStoppageRepository) Insert(_ context.Context, event *domain.StoppageEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *event
	stored.ID = r.nextID
	r.nextID++
	r.events = append(r.events, stored)
	return stored.ID, nil
}

func (r *MemoryStoppageRepository) SumAllDurations(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, e := range r.events {
		total += int64(e.DurationMinutes)
	}
	return total, nil
}

func (r *MemoryStoppageRepository) SumDurationsGroupedByDate(_ context.Context) ([]domain.DailyAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byDay := map[time.Time]int64{}
	for _, e := range r.events {
		t := e.RecordedAt.In(r.loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
		byDay[day] += int64(e.DurationMinutes)
	}

	days := make([]domain.DailyAggregate, 0, len(byDay))
	for day, total := range byDay {
		days = append(days, domain.DailyAggregate{Date: day, TotalStoppedMinutes: total})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days, nil
}

func (r *MemoryStoppageRepository) SumAndCountGroupedByCategory(_ context.Context) ([]domain.CategoryStatistic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byCategory := map[domain.Category]*domain.CategoryStatistic{}
	for _, e := range r.events {
		stat, ok := byCategory[e.Category]
		if !ok {
			stat = &domain.CategoryStatistic{Category: e.Category}
			byCategory[e.Category] = stat
		}
		stat.Count++
		stat.TotalMinutes += int64(e.DurationMinutes)
	}

	stats := make([]domain.CategoryStatistic, 0, len(byCategory))
	for _, stat := range byCategory {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Category < stats[j].Category
	})
	return stats, nil
}

func (r *MemoryStoppageRepository) ListStoppages(_ context.Context, limit int) ([]domain.StoppageEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]domain.StoppageEvent, len(r.events))
	copy(events, r.events)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].RecordedAt.Equal(events[j].RecordedAt) {
			return events[i].ID > events[j].ID
		}
		return events[i].RecordedAt.After(events[j].RecordedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
