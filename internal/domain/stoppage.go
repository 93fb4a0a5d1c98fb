package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category stoppage category (closed set)
type Category string

const (
	CategoryMechanical  Category = "mechanical"
	CategoryOperational Category = "operational"
	CategoryOther       Category = "other"
)

// Categories lists the valid categories in display order
var Categories = []Category{CategoryMechanical, CategoryOperational, CategoryOther}

// legacy form values from the shop-floor terminals
var categoryAliases = map[string]Category{
	"mecanica":    CategoryMechanical,
	"mecânica":    CategoryMechanical,
	"operacional": CategoryOperational,
	"outra":       CategoryOther,
	"outro":       CategoryOther,
}

// ParseCategory normalizes s to a Category or fails with ErrValidation.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if key == string(c) {
			return c, nil
		}
	}
	if c, ok := categoryAliases[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrValidation, s)
}

// StoppageEvent one recorded downtime interval (table paradas)
type StoppageEvent struct {
	ID              int64     `json:"id" db:"id"`
	DurationMinutes int       `json:"duration_minutes" db:"minutos"`
	Category        Category  `json:"category" db:"tipo"`
	Reason          string    `json:"reason" db:"motivo"`
	ReportedBy      string    `json:"reported_by" db:"responsavel"`
	RecordedAt      time.Time `json:"recorded_at" db:"data"`
}

// DailyAggregate total stopped minutes for one calendar day
type DailyAggregate struct {
	Date                time.Time `json:"date"`
	TotalStoppedMinutes int64     `json:"total_stopped_minutes"`
}

// CategoryStatistic count and total minutes for one category
type CategoryStatistic struct {
	Category     Category `json:"category"`
	Count        int64    `json:"count"`
	TotalMinutes int64    `json:"total_minutes"`
}
