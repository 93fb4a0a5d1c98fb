package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"line-monitor/internal/domain"
)

const defaultQueryTimeout = 5 * time.Second

// PostgresStoppageRepository StoppageRepository backed by PostgreSQL
type PostgresStoppageRepository struct {
	db           *sql.DB
	logger       *zap.Logger
	queryTimeout time.Duration
}

// NewPostgresStoppageRepository queryTimeout bounds each call, including pool acquisition.
func NewPostgresStoppageRepository(db *sql.DB, queryTimeout time.Duration, logger *zap.Logger) *PostgresStoppageRepository {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &PostgresStoppageRepository{
		db:           db,
		logger:       logger,
		queryTimeout: queryTimeout,
	}
}

// EnsureSchema creates the paradas table if it does not exist
func (r *PostgresStoppageRepository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `
		CREATE TABLE IF NOT EXISTS paradas (
			id SERIAL PRIMARY KEY,
			minutos INTEGER,
			tipo TEXT,
			motivo TEXT,
			responsavel TEXT,
			data TIMESTAMP
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return unavailable("failed to create paradas table", err)
	}
	return nil
}

func (r *PostgresStoppageRepository) Insert(ctx context.Context, event *domain.StoppageEvent) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `
		INSERT INTO paradas (minutos, tipo, motivo, responsavel, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		event.DurationMinutes,
		string(event.Category),
		event.Reason,
		event.ReportedBy,
		event.RecordedAt,
	).Scan(&id)
	if err != nil {
		return 0, unavailable("failed to insert stoppage", err)
	}

	r.logger.Debug("Inserted stoppage",
		zap.Int64("id", id),
		zap.Int("minutes", event.DurationMinutes),
		zap.String("category", string(event.Category)),
	)
	return id, nil
}

func (r *PostgresStoppageRepository) SumAllDurations(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var total sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT SUM(minutos) FROM paradas`).Scan(&total); err != nil {
		return 0, unavailable("failed to sum durations", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

func (r *PostgresStoppageRepository) SumDurationsGroupedByDate(ctx context.Context) ([]domain.DailyAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `
		SELECT data::date AS dia, COALESCE(SUM(minutos), 0) AS total_minutos
		FROM paradas
		WHERE data IS NOT NULL
		GROUP BY dia
		ORDER BY dia
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("failed to query daily totals", err)
	}
	defer rows.Close()

	days := []domain.DailyAggregate{}
	for rows.Next() {
		var day domain.DailyAggregate
		if err := rows.Scan(&day.Date, &day.TotalStoppedMinutes); err != nil {
			return nil, unavailable("failed to scan daily total", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to iterate daily totals", err)
	}

	return days, nil
}

func (r *PostgresStoppageRepository) SumAndCountGroupedByCategory(ctx context.Context) ([]domain.CategoryStatistic, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `
		SELECT tipo, COUNT(*) AS paradas, COALESCE(SUM(minutos), 0) AS total_minutos
		FROM paradas
		GROUP BY tipo
		ORDER BY tipo
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("failed to query category statistics", err)
	}
	defer rows.Close()

	stats := []domain.CategoryStatistic{}
	for rows.Next() {
		var stat domain.CategoryStatistic
		var tipo sql.NullString
		if err := rows.Scan(&tipo, &stat.Count, &stat.TotalMinutes); err != nil {
			return nil, unavailable("failed to scan category statistic", err)
		}
		stat.Category = domain.Category(tipo.String)
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to iterate category statistics", err)
	}

	return stats, nil
}

func (r *PostgresStoppageRepository) ListStoppages(ctx context.Context, limit int) ([]domain.StoppageEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	query := `
		SELECT id, COALESCE(minutos, 0), COALESCE(tipo, ''), COALESCE(motivo, ''),
		       COALESCE(responsavel, ''), data
		FROM paradas
		ORDER BY data DESC NULLS LAST, id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("failed to list stoppages", err)
	}
	defer rows.Close()

	events := []domain.StoppageEvent{}
	for rows.Next() {
		var e domain.StoppageEvent
		var tipo string
		var recordedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.DurationMinutes, &tipo, &e.Reason, &e.ReportedBy, &recordedAt); err != nil {
			return nil, unavailable("failed to scan stoppage", err)
		}
		e.Category = domain.Category(tipo)
		if recordedAt.Valid {
			e.RecordedAt = recordedAt.Time
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to iterate stoppages", err)
	}

	return events, nil
}

func unavailable(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, msg, err)
}
