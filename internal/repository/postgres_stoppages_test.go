package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"line-monitor/internal/domain"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStoppageRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresStoppageRepository(db, time.Second, zap.NewNop())

	return db, mock, repo
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS paradas`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ReturnsAssignedID(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	recordedAt := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	event := &domain.StoppageEvent{
		DurationMinutes: 120,
		Category:        domain.CategoryMechanical,
		Reason:          "conveyor belt jammed",
		ReportedBy:      "operador@empresa.com",
		RecordedAt:      recordedAt,
	}

	mock.ExpectQuery(`INSERT INTO paradas`).
		WithArgs(120, "mechanical", "conveyor belt jammed", "operador@empresa.com", recordedAt).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := repo.Insert(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_StoreError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO paradas`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.Insert(context.Background(), &domain.StoppageEvent{Category: domain.CategoryOther})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSumAllDurations(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT SUM\(minutos\) FROM paradas`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(170)))

	total, err := repo.SumAllDurations(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(170), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumAllDurations_NullIsZero(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT SUM\(minutos\) FROM paradas`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	total, err := repo.SumAllDurations(context.Background())

	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumDurationsGroupedByDate(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	d1 := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"dia", "total_minutos"}).
		AddRow(d1, int64(30)).
		AddRow(d2, int64(50))

	mock.ExpectQuery(`SELECT data::date AS dia`).WillReturnRows(rows)

	days, err := repo.SumDurationsGroupedByDate(context.Background())

	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, d1, days[0].Date)
	assert.Equal(t, int64(30), days[0].TotalStoppedMinutes)
	assert.Equal(t, d2, days[1].Date)
	assert.Equal(t, int64(50), days[1].TotalStoppedMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumDurationsGroupedByDate_Empty(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT data::date AS dia`).
		WillReturnRows(sqlmock.NewRows([]string{"dia", "total_minutos"}))

	days, err := repo.SumDurationsGroupedByDate(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, days)
	assert.Len(t, days, 0)
}

func TestSumAndCountGroupedByCategory(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"tipo", "paradas", "total_minutos"}).
		AddRow("mechanical", int64(2), int64(150)).
		AddRow("other", int64(1), int64(20))

	mock.ExpectQuery(`SELECT tipo, COUNT\(\*\)`).WillReturnRows(rows)

	stats, err := repo.SumAndCountGroupedByCategory(context.Background())

	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, domain.CategoryMechanical, stats[0].Category)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.Equal(t, int64(150), stats[0].TotalMinutes)
	assert.Equal(t, domain.CategoryOther, stats[1].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStoppages_WithLimit(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "minutos", "tipo", "motivo", "responsavel", "data"}).
		AddRow(int64(2), 15, "operational", "setup change", "ana", at).
		AddRow(int64(1), 5, "other", "", "", nil)

	mock.ExpectQuery(`FROM paradas\s+ORDER BY data DESC NULLS LAST, id DESC\s+LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	events, err := repo.ListStoppages(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID)
	assert.Equal(t, domain.CategoryOperational, events[0].Category)
	assert.Equal(t, at, events[0].RecordedAt)
	assert.True(t, events[1].RecordedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
