package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"line-monitor/internal/domain"
	"line-monitor/internal/indicator"
	"line-monitor/internal/repository"
	"line-monitor/internal/scheduler"
)

type fakeRefreshSource struct {
	latest    *scheduler.Refresh
	lastErr   error
	pending   bool
	triggers  int
	triggerFn func() error
}

func (f *fakeRefreshSource) Latest() (scheduler.Refresh, bool) {
	if f.latest == nil {
		return scheduler.Refresh{}, false
	}
	return *f.latest, true
}

func (f *fakeRefreshSource) LastError() error { return f.lastErr }

func (f *fakeRefreshSource) Pending() bool { return f.pending }

func (f *fakeRefreshSource) TriggerNow() error {
	f.triggers++
	if f.triggerFn != nil {
		return f.triggerFn()
	}
	return nil
}

type failingStore struct {
	repository.StoppageRepository
}

func (failingStore) SumAllDurations(context.Context) (int64, error) {
	return 0, domain.ErrStoreUnavailable
}

func newTestServer(t *testing.T, src *fakeRefreshSource) (*Router, *repository.MemoryStoppageRepository) {
	t.Helper()
	store := repository.NewMemoryStoppageRepository(time.UTC)
	engine, err := indicator.NewEngine(store, domain.DefaultShift(), zap.NewNop())
	require.NoError(t, err)

	router := NewRouter(zap.NewNop())
	router.RegisterIndicatorRoutes(NewIndicatorHandler(engine, src, zap.NewNop()))
	return router, store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult[T any](t *testing.T, rec *httptest.ResponseRecorder) Result[T] {
	t.Helper()
	var res Result[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestGetIndicators_ComputesWhenNothingCached(t *testing.T) {
	router, _ := newTestServer(t, &fakeRefreshSource{})

	rec := do(t, router, http.MethodGet, "/api/v1/indicators", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decodeResult[IndicatorsResponse](t, rec)
	assert.Equal(t, ResultSuccess, res.Code)
	require.NotNil(t, res.Result.Snapshot)
	assert.Equal(t, int64(64800), res.Result.Snapshot.ExpectedUnits)
	assert.Equal(t, int64(64800), res.Result.Snapshot.AdjustedUnits)
	assert.Equal(t, 100.0, res.Result.Snapshot.GoalProbabilityPercent)
	assert.False(t, res.Result.Stale)
}

func TestGetIndicators_ServesCachedAndFlagsStale(t *testing.T) {
	src := &fakeRefreshSource{
		latest: &scheduler.Refresh{
			RunID:    "run-1",
			Snapshot: &domain.IndicatorSnapshot{ExpectedUnits: 64800, AdjustedUnits: 54000, GoalProbabilityPercent: 83.33},
		},
		lastErr: errors.New("store down"),
	}
	router, _ := newTestServer(t, src)

	rec := do(t, router, http.MethodGet, "/api/v1/indicators", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res := decodeResult[IndicatorsResponse](t, rec)
	assert.Equal(t, TypeWarning, res.Type)
	assert.Equal(t, "run-1", res.Result.RunID)
	assert.Equal(t, 83.33, res.Result.Snapshot.GoalProbabilityPercent)
	assert.True(t, res.Result.Stale)
	assert.Equal(t, "store down", res.Result.LastError)
}

func TestGetIndicators_FlagsPendingRefresh(t *testing.T) {
	src := &fakeRefreshSource{
		latest: &scheduler.Refresh{
			RunID:    "run-1",
			Snapshot: &domain.IndicatorSnapshot{ExpectedUnits: 64800, AdjustedUnits: 64800, GoalProbabilityPercent: 100},
		},
		pending: true,
	}
	router, _ := newTestServer(t, src)

	res := decodeResult[IndicatorsResponse](t, do(t, router, http.MethodGet, "/api/v1/indicators", nil))
	assert.Equal(t, TypeWarning, res.Type)
	assert.True(t, res.Result.Stale)
	assert.True(t, res.Result.Pending)
	assert.Empty(t, res.Result.LastError)

	src.pending = false
	res = decodeResult[IndicatorsResponse](t, do(t, router, http.MethodGet, "/api/v1/indicators", nil))
	assert.Equal(t, TypeSuccess, res.Type)
	assert.False(t, res.Result.Stale)
}

func TestGetIndicators_StoreUnavailable(t *testing.T) {
	store := failingStore{repository.NewMemoryStoppageRepository(time.UTC)}
	engine, err := indicator.NewEngine(store, domain.DefaultShift(), zap.NewNop())
	require.NoError(t, err)
	router := NewRouter(zap.NewNop())
	router.RegisterIndicatorRoutes(NewIndicatorHandler(engine, &fakeRefreshSource{}, zap.NewNop()))

	rec := do(t, router, http.MethodGet, "/api/v1/indicators", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ResultError, decodeResult[any](t, rec).Code)
}

func TestRegisterStoppage_CreatesAndTriggersRefresh(t *testing.T) {
	src := &fakeRefreshSource{}
	router, store := newTestServer(t, src)

	rec := do(t, router, http.MethodPost, "/api/v1/stoppages", map[string]any{
		"duration_minutes": 120,
		"category":         "mecanica",
		"reason":           "belt replacement",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	res := decodeResult[domain.StoppageEvent](t, rec)
	assert.Equal(t, int64(1), res.Result.ID)
	assert.Equal(t, domain.CategoryMechanical, res.Result.Category)
	assert.Equal(t, indicator.DefaultReporter, res.Result.ReportedBy)
	assert.Equal(t, 1, src.triggers)

	total, err := store.SumAllDurations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)
}

func TestRegisterStoppage_TriggerFailureStillCreates(t *testing.T) {
	src := &fakeRefreshSource{triggerFn: func() error { return scheduler.ErrNotRunning }}
	router, _ := newTestServer(t, src)

	rec := do(t, router, http.MethodPost, "/api/v1/stoppages", map[string]any{
		"duration_minutes": 5,
		"category":         "other",
		"reason":           "cleaning",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRegisterStoppage_Validation(t *testing.T) {
	src := &fakeRefreshSource{}
	router, store := newTestServer(t, src)

	cases := []map[string]any{
		{"duration_minutes": -5, "category": "mechanical", "reason": "x"},
		{"duration_minutes": 10, "category": "electrical", "reason": "x"},
		{"duration_minutes": 10, "category": "", "reason": "x"},
	}
	for _, body := range cases {
		rec := do(t, router, http.MethodPost, "/api/v1/stoppages", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %v", body)
	}
	assert.Zero(t, src.triggers)

	events, err := store.ListStoppages(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRegisterStoppage_MalformedBody(t *testing.T) {
	router, _ := newTestServer(t, &fakeRefreshSource{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stoppages", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	src := &fakeRefreshSource{}
	router, _ := newTestServer(t, src)

	rec := do(t, router, http.MethodPost, "/api/v1/indicators/refresh", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, src.triggers)

	src.triggerFn = func() error { return scheduler.ErrStopped }
	rec = do(t, router, http.MethodPost, "/api/v1/indicators/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestServer(t, &fakeRefreshSource{})

	rec := do(t, router, http.MethodDelete, "/api/v1/indicators", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestTrendAndStatistics(t *testing.T) {
	router, store := newTestServer(t, &fakeRefreshSource{})
	ctx := context.Background()

	rec := do(t, router, http.MethodGet, "/api/v1/indicators/trend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result":[]`)

	day1 := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	for _, e := range []domain.StoppageEvent{
		{DurationMinutes: 30, Category: domain.CategoryOperational, Reason: "setup", RecordedAt: day2},
		{DurationMinutes: 60, Category: domain.CategoryMechanical, Reason: "motor", RecordedAt: day1},
		{DurationMinutes: 15, Category: domain.CategoryMechanical, Reason: "belt", RecordedAt: day2},
	} {
		_, err := store.Insert(ctx, &e)
		require.NoError(t, err)
	}

	rec = do(t, router, http.MethodGet, "/api/v1/indicators/trend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trend := decodeResult[[]domain.DailyAggregate](t, rec).Result
	require.Len(t, trend, 2)
	assert.True(t, trend[0].Date.Before(trend[1].Date))
	assert.Equal(t, int64(60), trend[0].TotalStoppedMinutes)
	assert.Equal(t, int64(45), trend[1].TotalStoppedMinutes)

	rec = do(t, router, http.MethodGet, "/api/v1/stoppages/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeResult[[]domain.CategoryStatistic](t, rec).Result
	require.Len(t, stats, 2)
	assert.Equal(t, domain.CategoryMechanical, stats[0].Category)
	assert.Equal(t, int64(2), stats[0].Count)
	assert.Equal(t, int64(75), stats[0].TotalMinutes)
	assert.Equal(t, domain.CategoryOperational, stats[1].Category)
}

func TestGetReport(t *testing.T) {
	router, store := newTestServer(t, &fakeRefreshSource{})
	_, err := store.Insert(context.Background(), &domain.StoppageEvent{
		DurationMinutes: 45,
		Category:        domain.CategoryOther,
		Reason:          "material shortage",
		ReportedBy:      "op@plant",
		RecordedAt:      time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec := do(t, router, http.MethodGet, "/api/v1/stoppages/report.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Stoppages")
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t, &fakeRefreshSource{})
	rec := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
