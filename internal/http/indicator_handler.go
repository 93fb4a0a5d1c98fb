package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"line-monitor/internal/domain"
	"line-monitor/internal/indicator"
	"line-monitor/internal/report"
	"line-monitor/internal/scheduler"
)

const defaultReportLimit = 5000

// IndicatorEngine engine operations exposed over HTTP
type IndicatorEngine interface {
	Snapshot(ctx context.Context) (*domain.IndicatorSnapshot, error)
	DailyTrend(ctx context.Context) ([]domain.DailyAggregate, error)
	CategoryStatistics(ctx context.Context) (map[domain.Category]domain.CategoryStatistic, error)
	RegisterStoppage(ctx context.Context, req indicator.RegisterStoppageRequest) (*domain.StoppageEvent, error)
	ListStoppages(ctx context.Context, limit int) ([]domain.StoppageEvent, error)
}

// RefreshSource the scheduler as seen by the API
type RefreshSource interface {
	Latest() (scheduler.Refresh, bool)
	LastError() error
	TriggerNow() error
	Pending() bool
}

// IndicatorHandler presentation API over the engine and scheduler
type IndicatorHandler struct {
	engine  IndicatorEngine
	refresh RefreshSource
	logger  *zap.Logger
}

func NewIndicatorHandler(engine IndicatorEngine, refresh RefreshSource, logger *zap.Logger) *IndicatorHandler {
	return &IndicatorHandler{
		engine:  engine,
		refresh: refresh,
		logger:  logger,
	}
}

// IndicatorsResponse latest snapshot plus freshness information
type IndicatorsResponse struct {
	Snapshot  *domain.IndicatorSnapshot `json:"snapshot"`
	RunID     string                    `json:"run_id,omitempty"`
	Stale     bool                      `json:"stale"`
	Pending   bool                      `json:"refresh_pending,omitempty"`
	LastError string                    `json:"last_error,omitempty"`
}

// GetIndicators serves the scheduler's last good snapshot; computes one when
// nothing has been refreshed yet.
func (h *IndicatorHandler) GetIndicators(w http.ResponseWriter, r *http.Request) {
	if latest, ok := h.refresh.Latest(); ok {
		resp := IndicatorsResponse{Snapshot: latest.Snapshot, RunID: latest.RunID}
		if err := h.refresh.LastError(); err != nil {
			resp.Stale = true
			resp.LastError = err.Error()
			writeJSON(w, http.StatusOK, Warn(resp, "indicators may be out of date"))
			return
		}
		// a registration's refresh has not finished yet
		if h.refresh.Pending() {
			resp.Stale = true
			resp.Pending = true
			writeJSON(w, http.StatusOK, Warn(resp, "refresh pending"))
			return
		}
		writeJSON(w, http.StatusOK, Ok(resp))
		return
	}

	snap, err := h.engine.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute snapshot", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(IndicatorsResponse{Snapshot: snap}))
}

// Refresh asks the scheduler for an immediate recomputation
func (h *IndicatorHandler) Refresh(w http.ResponseWriter, _ *http.Request) {
	if err := h.refresh.TriggerNow(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusAccepted, Ok("refresh scheduled"))
}

func (h *IndicatorHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	days, err := h.engine.DailyTrend(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute daily trend", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(days))
}

func (h *IndicatorHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.CategoryStatistics(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute category statistics", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(sortedStatistics(stats)))
}

// RegisterStoppage records a stoppage and schedules a refresh so the next
// snapshot includes it.
func (h *IndicatorHandler) RegisterStoppage(w http.ResponseWriter, r *http.Request) {
	var req indicator.RegisterStoppageRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid body: %v", err)))
		return
	}

	event, err := h.engine.RegisterStoppage(r.Context(), req)
	if err != nil {
		h.logger.Warn("Failed to register stoppage", zap.Error(err))
		writeError(w, err)
		return
	}

	if err := h.refresh.TriggerNow(); err != nil {
		h.logger.Debug("Refresh not scheduled after registration", zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, Ok(event))
}

// GetReport streams an xlsx workbook with indicators, stoppages, categories and trend
func (h *IndicatorHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseInt(r.URL.Query().Get("limit"), defaultReportLimit)

	var data report.Data
	var err error
	if data.Snapshot, err = h.engine.Snapshot(ctx); err != nil {
		writeError(w, err)
		return
	}
	if data.Stoppages, err = h.engine.ListStoppages(ctx, limit); err != nil {
		writeError(w, err)
		return
	}
	if data.Categories, err = h.engine.CategoryStatistics(ctx); err != nil {
		writeError(w, err)
		return
	}
	if data.Trend, err = h.engine.DailyTrend(ctx); err != nil {
		writeError(w, err)
		return
	}

	raw, err := report.Generate(data)
	if err != nil {
		h.logger.Error("Failed to generate report", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	filename := fmt.Sprintf("stoppages-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func sortedStatistics(stats map[domain.Category]domain.CategoryStatistic) []domain.CategoryStatistic {
	out := make([]domain.CategoryStatistic, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
