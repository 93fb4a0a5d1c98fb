package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"line-monitor/internal/domain"
	"line-monitor/internal/scheduler"
)

const metricsNamespace = "line_monitor_"

// Metrics keeps the latest refresh as Prometheus gauges and counts refresh
// outcomes. It is a scheduler subscriber and an http.Handler for /metrics.
type Metrics struct {
	logger *zap.Logger

	mu        sync.RWMutex
	snapshot  *domain.IndicatorSnapshot
	durationS float64
	results   map[string]float64
}

func NewMetrics(logger *zap.Logger) *Metrics {
	return &Metrics{
		logger:  logger,
		results: map[string]float64{"success": 0, "error": 0},
	}
}

func (m *Metrics) OnRefresh(_ context.Context, r scheduler.Refresh) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durationS = r.Duration.Seconds()
	if r.Err != nil {
		m.results["error"]++
		return
	}
	m.results["success"]++
	m.snapshot = r.Snapshot
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	for _, mf := range m.families() {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			m.logger.Error("Failed to encode metric family", zap.String("name", mf.GetName()), zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (m *Metrics) families() []*dto.MetricFamily {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*dto.MetricFamily

	outcomes := make([]string, 0, len(m.results))
	for k := range m.results {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	refreshes := &dto.MetricFamily{
		Name: strPtr(metricsNamespace + "refreshes_total"),
		Help: strPtr("Indicator refresh runs by result."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range outcomes {
		refreshes.Metric = append(refreshes.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{label("result", k)},
			Counter: &dto.Counter{Value: f64Ptr(m.results[k])},
		})
	}
	out = append(out, refreshes, gauge("refresh_duration_seconds", "Duration of the last refresh run.", m.durationS))

	s := m.snapshot
	if s == nil {
		return out
	}
	out = append(out,
		gauge("expected_units", "Units expected for a shift with no stoppages.", float64(s.ExpectedUnits)),
		gauge("adjusted_units", "Units expected after recorded stoppages.", float64(s.AdjustedUnits)),
		gauge("goal_probability_percent", "Adjusted over expected units, in percent.", s.GoalProbabilityPercent),
		gauge("stopped_minutes", "Total recorded stoppage minutes.", float64(s.TotalStoppedMinutes)),
		gauge("lost_units", "Units lost to stoppages.", float64(s.LostUnits)),
	)

	classification := &dto.MetricFamily{
		Name: strPtr(metricsNamespace + "classification"),
		Help: strPtr("Current goal classification; 1 for the active level."),
		Type: dto.MetricType_GAUGE.Enum(),
	}
	for _, c := range []domain.Classification{domain.ClassificationOnTrack, domain.ClassificationAtRisk, domain.ClassificationCritical} {
		v := 0.0
		if s.Classification == c {
			v = 1
		}
		classification.Metric = append(classification.Metric, &dto.Metric{
			Label: []*dto.LabelPair{label("level", string(c))},
			Gauge: &dto.Gauge{Value: f64Ptr(v)},
		})
	}
	return append(out, classification)
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   strPtr(metricsNamespace + name),
		Help:   strPtr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: f64Ptr(v)}}},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: strPtr(name), Value: strPtr(value)}
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
