package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Router standard library http.ServeMux with request logging
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler (websocket hub, metrics)
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	r.mux.ServeHTTP(w, req)
	r.logger.Debug("HTTP request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("duration", time.Since(start)),
	)
}

// RegisterIndicatorRoutes registers the indicator and stoppage API
func (r *Router) RegisterIndicatorRoutes(h *IndicatorHandler) {
	r.Handle("/api/v1/indicators", method(http.MethodGet, h.GetIndicators))
	r.Handle("/api/v1/indicators/refresh", method(http.MethodPost, h.Refresh))
	r.Handle("/api/v1/indicators/trend", method(http.MethodGet, h.GetTrend))
	r.Handle("/api/v1/stoppages", method(http.MethodPost, h.RegisterStoppage))
	r.Handle("/api/v1/stoppages/statistics", method(http.MethodGet, h.GetStatistics))
	r.Handle("/api/v1/stoppages/report.xlsx", method(http.MethodGet, h.GetReport))
	r.Handle("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok("ok"))
	})
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.Header().Set("Allow", m)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}
