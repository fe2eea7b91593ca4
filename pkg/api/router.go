// Package api exposes a small HTTP status surface for a running debug
// session: liveness, a JSON snapshot of the debugger, and Prometheus
// metrics. The server is optional and off by default.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/droidprobe/droidprobe/internal/logger"
	"github.com/droidprobe/droidprobe/pkg/debugger"
	"github.com/droidprobe/droidprobe/pkg/metrics"
)

// NewRouter creates and configures the chi router.
//
// Routes:
//   - GET /health  - liveness probe
//   - GET /status  - JSON snapshot of the debugger
//   - GET /metrics - Prometheus metrics (404 when metrics are disabled)
func NewRouter(dbg *debugger.Debugger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, dbg.Status())
	})

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		reg := metrics.GetRegistry()
		if reg == nil {
			http.NotFound(w, r)
			return
		}
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response", "error", err)
	}
}

// requestLogger logs requests using the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0)
	})
}
