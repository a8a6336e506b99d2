package dslwatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/dslwatch/dslwatch/internal/poller"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 5000
)

// Handler returns the status API:
//
//	GET /healthz
//	GET /metrics
//	GET /api/status
//	GET /api/stats               fresh read from the router
//	GET /api/history?metric=&limit=
func (w *Watcher) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(w.metrics, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(rw http.ResponseWriter, _ *http.Request) {
			writeJSON(rw, http.StatusOK, statusView(w.Status()))
		})

		r.Get("/stats", func(rw http.ResponseWriter, req *http.Request) {
			snap, err := w.Stats(req.Context())
			if err != nil {
				writeError(rw, http.StatusBadGateway, err)
				return
			}
			writeJSON(rw, http.StatusOK, snap)
		})

		r.Get("/history", func(rw http.ResponseWriter, req *http.Request) {
			metric := req.URL.Query().Get("metric")
			if metric == "" {
				writeError(rw, http.StatusBadRequest, errors.New("metric is required"))
				return
			}
			limit := queryInt(req, "limit", defaultHistoryLimit)
			if limit <= 0 || limit > maxHistoryLimit {
				limit = defaultHistoryLimit
			}
			samples, err := w.History(req.Context(), metric, limit)
			if errors.Is(err, ErrHistoryDisabled) {
				writeError(rw, http.StatusNotFound, err)
				return
			}
			if err != nil {
				writeError(rw, http.StatusInternalServerError, err)
				return
			}
			writeJSON(rw, http.StatusOK, samples)
		})
	})
	return r
}

type statusResponse struct {
	poller.Status
	LiveIntervals int64 `json:"live_intervals"`
}

func statusView(s poller.Status) statusResponse {
	return statusResponse{Status: s, LiveIntervals: s.LiveIntervals()}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
