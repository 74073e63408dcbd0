package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	json "github.com/goccy/go-json"

	"github.com/heliostat/heliostat/internal/alerts"
	"github.com/heliostat/heliostat/internal/cache"
	"github.com/heliostat/heliostat/internal/feed"
)

// Handler serves the /api/v1/* endpoints from the snapshot cache.
type Handler struct {
	cache  *cache.Cache
	alerts *alerts.Engine
}

// New creates the API router. metricsHandler, if non-nil, is mounted at
// /metrics; uiDir, if non-empty, serves the static dashboard with an SPA
// fallback to index.html.
func New(c *cache.Cache, eng *alerts.Engine, metricsHandler http.Handler, uiDir string) http.Handler {
	h := &Handler{cache: c, alerts: eng}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", h.snapshot)
		r.Get("/readings/{feed}", h.reading)
		r.Get("/alerts", h.listAlerts)
		r.Get("/health", h.health)
		r.Post("/refresh", h.refresh)
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	if uiDir != "" {
		r.NotFound(spaHandler(uiDir))
	}
	return r
}

// snapshot returns GET /api/v1/snapshot; the unified snapshot, refreshing
// it first if stale. The only error surfaced is a 503 when no snapshot has
// ever been produced.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Get(r.Context())
	if err != nil {
		if errors.Is(err, cache.ErrDataUnavailable) {
			jsonErr(w, http.StatusServiceUnavailable, "no snapshot available yet")
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toSnapshotResponse(snap))
}

// reading returns GET /api/v1/readings/{feed}?channel=; one normalized
// reading. Multi-band feeds address a band via the channel query parameter.
func (h *Handler) reading(w http.ResponseWriter, r *http.Request) {
	snap, err := h.cache.Get(r.Context())
	if err != nil {
		jsonErr(w, http.StatusServiceUnavailable, "no snapshot available yet")
		return
	}

	key := feed.ReadingKey(chi.URLParam(r, "feed"), r.URL.Query().Get("channel"))
	reading, ok := snap.Reading(key)
	if !ok {
		jsonErr(w, http.StatusNotFound, "no reading for "+key)
		return
	}
	jsonResp(w, http.StatusOK, ReadingResponse{Key: key, Reading: reading})
}

// listAlerts returns GET /api/v1/alerts; firing plus recently resolved.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, AlertsResponse{Alerts: h.alerts.Active()})
}

// health returns GET /api/v1/health. It never triggers a refresh: liveness
// probes must not generate upstream traffic.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	snap, age, ok := h.cache.Current()
	if !ok {
		jsonResp(w, http.StatusOK, HealthResponse{Status: "empty"})
		return
	}

	resp := HealthResponse{
		Status:       "ok",
		Readings:     len(snap.Readings),
		FailedFeeds:  len(snap.Failures),
		AgeSeconds:   age.Seconds(),
		ActiveAlerts: len(h.alerts.Active()),
	}
	if len(snap.Failures) > 0 || len(snap.Readings) == 0 {
		resp.Status = "degraded"
	}
	jsonResp(w, http.StatusOK, resp)
}

// refresh handles POST /api/v1/refresh; invalidate the cache and wait for
// the forced refresh, returning the resulting snapshot.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	h.cache.Invalidate()
	snap, err := h.cache.Get(r.Context())
	if err != nil {
		jsonErr(w, http.StatusServiceUnavailable, "refresh failed: "+err.Error())
		return
	}
	jsonResp(w, http.StatusOK, toSnapshotResponse(snap))
}

// toSnapshotResponse converts a snapshot for the wire, stamping its age.
func toSnapshotResponse(snap *feed.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		Readings:   snap.Readings,
		Failures:   snap.Failures,
		ProducedAt: snap.ProducedAt,
		AgeSeconds: time.Since(snap.ProducedAt).Seconds(),
	}
}

// spaHandler serves static dashboard files with index.html as the fallback
// for unknown paths (client-side routing).
func spaHandler(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(dir + r.URL.Path); os.IsNotExist(err) {
			http.ServeFile(w, r, dir+"/index.html")
			return
		}
		fs.ServeHTTP(w, r)
	}
}

func jsonResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: response encode failed", "err", err)
	}
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, map[string]string{"error": msg})
}
