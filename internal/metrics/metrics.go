package metrics

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metrics accumulates service counters and serves them as a Prometheus text
// exposition. The zero value is not usable; call New.
type Metrics struct {
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	cacheWaits      atomic.Int64
	refreshFailures atomic.Int64
	feedFailures    atomic.Int64

	mu         sync.Mutex
	readings   int
	failures   int
	producedAt time.Time
	now        func() time.Time
}

// New creates an empty Metrics registry.
func New() *Metrics {
	return &Metrics{now: time.Now}
}

// IncCacheHit counts a Get served from a fresh snapshot without I/O.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Add(1)
}

// IncCacheMiss counts a Get that started a refresh cycle.
func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Add(1)
}

// IncCacheWait counts a Get that coalesced onto an in-flight refresh.
func (m *Metrics) IncCacheWait() {
	if m == nil {
		return
	}
	m.cacheWaits.Add(1)
}

// IncRefreshFailure counts a refresh cycle that failed outright.
func (m *Metrics) IncRefreshFailure() {
	if m == nil {
		return
	}
	m.refreshFailures.Add(1)
}

// AddFeedFailures counts per-feed retrieval failures observed in a cycle.
func (m *Metrics) AddFeedFailures(n int) {
	if m == nil {
		return
	}
	m.feedFailures.Add(int64(n))
}

// SetSnapshot records the shape of the most recently installed snapshot.
func (m *Metrics) SetSnapshot(readings, failures int, producedAt time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.readings = readings
	m.failures = failures
	m.producedAt = producedAt
	m.mu.Unlock()
}

// Handler returns the GET /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range m.families() {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}

func (m *Metrics) families() []*dto.MetricFamily {
	m.mu.Lock()
	readings := float64(m.readings)
	failures := float64(m.failures)
	var age float64
	if !m.producedAt.IsZero() {
		age = m.now().Sub(m.producedAt).Seconds()
	}
	m.mu.Unlock()

	return []*dto.MetricFamily{
		counter("heliostat_cache_hits_total",
			"Snapshot requests served from a fresh cache entry.",
			float64(m.cacheHits.Load())),
		counter("heliostat_cache_misses_total",
			"Snapshot requests that started a refresh cycle.",
			float64(m.cacheMisses.Load())),
		counter("heliostat_cache_coalesced_total",
			"Snapshot requests that waited on an in-flight refresh.",
			float64(m.cacheWaits.Load())),
		counter("heliostat_refresh_failures_total",
			"Refresh cycles that failed outright.",
			float64(m.refreshFailures.Load())),
		counter("heliostat_feed_failures_total",
			"Individual feed retrievals that failed.",
			float64(m.feedFailures.Load())),
		gauge("heliostat_snapshot_readings",
			"Readings in the current snapshot.", readings),
		gauge("heliostat_snapshot_feed_errors",
			"Failed feeds recorded in the current snapshot.", failures),
		gauge("heliostat_snapshot_age_seconds",
			"Age of the current snapshot.", age),
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{
			{Counter: &dto.Counter{Value: &v}},
		},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: &v}},
		},
	}
}
