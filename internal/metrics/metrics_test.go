package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestHandler_Counters(t *testing.T) {
	m := New()
	m.IncCacheHit()
	m.IncCacheHit()
	m.IncCacheMiss()
	m.IncCacheWait()
	m.IncRefreshFailure()
	m.AddFeedFailures(3)

	body := scrape(t, m)
	for _, want := range []string{
		"heliostat_cache_hits_total 2",
		"heliostat_cache_misses_total 1",
		"heliostat_cache_coalesced_total 1",
		"heliostat_refresh_failures_total 1",
		"heliostat_feed_failures_total 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
}

func TestHandler_SnapshotGauges(t *testing.T) {
	m := New()
	produced := time.Now().Add(-90 * time.Second)
	m.now = func() time.Time { return produced.Add(90 * time.Second) }
	m.SetSnapshot(12, 1, produced)

	body := scrape(t, m)
	for _, want := range []string{
		"heliostat_snapshot_readings 12",
		"heliostat_snapshot_feed_errors 1",
		"heliostat_snapshot_age_seconds 90",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q:\n%s", want, body)
		}
	}
}

func TestHandler_ZeroBeforeFirstSnapshot(t *testing.T) {
	body := scrape(t, New())
	if !strings.Contains(body, "heliostat_snapshot_age_seconds 0") {
		t.Errorf("expected zero age before first snapshot:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE heliostat_cache_hits_total counter") {
		t.Errorf("expected TYPE line:\n%s", body)
	}
}

// Nil-safety lets callers wire metrics optionally without guarding each call.
func TestNilReceiver(t *testing.T) {
	var m *Metrics
	m.IncCacheHit()
	m.IncCacheMiss()
	m.IncCacheWait()
	m.IncRefreshFailure()
	m.AddFeedFailures(2)
	m.SetSnapshot(1, 0, time.Now())
}
