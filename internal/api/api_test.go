package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/heliostat/heliostat/internal/alerts"
	"github.com/heliostat/heliostat/internal/cache"
	"github.com/heliostat/heliostat/internal/config"
	"github.com/heliostat/heliostat/internal/feed"
)

type stubRefresher struct {
	snap *feed.Snapshot
	err  error
}

func (s *stubRefresher) Refresh(ctx context.Context) (*feed.Snapshot, error) {
	return s.snap, s.err
}

func testSnapshot() *feed.Snapshot {
	return &feed.Snapshot{
		Readings: map[string]feed.Reading{
			"solar-wind-mag":       {Timestamp: "2026-08-30 12:00:00", Value: -6.2},
			"proton-flux/>=10MeV":  {Timestamp: "2026-08-30 12:00:00", Value: 0.31, Channel: ">=10MeV"},
			"proton-flux/>=50MeV":  {Timestamp: "2026-08-30 12:00:00", Value: 0.04, Channel: ">=50MeV"},
		},
		Failures:   []feed.Failure{{FeedID: "kp-index", Error: "fetch: 502"}},
		ProducedAt: time.Now(),
	}
}

func newTestAPI(t *testing.T, r cache.Refresher) http.Handler {
	t.Helper()
	eng, err := alerts.New(config.AlertsConfig{})
	if err != nil {
		t.Fatalf("alerts.New: %v", err)
	}
	return New(cache.New(r, time.Minute), eng, nil, "")
}

func doJSON(t *testing.T, h http.Handler, method, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return rec
}

func TestSnapshot_OK(t *testing.T) {
	h := newTestAPI(t, &stubRefresher{snap: testSnapshot()})

	var resp SnapshotResponse
	rec := doJSON(t, h, http.MethodGet, "/api/v1/snapshot", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if len(resp.Readings) != 3 {
		t.Errorf("readings: got %d, want 3", len(resp.Readings))
	}
	if len(resp.Failures) != 1 {
		t.Errorf("failures: got %d, want 1", len(resp.Failures))
	}
	if resp.AgeSeconds < 0 {
		t.Errorf("age: got %v", resp.AgeSeconds)
	}
}

func TestSnapshot_Unavailable(t *testing.T) {
	h := newTestAPI(t, &stubRefresher{err: context.DeadlineExceeded})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/snapshot", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no snapshot") {
		t.Errorf("body: %s", rec.Body)
	}
}

func TestReading_ByFeedAndChannel(t *testing.T) {
	h := newTestAPI(t, &stubRefresher{snap: testSnapshot()})

	var resp ReadingResponse
	rec := doJSON(t, h, http.MethodGet, "/api/v1/readings/proton-flux?channel=%3E%3D10MeV", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if resp.Key != "proton-flux/>=10MeV" {
		t.Errorf("key: got %q", resp.Key)
	}
	if resp.Reading.Value != 0.31 {
		t.Errorf("value: got %v", resp.Reading.Value)
	}
}

func TestReading_NotFound(t *testing.T) {
	h := newTestAPI(t, &stubRefresher{snap: testSnapshot()})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/readings/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

func TestHealth_EmptyThenDegraded(t *testing.T) {
	stub := &stubRefresher{snap: testSnapshot()}
	h := newTestAPI(t, stub)

	// Health never refreshes, so before any Get the cache is empty.
	var resp HealthResponse
	doJSON(t, h, http.MethodGet, "/api/v1/health", &resp)
	if resp.Status != "empty" {
		t.Fatalf("status: got %q, want empty", resp.Status)
	}

	// Populate via the snapshot endpoint; the test snapshot carries a feed
	// failure, so health reports degraded.
	doJSON(t, h, http.MethodGet, "/api/v1/snapshot", nil)

	resp = HealthResponse{}
	doJSON(t, h, http.MethodGet, "/api/v1/health", &resp)
	if resp.Status != "degraded" {
		t.Errorf("status: got %q, want degraded", resp.Status)
	}
	if resp.Readings != 3 || resp.FailedFeeds != 1 {
		t.Errorf("counts: got %d readings, %d failed", resp.Readings, resp.FailedFeeds)
	}
}

func TestRefresh_ForcesNewSnapshot(t *testing.T) {
	stub := &stubRefresher{snap: testSnapshot()}
	h := newTestAPI(t, stub)

	doJSON(t, h, http.MethodGet, "/api/v1/snapshot", nil)

	next := testSnapshot()
	next.Readings["kp-index"] = feed.Reading{Timestamp: "2026-08-30 12:05:00", Value: 4}
	next.Failures = nil
	stub.snap = next

	var resp SnapshotResponse
	rec := doJSON(t, h, http.MethodPost, "/api/v1/refresh", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if len(resp.Readings) != 4 {
		t.Errorf("readings after refresh: got %d, want 4", len(resp.Readings))
	}
}

func TestAlerts_EmptyList(t *testing.T) {
	h := newTestAPI(t, &stubRefresher{snap: testSnapshot()})

	var resp AlertsResponse
	rec := doJSON(t, h, http.MethodGet, "/api/v1/alerts", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if len(resp.Alerts) != 0 {
		t.Errorf("alerts: got %d, want 0", len(resp.Alerts))
	}
}
