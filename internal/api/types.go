package api

import (
	"time"

	"github.com/heliostat/heliostat/internal/alerts"
	"github.com/heliostat/heliostat/internal/feed"
)

// SnapshotResponse is the payload for GET /api/v1/snapshot and the WebSocket
// broadcast envelope body.
type SnapshotResponse struct {
	Readings   map[string]feed.Reading `json:"readings"`
	Failures   []feed.Failure          `json:"failures,omitempty"`
	ProducedAt time.Time               `json:"produced_at"`
	AgeSeconds float64                 `json:"age_seconds"`
}

// ReadingResponse is the payload for GET /api/v1/readings/{feed}.
type ReadingResponse struct {
	Key     string       `json:"key"`
	Reading feed.Reading `json:"reading"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string  `json:"status"` // "ok" | "degraded" | "empty"
	Readings     int     `json:"readings"`
	FailedFeeds  int     `json:"failed_feeds"`
	AgeSeconds   float64 `json:"age_seconds"`
	ActiveAlerts int     `json:"active_alerts"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Alerts []*alerts.Alert `json:"alerts"`
}
