package persist

import (
	"testing"
	"time"

	"github.com/heliostat/heliostat/internal/feed"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoad_Empty(t *testing.T) {
	s := openTest(t)
	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap != nil {
		t.Errorf("Load on empty store: got %v, want nil", snap)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := openTest(t)
	in := &feed.Snapshot{
		Readings: map[string]feed.Reading{
			"mag":             {Timestamp: "2026-03-01 12:00", Value: -7.5, Aux: map[string]float64{"bx": 1.2}},
			"protons/>=10MeV": {Timestamp: "2026-03-01 12:00", Value: 3.0, Channel: ">=10MeV"},
		},
		Failures:   []feed.Failure{{FeedID: "kp-index", Error: "unexpected status 503"}},
		ProducedAt: time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out == nil {
		t.Fatal("Load: got nil after Save")
	}
	if len(out.Readings) != 2 {
		t.Errorf("readings: got %d, want 2", len(out.Readings))
	}
	if r := out.Readings["mag"]; r.Value != -7.5 || r.Aux["bx"] != 1.2 {
		t.Errorf("mag reading: got %+v", r)
	}
	if !out.ProducedAt.Equal(in.ProducedAt) {
		t.Errorf("ProducedAt: got %v, want %v", out.ProducedAt, in.ProducedAt)
	}
	if len(out.Failures) != 1 || out.Failures[0].FeedID != "kp-index" {
		t.Errorf("failures: got %v", out.Failures)
	}
}

func TestSave_ReplacesPrevious(t *testing.T) {
	s := openTest(t)
	first := &feed.Snapshot{
		Readings:   map[string]feed.Reading{"old": {Value: 1}},
		ProducedAt: time.Now().UTC(),
	}
	second := &feed.Snapshot{
		Readings:   map[string]feed.Reading{"new": {Value: 2}},
		ProducedAt: time.Now().UTC(),
	}

	if err := s.Save(first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if err := s.Save(second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := out.Readings["new"]; !ok {
		t.Error("expected the second snapshot")
	}
	if _, ok := out.Readings["old"]; ok {
		t.Error("the first snapshot should have been replaced, not kept alongside")
	}
}

func TestOpen_CreatesParentDirs(t *testing.T) {
	path := t.TempDir() + "/nested/dir/heliostat.db"
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Save(&feed.Snapshot{ProducedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
