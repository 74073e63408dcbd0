package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/heliostat/heliostat/internal/extract"
	"github.com/heliostat/heliostat/internal/feed"
)

// Fetcher retrieves one feed's raw payload. *feed.Client implements it;
// tests substitute fakes.
type Fetcher interface {
	Fetch(ctx context.Context, spec feed.Spec) (feed.Payload, error)
}

// RefreshFailedError reports that the aggregation cycle itself could not run.
// It is distinct from individual feed failures, which are recorded inside the
// snapshot and never surface as errors.
type RefreshFailedError struct {
	Cause error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("refresh failed: %v", e.Cause)
}

func (e *RefreshFailedError) Unwrap() error { return e.Cause }

// Aggregator fans one refresh cycle out across all configured feeds.
type Aggregator struct {
	specs   []feed.Spec
	fetcher Fetcher
	now     func() time.Time // injectable for deterministic tests
}

// New creates an Aggregator over the given feed specs.
func New(specs []feed.Spec, fetcher Fetcher) *Aggregator {
	return &Aggregator{specs: specs, fetcher: fetcher, now: time.Now}
}

// Refresh fetches every feed concurrently, waits for all to settle, and
// assembles a snapshot from whatever arrived. A feed that fails contributes a
// failure entry; a feed whose payload holds no valid reading contributes
// nothing; both are normal. A snapshot with zero readings is still a valid
// snapshot; whether it is acceptable to serve is the cache's decision.
//
// Refresh returns a *RefreshFailedError only when the cycle itself could not
// run: the context was already dead before the first fetch, or a worker
// panicked.
func (a *Aggregator) Refresh(ctx context.Context) (*feed.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RefreshFailedError{Cause: err}
	}

	var (
		mu       sync.Mutex
		readings = make(map[string]feed.Reading)
		failures []feed.Failure
	)

	var wg conc.WaitGroup
	for _, spec := range a.specs {
		spec := spec
		wg.Go(func() {
			payload, err := a.fetcher.Fetch(ctx, spec)
			if err != nil {
				slog.Warn("aggregate: feed fetch failed", "feed", spec.ID, "err", err)
				mu.Lock()
				failures = append(failures, feed.Failure{FeedID: spec.ID, Error: err.Error()})
				mu.Unlock()
				return
			}

			extracted := extract.Extract(spec, payload)
			if len(extracted) == 0 {
				slog.Debug("aggregate: no valid reading in payload", "feed", spec.ID)
				return
			}

			mu.Lock()
			for _, r := range extracted {
				readings[feed.ReadingKey(spec.ID, r.Channel)] = r
			}
			mu.Unlock()
		})
	}
	if recovered := wg.WaitAndRecover(); recovered != nil {
		return nil, &RefreshFailedError{Cause: recovered.AsError()}
	}

	// Stable failure order keeps snapshots comparable in tests and logs.
	sort.Slice(failures, func(i, j int) bool { return failures[i].FeedID < failures[j].FeedID })

	snap := &feed.Snapshot{
		Readings:   readings,
		Failures:   failures,
		ProducedAt: a.now(),
	}
	slog.Debug("aggregate: cycle complete",
		"readings", len(snap.Readings),
		"failures", len(snap.Failures),
	)
	return snap, nil
}
