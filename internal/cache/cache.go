package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heliostat/heliostat/internal/feed"
	"github.com/heliostat/heliostat/internal/metrics"
)

// ErrDataUnavailable is returned by Get only when no snapshot has ever been
// produced and the refresh that was supposed to produce the first one failed.
// It is the sole error callers must handle; every other failure mode is
// absorbed into snapshot data or covered by stale fallback.
var ErrDataUnavailable = errors.New("cache: no snapshot available")

// Refresher produces a new snapshot. *aggregate.Aggregator implements it.
type Refresher interface {
	Refresh(ctx context.Context) (*feed.Snapshot, error)
}

// PersistStore mirrors snapshots to a secondary store so a restarted process
// can recover state without hitting the upstreams. Both hooks are advisory:
// their failure must never prevent a normal refresh.
type PersistStore interface {
	Load() (*feed.Snapshot, error)
	Save(*feed.Snapshot) error
}

// Option customises Cache construction.
type Option func(*Cache)

// WithPersist enables cold-start recovery from, and best-effort mirroring
// to, the given store.
func WithPersist(s PersistStore) Option {
	return func(c *Cache) { c.persist = s }
}

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics wires cache counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is a single-slot, TTL-bound snapshot cache with single-flight
// refresh coalescing. It is safe for concurrent use.
type Cache struct {
	refresher Refresher
	ttl       time.Duration
	persist   PersistStore
	metrics   *metrics.Metrics
	now       func() time.Time

	mu          sync.Mutex
	cur         *feed.Snapshot
	producedAt  time.Time
	invalidated bool
	loadTried   bool
	inflight    *refreshCall

	subs []func(*feed.Snapshot)
}

// refreshCall is one in-flight refresh. Waiters block on done and then read
// snap/err; both are written exactly once, before done closes.
type refreshCall struct {
	done chan struct{}
	snap *feed.Snapshot
	err  error
}

// New creates a Cache around refresher with the given TTL.
func New(refresher Refresher, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		refresher: refresher,
		ttl:       ttl,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnSnapshot registers fn to be called with every newly installed snapshot
// (refreshed or adopted from the persisted store). Registration is not safe
// once Get may be called; wire subscribers before serving.
func (c *Cache) OnSnapshot(fn func(*feed.Snapshot)) {
	c.subs = append(c.subs, fn)
}

// Get returns the current snapshot, refreshing it first if the slot is empty,
// stale, or invalidated. A fresh hit returns immediately without I/O. During
// a miss, concurrent callers share the single in-flight refresh and all
// receive the same snapshot.
//
// ctx cancels this caller's wait, not the refresh itself; an abandoned
// refresh still completes and installs its result for later callers.
func (c *Cache) Get(ctx context.Context) (*feed.Snapshot, error) {
	c.mu.Lock()

	if c.cur != nil && !c.invalidated && c.now().Sub(c.producedAt) < c.ttl {
		snap := c.cur
		c.mu.Unlock()
		c.metrics.IncCacheHit()
		return snap, nil
	}

	if call := c.inflight; call != nil {
		c.mu.Unlock()
		c.metrics.IncCacheWait()
		select {
		case <-call.done:
			return call.snap, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// This caller becomes the single refresher. The invalidation mark is
	// consumed here: it forces exactly one refresh, not a refresh per Get.
	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	c.invalidated = false
	prev := c.cur
	coldStart := c.cur == nil && !c.loadTried
	c.loadTried = true
	c.mu.Unlock()

	c.metrics.IncCacheMiss()
	c.runRefresh(ctx, call, prev, coldStart)
	return call.snap, call.err
}

// Invalidate forces the next Get to treat the slot as stale regardless of
// age. The existing snapshot is kept, so stale-on-error fallback still has
// something to fall back to if the forced refresh fails.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.invalidated = true
	c.mu.Unlock()
	slog.Debug("cache: invalidated")
}

// Current returns the currently installed snapshot without triggering a
// refresh, along with its age. The liveness endpoint uses it.
func (c *Cache) Current() (*feed.Snapshot, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return nil, 0, false
	}
	return c.cur, c.now().Sub(c.producedAt), true
}

// runRefresh executes one refresh as the single-flight owner and publishes
// the outcome to call before waking waiters.
func (c *Cache) runRefresh(ctx context.Context, call *refreshCall, prev *feed.Snapshot, coldStart bool) {
	defer close(call.done)

	var (
		snap    *feed.Snapshot
		err     error
		adopted bool
	)

	// Cold-start recovery: before contacting upstreams, try the persisted
	// copy. A copy still within TTL is adopted directly; an expired one is
	// kept only as fallback material for a failed first refresh.
	if coldStart && c.persist != nil {
		switch persisted, lerr := c.persist.Load(); {
		case lerr != nil:
			slog.Warn("cache: persisted snapshot load failed", "err", lerr)
		case persisted == nil:
			// Nothing persisted yet.
		case c.now().Sub(persisted.ProducedAt) < c.ttl:
			snap, adopted = persisted, true
			slog.Info("cache: adopted persisted snapshot",
				"produced_at", persisted.ProducedAt,
				"readings", len(persisted.Readings),
			)
		default:
			slog.Info("cache: persisted snapshot expired, refreshing",
				"produced_at", persisted.ProducedAt)
			prev = persisted
		}
	}

	if snap == nil {
		snap, err = c.refresher.Refresh(ctx)
	}

	if err != nil {
		c.metrics.IncRefreshFailure()
		if prev != nil {
			// Fail open: waiters get the last known-good snapshot, and the
			// slot returns to Stale so the next Get retries.
			slog.Error("cache: refresh failed, serving stale snapshot", "err", err)
			c.mu.Lock()
			c.cur = prev
			c.producedAt = prev.ProducedAt
			c.inflight = nil
			c.mu.Unlock()
			call.snap = prev
			return
		}
		slog.Error("cache: refresh failed with no snapshot to fall back on", "err", err)
		c.mu.Lock()
		c.inflight = nil
		c.mu.Unlock()
		call.err = fmt.Errorf("%w: %v", ErrDataUnavailable, err)
		return
	}

	c.mu.Lock()
	c.cur = snap
	c.producedAt = snap.ProducedAt
	c.inflight = nil
	c.mu.Unlock()

	call.snap = snap
	c.metrics.SetSnapshot(len(snap.Readings), len(snap.Failures), snap.ProducedAt)
	c.metrics.AddFeedFailures(len(snap.Failures))

	if !adopted && c.persist != nil {
		// Mirror best-effort; a slow or broken store must not delay waiters.
		go func() {
			if serr := c.persist.Save(snap); serr != nil {
				slog.Warn("cache: persisted snapshot save failed", "err", serr)
			}
		}()
	}
	for _, fn := range c.subs {
		fn(snap)
	}
}
