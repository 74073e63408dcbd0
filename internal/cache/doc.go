// Package cache owns the single piece of mutable shared state in the
// service: the current snapshot plus in-flight refresh coordination.
//
// A cache slot moves between four states: Empty (nothing ever produced),
// Fresh (snapshot younger than TTL), Stale (snapshot at or past TTL), and
// Refreshing (one refresh in flight, zero or more callers waiting on it).
// At most one refresh is in flight at any instant; concurrent callers during
// a miss coalesce onto that one refresh and all receive its result. A cache
// hit never blocks.
//
// When a refresh fails and a previous snapshot exists, callers get the
// previous snapshot rather than an error (stale-on-error). Only when no
// snapshot has ever been produced and no usable persisted copy exists
// does Get return ErrDataUnavailable.
package cache
