// Package api is the HTTP read surface over the snapshot cache: the unified
// snapshot, individual readings, active alerts, a liveness summary, and a
// manual refresh trigger. It serves data the core produces and contains no
// extraction or caching logic of its own.
package api
