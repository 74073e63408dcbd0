// Package persist mirrors the latest snapshot to a local SQLite database so
// a restarted process can recover state without re-querying the upstream
// feeds. The store holds exactly one row, the most recent snapshot, and is
// strictly advisory: callers log its errors and carry on.
package persist
