// Package ws pushes each newly produced snapshot to connected dashboard
// clients over WebSocket. The hub is event-driven: it broadcasts when the
// cache installs a snapshot, not on a polling interval, so clients see new
// data exactly when a refresh lands.
package ws
