// Package config loads the heliostat configuration from config.yaml.
//
// Config sections:
//   - server: HTTP port, optional dashboard static dir
//   - cache: snapshot TTL
//   - persist: SQLite mirror path (empty disables persistence)
//   - feeds: one entry per upstream feed, declaring its payload shape
//     and extraction parameters
//   - alerts: threshold rules and webhook delivery targets
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// re-loads the file on change and hands the new config to a callback; a
// reload that fails to parse keeps the previous config active.
package config
