// Package feed defines the static description of an upstream telemetry feed
// (Spec), the three raw payload shapes feeds deliver (TabularRows,
// RecordStream, PlainText), the normalized point-in-time Reading, and the
// Snapshot that one refresh cycle assembles from all feeds.
//
// It also provides Client, the HTTP retriever that fetches one feed within a
// bounded time and decodes the body into the shape its Spec declares. Client
// never retries; a failed feed simply contributes no reading for that cycle.
package feed
