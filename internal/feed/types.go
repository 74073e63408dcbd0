package feed

import (
	"fmt"
	"time"
)

// Shape identifies which of the three raw payload layouts a feed delivers.
type Shape string

const (
	// ShapeTabular is a JSON array of arrays; row 0 is a header naming
	// columns, data rows are cells (number, string, or null).
	ShapeTabular Shape = "tabular"

	// ShapeRecords is a JSON array of objects. Some feeds interleave several
	// channels per timestamp (e.g. proton energy bands), distinguished by a
	// channel-label field.
	ShapeRecords Shape = "records"

	// ShapeText is a line-oriented plain-text product; comment lines begin
	// with a marker character, data lines are whitespace-delimited tokens.
	ShapeText Shape = "text"
)

// Spec describes one upstream feed. Specs are built from config at startup
// and never mutate at runtime.
type Spec struct {
	// ID uniquely identifies the feed; it keys readings and failures in the
	// Snapshot.
	ID string

	// Name is the human-readable feed name for logs and the dashboard.
	Name string

	// URL is the upstream endpoint the feed is fetched from.
	URL string

	// Shape declares which payload layout the body decodes into.
	Shape Shape

	// ValueColumn names the header column whose presence makes a tabular row
	// valid. Tabular shape only.
	ValueColumn string

	// ValueField names the record field whose presence makes a record valid.
	// Records shape only.
	ValueField string

	// TimeField names the record field carrying the sample timestamp.
	// Defaults to "time_tag".
	TimeField string

	// ChannelField and Channels configure multi-band record feeds: one
	// Reading is extracted per channel, matching records whose ChannelField
	// equals the channel's Label. Empty means no channel filtering.
	ChannelField string
	Channels     []Channel

	// MaxSteps bounds the backward validity scan. Zero means the
	// shape-specific default (5 rows for tabular, 10 records).
	MaxSteps int

	// WindowMinutes and SamplesPerMinute size the backward window for
	// channel-filtered feeds: the scan covers at least WindowMinutes of
	// samples at the feed's cadence. Zero means 5 minutes at 10 samples/min.
	WindowMinutes    int
	SamplesPerMinute int

	// CommentMarkers lists the characters that start a comment line in a
	// text feed. Defaults to "#" and ":".
	CommentMarkers []string

	// Timeout bounds one retrieval of this feed. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Channel selects one band of a multi-band feed. Label is compared byte for
// byte against the payload's channel field, so it must be the upstream's
// literal spelling (">=10 MeV", space included). Key is the identifier used
// in reading keys and alert conditions; it carries no whitespace and
// defaults to Label.
type Channel struct {
	Label string
	Key   string
}

// KeyOrLabel returns the key alias for this channel, falling back to Label.
func (c Channel) KeyOrLabel() string {
	if c.Key != "" {
		return c.Key
	}
	return c.Label
}

// Payload is the closed union of raw feed payload shapes. Exactly the three
// concrete types below implement it.
type Payload interface {
	Shape() Shape
}

// TabularRows is an ordered sequence of rows; row 0 names the columns. Cells
// are float64, string, or nil as decoded from JSON.
type TabularRows [][]any

// RecordStream is an ordered sequence of field-name → value records.
type RecordStream []map[string]any

// PlainText is an ordered sequence of raw lines.
type PlainText []string

func (TabularRows) Shape() Shape  { return ShapeTabular }
func (RecordStream) Shape() Shape { return ShapeRecords }
func (PlainText) Shape() Shape    { return ShapeText }

// Reading is the normalized result of extracting one feed (or one channel of
// a multi-band feed). Readings are immutable once produced.
type Reading struct {
	// Timestamp is the sample time as reported by the feed, or "unknown"
	// when the payload carries none.
	Timestamp string `json:"timestamp"`

	// Value is the primary numeric value of the reading.
	Value float64 `json:"value"`

	// Aux holds secondary numeric fields from the same sample, keyed by
	// column/field name.
	Aux map[string]float64 `json:"aux,omitempty"`

	// Channel is the band identifier for channel-filtered feeds: the
	// configured channel key, not the upstream label.
	Channel string `json:"channel,omitempty"`

	// Line is the original source line for text feeds.
	Line string `json:"line,omitempty"`

	// Suspect marks a tabular fallback reading: no row within the scan
	// window was valid and the very last row was surfaced regardless.
	// Consumers must re-check its fields before trusting them.
	Suspect bool `json:"suspect,omitempty"`
}

// Failure records one feed that could not be read during a refresh cycle.
type Failure struct {
	FeedID string `json:"feed_id"`
	Error  string `json:"error"`
}

// Snapshot is the aggregate of one refresh cycle: every reading obtained,
// every failure observed, and the wall-clock time of extraction. A Snapshot
// is immutable once constructed; a refresh always builds a new one.
type Snapshot struct {
	// Readings maps reading keys (see ReadingKey) to normalized readings.
	// A feed absent from the map yielded no valid reading; that is a normal
	// outcome, distinct from a retrieval failure.
	Readings map[string]Reading `json:"readings"`

	// Failures lists feeds whose retrieval failed this cycle.
	Failures []Failure `json:"failures,omitempty"`

	// ProducedAt is the wall-clock time the snapshot was assembled.
	ProducedAt time.Time `json:"produced_at"`
}

// Reading returns the reading stored under key and whether one is present.
func (s *Snapshot) Reading(key string) (Reading, bool) {
	r, ok := s.Readings[key]
	return r, ok
}

// ReadingKey builds the Snapshot key for a feed reading. Single-channel feeds
// are keyed by feed ID alone; channel-filtered feeds get one key per band.
func ReadingKey(feedID, channel string) string {
	if channel == "" {
		return feedID
	}
	return feedID + "/" + channel
}

// UnavailableError reports that one feed's retrieval failed (timeout, non-2xx
// status, transport error, or undecodable body).
type UnavailableError struct {
	FeedID string
	Cause  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("feed %s unavailable: %v", e.FeedID, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }
