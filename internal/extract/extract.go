package extract

import (
	"strconv"
	"strings"

	"github.com/heliostat/heliostat/internal/feed"
)

// Defaults for the backward scan bounds when the feed spec leaves them unset.
const (
	DefaultTabularSteps     = 5
	DefaultRecordSteps      = 10
	DefaultWindowMinutes    = 5
	DefaultSamplesPerMinute = 10
)

// UnknownTimestamp is used when a payload carries no sample time.
const UnknownTimestamp = "unknown"

// Extract runs the extraction step(s) declared by spec against p and returns
// zero or more readings. A channel-filtered feed yields one reading per
// configured channel label; every other feed yields at most one.
func Extract(spec feed.Spec, p feed.Payload) []feed.Reading {
	switch payload := p.(type) {
	case feed.TabularRows:
		col, ok := ResolveColumn(payload, spec.ValueColumn)
		if !ok {
			return nil
		}
		if r, ok := Tabular(payload, col, spec.MaxSteps); ok {
			return []feed.Reading{r}
		}
		return nil

	case feed.RecordStream:
		if spec.ChannelField == "" {
			if r, ok := Records(payload, spec.ValueField, spec.TimeField, spec.MaxSteps); ok {
				return []feed.Reading{r}
			}
			return nil
		}
		window := spec.WindowMinutes * spec.SamplesPerMinute
		var out []feed.Reading
		for _, ch := range spec.Channels {
			if r, ok := RecordsChannel(payload, spec.ChannelField, ch, spec.ValueField, spec.TimeField, window); ok {
				out = append(out, r)
			}
		}
		return out

	case feed.PlainText:
		if r, ok := Text(payload, spec.CommentMarkers); ok {
			return []feed.Reading{r}
		}
		return nil

	default:
		return nil
	}
}

// ResolveColumn finds the index of the named column in a tabular payload's
// header row.
func ResolveColumn(rows feed.TabularRows, name string) (int, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	for i, cell := range rows[0] {
		if s, ok := cellString(cell); ok && s == name {
			return i, true
		}
	}
	return 0, false
}

// Tabular scans rows backward from the last index for at most maxSteps rows
// (default 5), skipping the header at row 0, and returns the first row whose
// designated column holds a parseable number.
//
// If no row in the window is valid, the very last row is returned regardless
// of validity with Suspect set. Callers must treat a Suspect reading's
// fields as possibly invalid. Fewer than two rows (header plus at least one
// data row) yields no reading.
func Tabular(rows feed.TabularRows, col, maxSteps int) (feed.Reading, bool) {
	if len(rows) < 2 {
		return feed.Reading{}, false
	}
	if maxSteps <= 0 {
		maxSteps = DefaultTabularSteps
	}

	floor := len(rows) - maxSteps
	if floor < 1 {
		floor = 1
	}
	for i := len(rows) - 1; i >= floor; i-- {
		if v, ok := rowValue(rows[i], col); ok {
			return tabularReading(rows, i, col, v, false), true
		}
	}

	// Tail is all dropouts: surface the last row anyway, flagged Suspect.
	last := len(rows) - 1
	v, _ := rowValue(rows[last], col)
	return tabularReading(rows, last, col, v, true), true
}

// tabularReading builds a Reading from one data row. Column 0 is assumed to
// be the time tag; every other parseable column lands in Aux keyed by its
// header name.
func tabularReading(rows feed.TabularRows, idx, col int, value float64, suspect bool) feed.Reading {
	row := rows[idx]
	r := feed.Reading{
		Timestamp: UnknownTimestamp,
		Value:     value,
		Suspect:   suspect,
	}
	if len(row) > 0 {
		if ts, ok := cellString(row[0]); ok {
			r.Timestamp = ts
		}
	}
	header := rows[0]
	for i, cell := range row {
		if i == 0 || i == col || i >= len(header) {
			continue
		}
		name, ok := cellString(header[i])
		if !ok {
			continue
		}
		if v, ok := cellFloat(cell); ok {
			if r.Aux == nil {
				r.Aux = make(map[string]float64)
			}
			r.Aux[name] = v
		}
	}
	return r
}

// Records scans recs backward for at most maxSteps records (default 10) and
// returns the first record whose valueField holds a parseable number.
func Records(recs feed.RecordStream, valueField, timeField string, maxSteps int) (feed.Reading, bool) {
	if maxSteps <= 0 {
		maxSteps = DefaultRecordSteps
	}
	floor := len(recs) - maxSteps
	if floor < 0 {
		floor = 0
	}
	for i := len(recs) - 1; i >= floor; i-- {
		if v, ok := cellFloat(recs[i][valueField]); ok {
			return recordReading(recs[i], valueField, timeField, "", v), true
		}
	}
	return feed.Reading{}, false
}

// RecordsChannel scans recs backward over a window of at most window records
// (default 5 minutes at 10 samples/minute) and returns the first record whose
// channelField equals ch.Label and whose valueField is a parseable number.
// The reading carries ch's key, not the upstream label.
//
// There is no fallback: a window with no matching valid record yields no
// reading. Returning another channel's value would be a correctness bug.
func RecordsChannel(recs feed.RecordStream, channelField string, ch feed.Channel, valueField, timeField string, window int) (feed.Reading, bool) {
	if window <= 0 {
		window = DefaultWindowMinutes * DefaultSamplesPerMinute
	}
	floor := len(recs) - window
	if floor < 0 {
		floor = 0
	}
	for i := len(recs) - 1; i >= floor; i-- {
		lbl, ok := cellString(recs[i][channelField])
		if !ok || lbl != ch.Label {
			continue
		}
		if v, ok := cellFloat(recs[i][valueField]); ok {
			return recordReading(recs[i], valueField, timeField, ch.KeyOrLabel(), v), true
		}
	}
	return feed.Reading{}, false
}

func recordReading(rec map[string]any, valueField, timeField, channel string, value float64) feed.Reading {
	if timeField == "" {
		timeField = "time_tag"
	}
	r := feed.Reading{
		Timestamp: UnknownTimestamp,
		Value:     value,
		Channel:   channel,
	}
	if ts, ok := cellString(rec[timeField]); ok {
		r.Timestamp = ts
	}
	for name, cell := range rec {
		if name == valueField || name == timeField {
			continue
		}
		if v, ok := cellFloat(cell); ok {
			if r.Aux == nil {
				r.Aux = make(map[string]float64)
			}
			r.Aux[name] = v
		}
	}
	return r
}

// Text drops blank and comment lines, scans the remaining lines backward,
// and returns a reading for the first line whose final whitespace-delimited
// token parses as a number. The reading exposes both the parsed value and
// the original line. No fallback: if no line parses, there is no reading.
func Text(lines feed.PlainText, commentMarkers []string) (feed.Reading, bool) {
	if len(commentMarkers) == 0 {
		commentMarkers = []string{"#", ":"}
	}

	data := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isComment(trimmed, commentMarkers) {
			continue
		}
		data = append(data, line)
	}

	for i := len(data) - 1; i >= 0; i-- {
		tokens := strings.Fields(data[i])
		if len(tokens) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(tokens[len(tokens)-1], 64)
		if err != nil {
			continue
		}
		return feed.Reading{
			Timestamp: UnknownTimestamp,
			Value:     v,
			Line:      data[i],
		}, true
	}
	return feed.Reading{}, false
}

func isComment(line string, markers []string) bool {
	for _, m := range markers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// rowValue reads the designated column of a tabular row. Out-of-range,
// null, empty, and non-numeric cells are all invalid; the scan just moves
// on to the previous row.
func rowValue(row []any, col int) (float64, bool) {
	if col < 0 || col >= len(row) {
		return 0, false
	}
	return cellFloat(row[col])
}

// cellFloat interprets a decoded JSON cell as a number. Feeds disagree on
// whether numeric columns arrive as JSON numbers or quoted strings, so both
// are accepted.
func cellFloat(cell any) (float64, bool) {
	switch v := cell.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// cellString interprets a decoded JSON cell as a non-empty string.
func cellString(cell any) (string, bool) {
	switch v := cell.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}
