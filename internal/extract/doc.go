// Package extract turns raw feed payloads into normalized readings,
// tolerating dropouts (null/empty samples) near the end of the series.
//
// Every function scans backward from the most recent element for a bounded
// number of steps and returns the first element that satisfies the shape's
// validity rule. All functions are pure: no I/O, no shared state, fully
// deterministic given their input.
package extract
