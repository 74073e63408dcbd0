package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/heliostat/heliostat/internal/feed"
)

// condition is one parsed rule expression.
//
// Grammar (three whitespace-separated tokens):
//
//	<reading-key> <op> <number>
//	<reading-key>.<aux-field> <op> <number>
//
// The reading key is a feed ID, or feedID/channel-key for multi-band feeds.
// Channel keys carry no whitespace (config validation enforces it), so the
// three-token split stays unambiguous.
//
//	solar-wind-mag < -10
//	kp-index >= 5
//	solar-wind-plasma.speed > 600
type condition struct {
	key string // snapshot reading key
	aux string // optional aux field; empty means the primary value
	op  string
	rhs float64
}

// parseCondition validates and compiles a rule expression. Called once at
// engine construction so malformed rules fail loudly at startup instead of
// silently never firing.
func parseCondition(expr string) (condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("condition %q: want <reading> <op> <value>", expr)
	}

	field, op, rhs := parts[0], parts[1], parts[2]
	switch op {
	case ">", ">=", "<", "<=", "==":
	default:
		return condition{}, fmt.Errorf("condition %q: unknown operator %q", expr, op)
	}

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("condition %q: threshold %q is not a number", expr, rhs)
	}

	c := condition{key: field, op: op, rhs: threshold}
	if i := strings.LastIndex(field, "."); i > 0 {
		c.key, c.aux = field[:i], field[i+1:]
	}
	return c, nil
}

// eval tests the condition against snap. ok is false when the referenced
// reading is absent or marked Suspect; a fallback row surfaced regardless
// of validity must not trip an alert.
func (c condition) eval(snap *feed.Snapshot) (fires bool, value float64, ok bool) {
	r, found := snap.Reading(c.key)
	if !found || r.Suspect {
		return false, 0, false
	}

	v := r.Value
	if c.aux != "" {
		av, present := r.Aux[c.aux]
		if !present {
			return false, 0, false
		}
		v = av
	}
	return compare(v, c.op, c.rhs), v, true
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
