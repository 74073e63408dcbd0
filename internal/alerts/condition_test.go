package alerts

import (
	"testing"

	"github.com/heliostat/heliostat/internal/feed"
)

func snapWith(readings map[string]feed.Reading) *feed.Snapshot {
	return &feed.Snapshot{Readings: readings}
}

func TestParseCondition(t *testing.T) {
	c, err := parseCondition("solar-wind-mag < -10")
	if err != nil {
		t.Fatalf("parseCondition: %v", err)
	}
	if c.key != "solar-wind-mag" || c.aux != "" || c.op != "<" || c.rhs != -10 {
		t.Errorf("parsed: %+v", c)
	}
}

func TestParseCondition_AuxField(t *testing.T) {
	c, err := parseCondition("solar-wind-plasma.speed > 600")
	if err != nil {
		t.Fatalf("parseCondition: %v", err)
	}
	if c.key != "solar-wind-plasma" || c.aux != "speed" {
		t.Errorf("parsed: %+v", c)
	}
}

func TestParseCondition_Rejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"kp-index >=",            // two tokens
		"kp-index >= five",       // non-numeric threshold
		"kp-index ~ 5",           // unknown operator
		"kp-index is above five", // word soup
	} {
		if _, err := parseCondition(expr); err == nil {
			t.Errorf("parseCondition(%q): expected error", expr)
		}
	}
}

func TestEval_PrimaryValue(t *testing.T) {
	c, _ := parseCondition("kp-index >= 5")
	snap := snapWith(map[string]feed.Reading{"kp-index": {Value: 6.33}})

	fires, value, ok := c.eval(snap)
	if !ok || !fires {
		t.Fatalf("eval: got (fires=%v, ok=%v), want (true, true)", fires, ok)
	}
	if value != 6.33 {
		t.Errorf("value: got %v, want 6.33", value)
	}
}

func TestEval_BelowThreshold(t *testing.T) {
	c, _ := parseCondition("kp-index >= 5")
	snap := snapWith(map[string]feed.Reading{"kp-index": {Value: 2.0}})

	fires, _, ok := c.eval(snap)
	if !ok || fires {
		t.Errorf("eval: got (fires=%v, ok=%v), want (false, true)", fires, ok)
	}
}

func TestEval_AbsentReading(t *testing.T) {
	c, _ := parseCondition("kp-index >= 5")
	snap := snapWith(map[string]feed.Reading{})

	if _, _, ok := c.eval(snap); ok {
		t.Error("absent reading must not evaluate")
	}
}

func TestEval_SuspectReadingSkipped(t *testing.T) {
	// A fallback row surfaced regardless of validity must not trip alerts.
	c, _ := parseCondition("solar-wind-mag < -10")
	snap := snapWith(map[string]feed.Reading{
		"solar-wind-mag": {Value: -99, Suspect: true},
	})

	if _, _, ok := c.eval(snap); ok {
		t.Error("suspect reading must not evaluate")
	}
}

func TestEval_AuxValue(t *testing.T) {
	c, _ := parseCondition("solar-wind-plasma.speed > 600")
	snap := snapWith(map[string]feed.Reading{
		"solar-wind-plasma": {Value: 5.2, Aux: map[string]float64{"speed": 712}},
	})

	fires, value, ok := c.eval(snap)
	if !ok || !fires || value != 712 {
		t.Errorf("eval: got (fires=%v, value=%v, ok=%v)", fires, value, ok)
	}
}

func TestEval_MissingAux(t *testing.T) {
	c, _ := parseCondition("solar-wind-plasma.speed > 600")
	snap := snapWith(map[string]feed.Reading{
		"solar-wind-plasma": {Value: 5.2},
	})

	if _, _, ok := c.eval(snap); ok {
		t.Error("missing aux field must not evaluate")
	}
}

func TestEval_ChannelKey(t *testing.T) {
	c, _ := parseCondition("proton-flux/>=10MeV > 10")
	snap := snapWith(map[string]feed.Reading{
		"proton-flux/>=10MeV": {Value: 12, Channel: ">=10MeV"},
	})

	fires, _, ok := c.eval(snap)
	if !ok || !fires {
		t.Errorf("eval on channel key: got (fires=%v, ok=%v)", fires, ok)
	}
}
