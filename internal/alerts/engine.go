package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heliostat/heliostat/internal/config"
	"github.com/heliostat/heliostat/internal/feed"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Severity   string     `json:"severity"`
	Condition  string     `json:"condition"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// rule couples a configured rule with its pre-parsed condition.
type rule struct {
	cfg  config.AlertRule
	cond condition
}

// Engine evaluates alert rules against snapshots and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time
}

// New creates an Engine from the alert configuration. Malformed rule
// conditions are rejected here rather than silently never firing. An Engine
// with zero rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	rules := make([]rule, 0, len(cfg.Rules))
	for _, rc := range cfg.Rules {
		cond, err := parseCondition(rc.Condition)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", rc.Name, err)
		}
		rules = append(rules, rule{cfg: rc, cond: cond})
	}
	return &Engine{
		rules:    rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}, nil
}

// Evaluate tests all configured rules against snap. Alerts that fire are
// stored and webhook delivery is triggered asynchronously. Alerts that were
// firing but whose condition is now false are resolved. A rule whose reading
// is absent from the snapshot is left in its current state; a feed dropout
// neither fires nor resolves anything.
func (e *Engine) Evaluate(snap *feed.Snapshot) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	for _, r := range e.rules {
		fires, value, ok := r.cond.eval(snap)
		if !ok {
			continue
		}

		e.mu.Lock()
		if fires {
			cooldown := r.cfg.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if _, already := e.active[r.cfg.Name]; already || now.Sub(e.lastFire[r.cfg.Name]) <= cooldown {
				e.mu.Unlock()
				continue
			}

			sev := r.cfg.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:        uuid.NewString(),
				RuleName:  r.cfg.Name,
				Severity:  sev,
				Condition: r.cfg.Condition,
				Value:     value,
				Message: fmt.Sprintf("[%s] %s fired; %s = %.2f",
					sev, r.cfg.Name, r.cfg.Condition, value),
				FiredAt: now,
				State:   "firing",
			}
			e.active[r.cfg.Name] = a
			e.lastFire[r.cfg.Name] = now
			alertCopy := *a
			e.mu.Unlock()

			slog.Info("alert fired", "rule", r.cfg.Name, "severity", sev, "value", value)
			go e.deliver(&alertCopy)
			continue
		}

		if a, firing := e.active[r.cfg.Name]; firing && a.State == "firing" {
			resolved := now
			a.State = "resolved"
			a.ResolvedAt = &resolved
			delete(e.active, r.cfg.Name)

			e.history = append(e.history, a)
			if len(e.history) > maxHistoryLen {
				e.history = e.history[len(e.history)-maxHistoryLen:]
			}
			alertCopy := *a
			e.mu.Unlock()

			slog.Info("alert resolved", "rule", r.cfg.Name)
			go e.deliver(&alertCopy)
			continue
		}
		e.mu.Unlock()
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}
