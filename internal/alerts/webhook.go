package alerts

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// deliver sends webhook notifications for a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = e.sendSlack(url, a)
		case "teams":
			err = e.sendTeams(url, a)
		case "http":
			err = e.sendHTTP(url, a)
		default:
			slog.Warn("alerts: unknown webhook type; skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "err", err)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type, "rule", a.RuleName, "state", a.State)
		}
	}
}

// sendSlack posts an attachment carrying the rule's condition and the
// observed reading value, colored by severity.
func (e *Engine) sendSlack(url string, a *Alert) error {
	attachment := map[string]any{
		"color": "#" + severityColor(a.Severity),
		"title": fmt.Sprintf("%s %s (%s)", severityLabel(a.Severity), a.RuleName, a.State),
		"fields": []map[string]any{
			{"title": "Condition", "value": a.Condition, "short": true},
			{"title": "Observed", "value": fmt.Sprintf("%.2f", a.Value), "short": true},
		},
		"ts": a.FiredAt.Unix(),
	}
	body, _ := json.Marshal(map[string]any{
		"text":        a.Message,
		"attachments": []map[string]any{attachment},
	})
	return e.post(url, body)
}

// sendTeams posts a MessageCard with the alert broken out as facts.
func (e *Engine) sendTeams(url string, a *Alert) error {
	payload := map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("Heliostat: %s %s", a.RuleName, a.State),
		"sections": []map[string]any{{
			"facts": []map[string]string{
				{"name": "Condition", "value": a.Condition},
				{"name": "Observed", "value": fmt.Sprintf("%.2f", a.Value)},
				{"name": "Severity", "value": a.Severity},
				{"name": "Fired at", "value": a.FiredAt.UTC().Format(time.RFC3339)},
			},
			"text": a.Message,
		}},
	}
	body, _ := json.Marshal(payload)
	return e.post(url, body)
}

// sendHTTP posts the full alert as-is for generic receivers.
func (e *Engine) sendHTTP(url string, a *Alert) error {
	body, _ := json.Marshal(map[string]any{"event": a.State, "alert": a})
	return e.post(url, body)
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
