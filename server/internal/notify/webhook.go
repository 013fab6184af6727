package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// sendWebhook formats ev for the given target type and posts it.
func (n *Notifier) sendWebhook(ctx context.Context, kind, url string, ev Event) error {
	var payload any
	switch kind {
	case "slack":
		payload = slackPayload(ev)
	case "teams":
		payload = teamsPayload(ev)
	case "http":
		payload = map[string]any{"alert": ev}
	default:
		return fmt.Errorf("unknown webhook type %q", kind)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.post(ctx, url, body)
}

func slackPayload(ev Event) map[string]string {
	return map[string]string{
		"text": fmt.Sprintf("*%s* [%s] %s\n%s", levelLabel(ev.Level), ev.AgentID, ev.Title, ev.Description),
	}
}

func teamsPayload(ev Event) map[string]any {
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": levelColor(ev.Level),
		"summary":    ev.Title,
		"title":      fmt.Sprintf("FleetPulse %s: %s", levelLabel(ev.Level), ev.Title),
		"text":       ev.Description,
		"sections": []map[string]any{{
			"facts": []map[string]string{
				{"name": "Fleet", "value": ev.AgentID},
				{"name": "Domain", "value": ev.Domain},
				{"name": "Health", "value": fmt.Sprintf("%.1f (%s)", ev.FleetScore, ev.FleetStatus)},
			},
		}},
	}
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func levelLabel(l types.AlertLevel) string {
	switch l {
	case types.LevelCritical:
		return "[CRITICAL]"
	case types.LevelWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func levelColor(l types.AlertLevel) string {
	switch l {
	case types.LevelCritical:
		return "FF4F6A"
	case types.LevelWarning:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
