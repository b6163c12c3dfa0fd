package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	procedures := "none"
	if len(event.Procedures) > 0 {
		procedures = strings.Join(event.Procedures, ", ")
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("triagewatch: %s", strings.ToUpper(event.ThreatLevel)),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Event:* %s", event.Summary)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Priority:* %d", event.Priority)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Timeline:* %s", event.Timeline)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Procedures:* %s", procedures)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("triagewatch %s: %s", event.ThreatLevel, event.Summary),
			"severity": severityFor(event.ThreatLevel),
			"source":   "triagewatch",
			"custom_details": map[string]any{
				"event_id":      event.EventID,
				"event_type":    event.EventType,
				"priority":      event.Priority,
				"timeline":      event.Timeline,
				"procedures":    event.Procedures,
				"notifications": event.Notifications,
				"reasoning":     event.Reasoning,
			},
		},
	}
	return json.Marshal(payload)
}

// severityFor maps threat levels to PagerDuty severities.
func severityFor(level string) string {
	switch level {
	case "critical":
		return "critical"
	case "high":
		return "error"
	case "medium":
		return "warning"
	default:
		return "info"
	}
}
