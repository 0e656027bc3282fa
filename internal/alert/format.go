package alert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, ev AlertEvent) ([]byte, error) {
	switch format {
	case FormatSlack:
		return formatSlack(ev)
	case FormatPagerDuty:
		return formatPagerDuty(ev)
	default:
		return formatGeneric(ev)
	}
}

func formatGeneric(ev AlertEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func formatSlack(ev AlertEvent) ([]byte, error) {
	violations := "none"
	if len(ev.Violations) > 0 {
		violations = strings.Join(ev.Violations, ", ")
	}
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Subject:* %s", ev.title())},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Outcome:* %s", ev.Outcome)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %s (%.2f)", ev.RiskLevel, ev.Score)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Autonomy:* L%d", ev.AutonomyLevel)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Violations:* %s", violations)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", ev.Reason)},
	}
	if ev.Error != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Error:* %s", ev.Error)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("actiongate: %s", ev.Event),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(ev AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    ev.DecisionID,
		"payload": map[string]any{
			"summary":  fmt.Sprintf("actiongate %s: %s", ev.Event, ev.title()),
			"severity": severityFor(ev),
			"source":   "actiongate",
			"custom_details": map[string]any{
				"decision_id":    ev.DecisionID,
				"outcome":        ev.Outcome,
				"risk_level":     ev.RiskLevel,
				"score":          ev.Score,
				"autonomy_level": ev.AutonomyLevel,
				"violations":     ev.Violations,
				"reason":         ev.Reason,
				"error":          ev.Error,
			},
		},
	}
	return json.Marshal(payload)
}

// severityFor maps an outcome to a PagerDuty severity. Infrastructure
// faults page as errors whatever the outcome.
func severityFor(ev AlertEvent) string {
	if ev.Error != "" {
		return "error"
	}
	switch model.Outcome(ev.Outcome) {
	case model.Reject:
		return "critical"
	case model.Escalate:
		return "error"
	case model.QueueApproval:
		return "warning"
	default:
		return "info"
	}
}
