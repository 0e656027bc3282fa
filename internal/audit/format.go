package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a Result as a text timeline.
func FormatTimeline(result *Result) string {
	if len(result.Entries) == 0 {
		return "No decisions found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Decisions: %s–%s UTC\n",
		formatDateTime(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		subject := e.Subject.Type
		if e.Kind == KindPipeline {
			subject = fmt.Sprintf("pipeline/%d steps", e.Subject.Steps)
		}
		tag := ""
		if len(e.Violations) > 0 {
			tag = "  [" + strings.Join(e.Violations, "; ") + "]"
		}
		if e.Fault != "" {
			tag += "  [fault]"
		}
		fmt.Fprintf(&b, "%-10s L%d %-15s %-8s %6.2f  %-24s %-20s%s\n",
			formatTimeOnly(e.Timestamp), e.AutonomyLevel, strings.ToUpper(e.Outcome),
			e.RiskLevel, e.Score, truncate(subject, 24), truncate(e.Subject.ID, 20), tag)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a Result as indented JSON.
func FormatJSON(result *Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	parts := []string{}
	for _, p := range []struct {
		n     int
		label string
	}{
		{s.AutoExecute, "auto_execute"},
		{s.QueueApproval, "queue_approval"},
		{s.Escalate, "escalate"},
		{s.Reject, "reject"},
		{s.WithViolations, "with violations"},
		{s.Faults, "faults"},
	} {
		if p.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", p.n, p.label))
		}
	}
	return fmt.Sprintf("Summary: %d decisions (%s) | Max score: %.2f\n",
		s.Total, strings.Join(parts, ", "), s.MaxScore)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
