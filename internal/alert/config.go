package alert

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/actiongate/internal/event"
	"github.com/ppiankov/actiongate/internal/model"
)

// ErrInvalidConfig reports a malformed webhook destination.
var ErrInvalidConfig = errors.New("invalid alert config")

// Payload formats.
const (
	FormatGeneric   = "generic"
	FormatSlack     = "slack"
	FormatPagerDuty = "pagerduty"
)

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // generic, slack, pagerduty
	Events  []string          `yaml:"events"  json:"events"` // decision:escalated, decision:rejected, usage:fault, ...
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Validate checks the URL, format and event names.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url %q", ErrInvalidConfig, c.URL)
	}
	switch c.Format {
	case "", FormatGeneric, FormatSlack, FormatPagerDuty:
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, c.Format)
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("%w: %s has no events", ErrInvalidConfig, c.URL)
	}
	for _, e := range c.Events {
		if !event.Known(event.Type(e)) {
			return fmt.Errorf("%w: unknown event %q", ErrInvalidConfig, e)
		}
	}
	return nil
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp     string   `json:"timestamp"`
	Event         string   `json:"event"`
	DecisionID    string   `json:"decision_id"`
	Subject       string   `json:"subject"`
	SubjectType   string   `json:"subject_type"`
	Engine        string   `json:"engine,omitempty"`
	Outcome       string   `json:"outcome"`
	RiskLevel     string   `json:"risk_level"`
	Score         float64  `json:"score"`
	AutonomyLevel int      `json:"autonomy_level"`
	Violations    []string `json:"violations,omitempty"`
	Reason        string   `json:"reason"`
	Error         string   `json:"error,omitempty"`
}

// NewAlertEvent flattens a bus event into a webhook payload.
func NewAlertEvent(e event.Event) AlertEvent {
	ae := AlertEvent{
		Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		Event:     string(e.Type),
		Error:     e.Error,
	}
	switch {
	case e.Decision != nil:
		d := e.Decision
		ae.DecisionID = d.ID
		ae.Subject = d.Action.ID
		ae.SubjectType = d.Action.Type
		ae.Engine = string(d.Action.Engine)
		ae.Outcome = string(d.Outcome)
		ae.RiskLevel = string(d.Risk.Level)
		ae.Score = d.Risk.Score
		ae.AutonomyLevel = int(d.AutonomyLevel)
		ae.Violations = d.Boundary.Names()
		ae.Reason = d.Reason
	case e.Pipeline != nil:
		p := e.Pipeline
		ae.DecisionID = p.ID
		ae.Subject = p.Pipeline.ID
		ae.SubjectType = "pipeline"
		ae.Outcome = string(p.Outcome)
		ae.RiskLevel = string(p.Risk.Level)
		ae.Score = p.Risk.Score
		ae.AutonomyLevel = int(p.AutonomyLevel)
		ae.Reason = p.Reason
	}
	if len(ae.Violations) == 0 && len(e.Violations) > 0 {
		ae.Violations = violationNames(e.Violations)
	}
	return ae
}

func violationNames(vs []model.Violation) []string {
	names := make([]string, 0, len(vs))
	for _, v := range vs {
		names = append(names, v.Name)
	}
	return names
}

func (ae AlertEvent) title() string {
	s := ae.SubjectType
	if ae.Subject != "" {
		s += " " + ae.Subject
	}
	return strings.TrimSpace(s)
}
