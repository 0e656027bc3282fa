package audit

import (
	"errors"
	"fmt"

	"github.com/ppiankov/actiongate/internal/model"
)

// ErrMalformedEntry marks an entry no router could have produced.
var ErrMalformedEntry = errors.New("malformed decision entry")

// Entry kinds.
const (
	KindAction   = "action"
	KindPipeline = "pipeline"
)

// Subject is the routed action or pipeline, flattened.
type Subject struct {
	ID       string  `json:"id"`
	Engine   string  `json:"engine,omitempty"`
	Category string  `json:"category,omitempty"`
	Type     string  `json:"type,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Steps    int     `json:"steps,omitempty"`
}

// Entry is one line in the hash-chained JSONL audit log.
// Every field is a struct, slice or scalar (no map[string]any) so
// json.Marshal output is reproducible for hashing.
type Entry struct {
	Timestamp     string   `json:"ts"`
	Sequence      uint64   `json:"seq"`
	DecisionID    string   `json:"decision_id"`
	Kind          string   `json:"kind"`
	Subject       Subject  `json:"subject"`
	Outcome       string   `json:"outcome"`
	RiskLevel     string   `json:"risk_level"`
	Score         float64  `json:"score"`
	AutonomyLevel int      `json:"autonomy_level"`
	Violations    []string `json:"violations,omitempty"`
	Fault         string   `json:"fault,omitempty"`
	Consensus     string   `json:"consensus,omitempty"`
	Reason        string   `json:"reason"`
	ConfigHash    string   `json:"config_hash"`
	PrevHash      string   `json:"prev_hash"`
}

// FromDecision builds the entry for an action decision.
func FromDecision(d model.Decision, configHash string) Entry {
	e := Entry{
		Timestamp:  d.Timestamp.UTC().Format(TimestampFormat),
		Sequence:   d.Sequence,
		DecisionID: d.ID,
		Kind:       KindAction,
		Subject: Subject{
			ID:       d.Action.ID,
			Engine:   string(d.Action.Engine),
			Category: string(d.Action.Category),
			Type:     d.Action.Type,
			Value:    d.Action.Metadata.EstimatedValue,
		},
		Outcome:       string(d.Outcome),
		RiskLevel:     string(d.Risk.Level),
		Score:         d.Risk.Score,
		AutonomyLevel: int(d.AutonomyLevel),
		Violations:    d.Boundary.Names(),
		Fault:         d.Fault,
		Reason:        d.Reason,
		ConfigHash:    configHash,
	}
	if d.Perspectives != nil {
		e.Consensus = string(d.Perspectives.Consensus)
	}
	return e
}

// FromPipeline builds the entry for a pipeline decision.
func FromPipeline(d model.PipelineDecision, configHash string) Entry {
	return Entry{
		Timestamp:  d.Timestamp.UTC().Format(TimestampFormat),
		Sequence:   d.Sequence,
		DecisionID: d.ID,
		Kind:       KindPipeline,
		Subject: Subject{
			ID:    d.Pipeline.ID,
			Type:  d.Pipeline.Name,
			Value: d.Risk.EstimatedImpact.Financial,
			Steps: len(d.Pipeline.Steps),
		},
		Outcome:       string(d.Outcome),
		RiskLevel:     string(d.Risk.Level),
		Score:         d.Risk.Score,
		AutonomyLevel: int(d.AutonomyLevel),
		Reason:        d.Reason,
		ConfigHash:    configHash,
	}
}

// Check rejects entries that contradict the routing policy: unknown kinds,
// outcomes or levels, an auto_execute that carries violations, and a
// critical risk that was not escalated or rejected.
func (e Entry) Check() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrMalformedEntry, fmt.Sprintf(format, args...))
	}
	if e.Kind != KindAction && e.Kind != KindPipeline {
		return bad("unknown kind %q", e.Kind)
	}
	out, err := model.ParseOutcome(e.Outcome)
	if err != nil {
		return bad("%v", err)
	}
	rl := model.RiskLevel(e.RiskLevel)
	if !rl.Valid() {
		return bad("unknown risk level %q", e.RiskLevel)
	}
	if !model.AutonomyLevel(e.AutonomyLevel).Valid() {
		return bad("autonomy level %d out of range", e.AutonomyLevel)
	}
	if e.Fault != "" && len(e.Violations) == 0 {
		return bad("fault without a violation")
	}
	if out == model.AutoExecute && len(e.Violations) > 0 {
		return bad("auto_execute with %d violations", len(e.Violations))
	}
	if rl == model.RiskCritical && out.Severity() < model.Escalate.Severity() {
		return bad("critical risk routed to %s", out)
	}
	return nil
}
