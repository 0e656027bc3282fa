package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/actiongate/internal/event"
	"github.com/ppiankov/actiongate/internal/model"
)

var base = time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	at := func(s int) string { return base.Add(time.Duration(s) * time.Second).Format(TimestampFormat) }
	entries := []Entry{
		{Timestamp: at(0), Sequence: 1, Kind: KindAction, Subject: Subject{ID: "a-1", Type: "market_buy"}, Outcome: "auto_execute", RiskLevel: "low", Score: 36.9, AutonomyLevel: 2},
		{Timestamp: at(2), Sequence: 2, Kind: KindAction, Subject: Subject{ID: "a-2", Type: "market_buy"}, Outcome: "queue_approval", RiskLevel: "low", Score: 36.9, AutonomyLevel: 2,
			Violations: []string{"daily trade cap exceeded"}},
		{Timestamp: at(4), Sequence: 3, Kind: KindAction, Subject: Subject{ID: "a-3", Type: "change_api_keys"}, Outcome: "escalate", RiskLevel: "critical", Score: 81, AutonomyLevel: 2},
		{Timestamp: at(6), Sequence: 4, Kind: KindPipeline, Subject: Subject{ID: "p-1", Steps: 2}, Outcome: "escalate", RiskLevel: "critical", Score: 89.9, AutonomyLevel: 2},
		{Timestamp: at(8), Sequence: 5, Kind: KindAction, Subject: Subject{ID: "a-1", Type: "market_buy"}, Outcome: "queue_approval", RiskLevel: "low", Score: 36.9, AutonomyLevel: 2,
			Violations: []string{"usage store unavailable"}, Fault: "redis down"},
	}
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestQueryAll(t *testing.T) {
	res, err := Query(writeTestLog(t), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	s := res.Summary
	if s.Total != 5 || s.AutoExecute != 1 || s.QueueApproval != 2 || s.Escalate != 2 || s.Reject != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.WithViolations != 2 || s.Faults != 1 {
		t.Errorf("expected 2 with violations and 1 fault, got %+v", s)
	}
	if s.MaxScore != 89.9 {
		t.Errorf("expected max score 89.9, got %.2f", s.MaxScore)
	}
}

func TestQueryFilters(t *testing.T) {
	path := writeTestLog(t)
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"outcome", Filter{Outcome: model.Escalate}, 2},
		{"kind", Filter{Kind: KindPipeline}, 1},
		{"subject", Filter{SubjectID: "a-1"}, 2},
		{"from", Filter{From: base.Add(5 * time.Second)}, 2},
		{"to", Filter{To: base.Add(3 * time.Second)}, 2},
		{"last", Filter{Last: 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Query(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Entries) != tt.want {
				t.Errorf("expected %d entries, got %d", tt.want, len(res.Entries))
			}
		})
	}

	res, _ := Query(path, Filter{Last: 1})
	if res.Entries[0].Sequence != 5 {
		t.Errorf("Last should keep the newest entries, got seq %d", res.Entries[0].Sequence)
	}
}

func TestQueryMissingFile(t *testing.T) {
	if _, err := Query(filepath.Join(t.TempDir(), "nope.jsonl"), Filter{}); err == nil {
		t.Error("expected error for missing log")
	}
}

func TestFormatTimeline(t *testing.T) {
	res, err := Query(writeTestLog(t), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	out := FormatTimeline(res)
	for _, want := range []string{
		"Decisions: 2026-01-15 14:00:00",
		"ESCALATE",
		"pipeline/2 steps",
		"[daily trade cap exceeded]",
		"[fault]",
		"Summary: 5 decisions (1 auto_execute, 2 queue_approval, 2 escalate, 2 with violations, 1 faults)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if got := FormatTimeline(&Result{}); got != "No decisions found.\n" {
		t.Errorf("unexpected empty output %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	res, _ := Query(writeTestLog(t), Filter{Kind: KindPipeline})
	out, err := FormatJSON(res)
	if err != nil {
		t.Fatal(err)
	}
	var parsed Result
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Summary.Total != 1 || parsed.Entries[0].Subject.ID != "p-1" {
		t.Errorf("unexpected round trip %+v", parsed)
	}
}

func TestDrainRecordsDecisions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drain.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	bus := event.NewBus(nil)
	sub := bus.Subscribe(16)
	done := make(chan error, 1)
	go func() { done <- Drain(context.Background(), sub, log, func() string { return "sha256:cfg" }, nil) }()

	d := model.Decision{
		ID: "d-1", Sequence: 1, Timestamp: base,
		Action:   model.Action{ID: "a-1", Engine: model.EngineMoney, Category: model.CategoryTrading, Type: "market_buy"},
		Risk:     model.RiskAssessment{Level: model.RiskLow, Score: 36.94},
		Boundary: model.BoundaryCheckResult{Violations: []model.Violation{{Name: "daily trade cap exceeded"}}},
		Outcome:  model.QueueApproval, AutonomyLevel: model.AutonomyBounded,
	}
	bus.Publish(event.Event{Type: event.DecisionMade, Decision: &d})
	bus.Publish(event.Event{Type: event.DecisionQueued, Decision: &d})
	p := model.PipelineDecision{ID: "d-2", Sequence: 2, Timestamp: base.Add(time.Second),
		Pipeline: model.Pipeline{ID: "p-1", Steps: []model.PipelineStep{{ID: "a", Tool: "read-file"}}},
		Outcome:  model.AutoExecute}
	bus.Publish(event.Event{Type: event.PipelineAssessed, Pipeline: &p})
	bus.Close()

	if err := <-done; err != nil {
		t.Fatalf("Drain: %v", err)
	}
	log.Close()

	if r := Verify(path); !r.Valid || r.Lines != 2 {
		t.Fatalf("expected 2 valid lines, got %+v", r)
	}
	res, _ := Query(path, Filter{})
	first := res.Entries[0]
	if first.DecisionID != "d-1" || first.ConfigHash != "sha256:cfg" || len(first.Violations) != 1 {
		t.Errorf("unexpected entry %+v", first)
	}
	if res.Entries[1].Kind != KindPipeline || res.Entries[1].Subject.Steps != 1 {
		t.Errorf("unexpected pipeline entry %+v", res.Entries[1])
	}
}

func TestDrainStopsOnCancel(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "cancel.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	ctx, cancel := context.WithCancel(context.Background())
	sub := event.NewBus(nil).Subscribe(1)
	cancel()
	if err := Drain(ctx, sub, log, func() string { return "" }, nil); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
