package scenario

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/ppiankov/actiongate/internal/boundary"
	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/model"
)

const fixedNow = "2026-03-10T12:00:00Z"

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func parse(t *testing.T, body string) *Scenario {
	t.Helper()
	path := writeScenario(t, t.TempDir(), "s.yaml", body)
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func run(t *testing.T, body string) *RunResult {
	t.Helper()
	res, err := Run(context.Background(), parse(t, body), config.Default())
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func trade(value float64) model.Action {
	return model.Action{
		Engine: model.EngineMoney, Category: model.CategoryTrading, Type: "market_buy",
		Metadata: model.Metadata{EstimatedValue: value, Urgency: model.UrgencyNormal},
	}
}

func TestAllCasesPass(t *testing.T) {
	s := &Scenario{
		Name: "small trade",
		Now:  fixedNow,
		Cases: []Case{
			{Action: trade(10), Expect: "auto_execute", ExpectRisk: "low"},
		},
	}
	res, err := Run(context.Background(), s, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 0 || res.Passed != 1 {
		t.Errorf("expected 1 pass, got %+v", res.Cases)
	}
}

func TestFailedAssertionDetected(t *testing.T) {
	s := &Scenario{
		Name:  "wrong expectation",
		Now:   fixedNow,
		Cases: []Case{{Action: trade(10), Expect: "reject", ExpectViolation: boundary.ViolationDailyTradeCap}},
	}
	res, err := Run(context.Background(), s, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", res.Failed)
	}
	if got := res.Cases[0].Failures; len(got) != 2 {
		t.Errorf("expected outcome and violation failures, got %v", got)
	}
}

func TestSeedAndOverlay(t *testing.T) {
	res := run(t, `
name: trade cap
now: 2026-03-10T12:00:00Z
boundaries:
  trading:
    max_daily_trades: 3
seed:
  - {bucket: trading, count: 3, spend: 30}
cases:
  - action: {engine: money, category: trading, type: market_buy, metadata: {estimated_value: 10}}
    expect: queue_approval
    expect_violation: daily trade cap exceeded
`)
	if res.Failed != 0 {
		t.Errorf("unexpected failures: %+v", res.Cases)
	}
}

func TestRecordCarriesUsageForward(t *testing.T) {
	res := run(t, `
name: cap of one
now: 2026-03-10T12:00:00Z
boundaries:
  trading: {max_daily_trades: 1}
cases:
  - action: {engine: money, category: trading, type: market_buy, metadata: {estimated_value: 10}}
    expect: auto_execute
    record: true
  - action: {engine: money, category: trading, type: market_buy, metadata: {estimated_value: 10}}
    expect: queue_approval
    expect_violation: daily trade cap exceeded
`)
	if res.Failed != 0 {
		t.Errorf("unexpected failures: %+v", res.Cases)
	}
	if res.Cases[0].ActionID != "case-1" {
		t.Errorf("expected generated id, got %q", res.Cases[0].ActionID)
	}
}

func TestRecordSkipsQueuedDecisions(t *testing.T) {
	res := run(t, `
name: queued is not executed
now: 2026-03-10T12:00:00Z
boundaries:
  trading: {max_daily_trades: 2, max_trade_value: 5}
cases:
  - action: {engine: money, category: trading, type: market_buy, metadata: {estimated_value: 1}}
    expect: auto_execute
    record: true
  - action: {engine: money, category: trading, type: market_buy, metadata: {estimated_value: 10}}
    expect: queue_approval
    expect_violation: per-trade value cap exceeded
    record: true
  - action: {engine: money, category: trading, type: market_buy, metadata: {estimated_value: 1}}
    expect: auto_execute
`)
	if res.Failed != 0 {
		t.Errorf("unexpected failures: %+v", res.Cases)
	}
}

func TestSeedDaysAgoFeedsWeeklyBlogCap(t *testing.T) {
	res := run(t, `
name: blog window
now: 2026-03-10T12:00:00Z
seed:
  - {bucket: blog, count: 2, days_ago: 3}
  - {bucket: blog, count: 1, days_ago: 6}
  - {bucket: blog, count: 5, days_ago: 7}
cases:
  - action: {engine: growth, category: content, type: publish_blog}
    expect: queue_approval
`)
	if !slices.Contains(res.Cases[0].Violations, boundary.ViolationWeeklyBlogCap) {
		t.Errorf("expected weekly blog cap from seeded history, got %v", res.Cases[0].Violations)
	}
}

func TestLevelOverrideAndEscalation(t *testing.T) {
	res := run(t, `
name: keys
now: 2026-03-10T12:00:00Z
autonomy_level: 4
cases:
  - action: {engine: orchestrator, category: configuration, type: change_api_keys, metadata: {urgency: critical}}
    expect: escalate
    expect_risk: critical
`)
	if res.Failed != 0 {
		t.Errorf("unexpected failures: %+v", res.Cases)
	}
}

func TestInvalidActionExpectsError(t *testing.T) {
	res := run(t, `
name: malformed
cases:
  - action: {engine: rogue, category: trading, type: market_buy}
    expect: error
  - action: {engine: rogue, category: trading, type: market_buy}
    expect: auto_execute
`)
	if !res.Cases[0].Passed {
		t.Errorf("expected error case to pass: %+v", res.Cases[0])
	}
	if res.Cases[1].Passed || res.Cases[1].Actual != ExpectError {
		t.Errorf("expected error case to fail: %+v", res.Cases[1])
	}
}

func TestSetupErrors(t *testing.T) {
	tests := map[string]string{
		"negative overlay": "name: x\nboundaries:\n  trading: {max_daily_trades: -1}\ncases: []\n",
		"unknown bucket":   "name: x\nseed: [{bucket: payments, count: 1}]\ncases: []\n",
		"negative seed":    "name: x\nseed: [{bucket: trading, count: -1}]\ncases: []\n",
		"bad clock":        "name: x\nnow: yesterday\ncases: []\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Run(context.Background(), parse(t, body), config.Default()); err == nil {
				t.Error("expected setup error")
			}
		})
	}
}

func TestOverlayDoesNotLeakIntoConfig(t *testing.T) {
	cfg := config.Default()
	s := parse(t, "name: x\nboundaries:\n  trading: {max_daily_trades: 1}\ncases: []\n")
	if _, err := Run(context.Background(), s, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Boundaries.Trading.MaxDailyTrades != 20 {
		t.Errorf("scenario overlay mutated config: %d", cfg.Boundaries.Trading.MaxDailyTrades)
	}
}

func TestLoadAndRunFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "test.yaml", `
name: "file test"
now: 2026-03-10T12:00:00Z
cases:
  - action: {engine: money, category: trading, type: market_buy, metadata: {estimated_value: 10}}
    expect: auto_execute
`)
	cfgPath := writeScenario(t, dir, "config.yaml", "autonomy_level: 1\n")

	res, err := LoadAndRun(context.Background(), path, filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 0 || res.File != path {
		t.Errorf("unexpected result %+v", res)
	}

	// Level 1 queues everything, so the same file now fails.
	res, err = LoadAndRun(context.Background(), path, cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Cases[0].Actual != "queue_approval" {
		t.Errorf("expected level-1 queue, got %+v", res.Cases)
	}
}

func TestInvalidScenarioYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "bad.yaml", ":::not yaml\x00")
	if _, err := LoadAndRun(context.Background(), path, ""); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEmptyCasesList(t *testing.T) {
	res, err := Run(context.Background(), &Scenario{Name: "empty"}, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 || res.Failed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "ok", Total: 1, Passed: 1},
		{Name: "bad", Total: 2, Passed: 1, Failed: 1, Cases: []CaseResult{
			{Index: 2, ActionID: "case-2", Type: "market_buy", Failures: []string{"expected reject, got auto_execute"}},
		}},
	}
	out := FormatText(results)
	for _, want := range []string{
		"Checking 2 scenario files...",
		"PASS  ok (1/1)",
		"FAIL  bad (1/2)",
		"case 2: case-2 market_buy",
		"expected reject, got auto_execute",
		"2 of 3 cases passed. 1 of 2 scenarios failed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "x", Total: 0}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "x"`) {
		t.Errorf("unexpected JSON %s", out)
	}
}

func TestLoadRejectsUnknownExpectation(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "typo.yaml", `
name: typo
cases:
  - action: {engine: money, category: trading, type: market_buy}
    expect: allow
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), `unknown outcome "allow"`) {
		t.Errorf("expected unknown outcome error, got %v", err)
	}
}
