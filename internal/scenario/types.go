package scenario

import (
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/actiongate/internal/model"
)

// ExpectError is the expected outcome for actions the router refuses
// to route, such as malformed ones.
const ExpectError = "error"

// Seed pre-loads one usage counter before the first case runs.
type Seed struct {
	Bucket  string  `yaml:"bucket"`
	Count   int64   `yaml:"count"`
	Spend   float64 `yaml:"spend"`
	DaysAgo int     `yaml:"days_ago,omitempty"`
}

// Case is one routing assertion. With Record set, an auto_execute
// decision is recorded as executed so later cases see its usage.
type Case struct {
	Action          model.Action `yaml:"action"`
	Expect          string       `yaml:"expect"`
	ExpectViolation string       `yaml:"expect_violation,omitempty"`
	ExpectRisk      string       `yaml:"expect_risk,omitempty"`
	Record          bool         `yaml:"record,omitempty"`
}

// Scenario is a named sequence of cases sharing one usage store.
type Scenario struct {
	Name          string              `yaml:"name"`
	AutonomyLevel model.AutonomyLevel `yaml:"autonomy_level,omitempty"`
	// Boundaries overlays the configured boundaries; only keys present change.
	Boundaries yaml.Node `yaml:"boundaries,omitempty"`
	Seed       []Seed    `yaml:"seed,omitempty"`
	// Now pins the clock (RFC 3339) so date-keyed limits are reproducible.
	Now   string `yaml:"now,omitempty"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index      int      `json:"index"`
	Passed     bool     `json:"passed"`
	ActionID   string   `json:"action_id"`
	Type       string   `json:"type"`
	Expected   string   `json:"expected"`
	Actual     string   `json:"actual"`
	RiskLevel  string   `json:"risk_level,omitempty"`
	Score      float64  `json:"score"`
	Violations []string `json:"violations,omitempty"`
	Failures   []string `json:"failures,omitempty"`
	Reason     string   `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
