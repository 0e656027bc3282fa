package model

import "time"

// PipelineStep invokes one tool. DependsOn names steps whose outputs it consumes.
type PipelineStep struct {
	ID        string         `json:"id" yaml:"id"`
	Tool      string         `json:"tool" yaml:"tool"`
	Inputs    map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// PipelineMetadata is producer-declared information about a pipeline.
// A declared RiskLevel floors the computed score at that level's minimum.
type PipelineMetadata struct {
	RiskLevel   RiskLevel `json:"risk_level,omitempty" yaml:"risk_level,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Pipeline is a DAG of tool-invoking steps representing one composite operation.
type Pipeline struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name,omitempty" yaml:"name,omitempty"`
	Steps    []PipelineStep   `json:"steps" yaml:"steps"`
	Metadata PipelineMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Step returns the step with the given ID.
func (p Pipeline) Step(id string) (PipelineStep, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return PipelineStep{}, false
}

// Reversibility describes whether the effects of a step can be undone.
type Reversibility string

const (
	Reversible   Reversibility = "reversible"
	Partial      Reversibility = "partial"
	Irreversible Reversibility = "irreversible"
)

// ReversibilityRank orders reversibility from best to worst.
var ReversibilityRank = map[Reversibility]int{
	Reversible:   0,
	Partial:      1,
	Irreversible: 2,
}

// StepRisk is the per-step share of a pipeline assessment.
type StepRisk struct {
	StepID        string        `json:"step_id"`
	Tool          string        `json:"tool"`
	Score         float64       `json:"score"`
	Level         RiskLevel     `json:"level"`
	Financial     float64       `json:"financial"`
	Visibility    Visibility    `json:"visibility"`
	Reversibility Reversibility `json:"reversibility"`
	Sensitive     bool          `json:"sensitive"`
}

// Impact is the worst-case effect of a pipeline across all of its steps.
type Impact struct {
	Financial     float64       `json:"financial"`
	Visibility    Visibility    `json:"visibility"`
	Reversibility Reversibility `json:"reversibility"`
}

// PipelineRiskAssessment mirrors RiskAssessment for a composite operation.
type PipelineRiskAssessment struct {
	Level           RiskLevel    `json:"level"`
	Score           float64      `json:"score"`
	Factors         []RiskFactor `json:"factors"`
	Recommendation  Outcome      `json:"recommendation"`
	Constraints     []string     `json:"constraints"`
	StepRisks       []StepRisk   `json:"step_risks"`
	EstimatedImpact Impact       `json:"estimated_impact"`
	DependencyDepth int          `json:"dependency_depth"`
}

// PipelineDecision is the routing result for a pipeline.
type PipelineDecision struct {
	ID            string                 `json:"id"`
	Sequence      uint64                 `json:"sequence"`
	Pipeline      Pipeline               `json:"pipeline"`
	Risk          PipelineRiskAssessment `json:"risk"`
	Outcome       Outcome                `json:"outcome"`
	AutonomyLevel AutonomyLevel          `json:"autonomy_level"`
	Reason        string                 `json:"reason"`
	Timestamp     time.Time              `json:"timestamp"`
}
