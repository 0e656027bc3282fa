package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/risk"
)

// ErrInvalidConfig marks a pipeline classifier configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid pipeline config")

// ToolProfile describes what a tool does to the world.
type ToolProfile struct {
	BaseRisk      float64             `yaml:"base_risk" json:"base_risk"`
	Visibility    model.Visibility    `yaml:"visibility" json:"visibility"`
	Reversibility model.Reversibility `yaml:"reversibility" json:"reversibility"`
	// Sensitive tools touch secrets, credentials or personal data.
	Sensitive bool `yaml:"sensitive" json:"sensitive"`
}

// StepWeights weigh the per-step factors. Normalized by their sum.
type StepWeights struct {
	Tool          float64 `yaml:"tool" json:"tool"`
	Financial     float64 `yaml:"financial" json:"financial"`
	Reversibility float64 `yaml:"reversibility" json:"reversibility"`
	Visibility    float64 `yaml:"visibility" json:"visibility"`
}

func (w StepWeights) sum() float64 {
	return w.Tool + w.Financial + w.Reversibility + w.Visibility
}

// ReversibilityScores maps step reversibility to a raw factor value.
type ReversibilityScores struct {
	Reversible   float64 `yaml:"reversible" json:"reversible"`
	Partial      float64 `yaml:"partial" json:"partial"`
	Irreversible float64 `yaml:"irreversible" json:"irreversible"`
}

// ScoreFor returns the raw value for r.
func (rs ReversibilityScores) ScoreFor(r model.Reversibility) float64 {
	switch r {
	case model.Reversible:
		return rs.Reversible
	case model.Partial:
		return rs.Partial
	default:
		return rs.Irreversible
	}
}

// Config holds every tunable of the pipeline classifier.
type Config struct {
	// Tools extends or replaces entries of the built-in catalogue.
	Tools map[string]ToolProfile `yaml:"tools" json:"tools"`

	// ToolRiskOverrides replaces the base risk of specific tools.
	ToolRiskOverrides map[string]float64 `yaml:"tool_risk_overrides" json:"tool_risk_overrides"`

	// DangerousCombinations are tool pairs that add CombinationPenalty
	// when both appear in one pipeline.
	DangerousCombinations [][2]string `yaml:"dangerous_combinations" json:"dangerous_combinations"`
	CombinationPenalty    float64     `yaml:"combination_penalty" json:"combination_penalty"`

	MaxStepsBeforeReview int     `yaml:"max_steps_before_review" json:"max_steps_before_review"`
	MaxDepthBeforeReview int     `yaml:"max_depth_before_review" json:"max_depth_before_review"`
	ComplexityPenalty    float64 `yaml:"complexity_penalty" json:"complexity_penalty"`
	MaxComplexityPenalty float64 `yaml:"max_complexity_penalty" json:"max_complexity_penalty"`

	DataFlowPenalty float64 `yaml:"data_flow_penalty" json:"data_flow_penalty"`
	DefaultToolRisk float64 `yaml:"default_tool_risk" json:"default_tool_risk"`

	StepWeights        StepWeights           `yaml:"step_weights" json:"step_weights"`
	Reversibility      ReversibilityScores   `yaml:"reversibility" json:"reversibility"`
	Visibility         risk.VisibilityScores `yaml:"visibility" json:"visibility"`
	FinancialHalfValue float64               `yaml:"financial_half_value" json:"financial_half_value"`
	Thresholds         risk.Thresholds       `yaml:"thresholds" json:"thresholds"`
	RejectScore        float64               `yaml:"reject_score" json:"reject_score"`
}

// DefaultTools is the built-in tool catalogue.
var DefaultTools = map[string]ToolProfile{
	"read-file":       {BaseRisk: 15, Visibility: model.VisibilityInternal, Reversibility: model.Reversible},
	"write-file":      {BaseRisk: 35, Visibility: model.VisibilityInternal, Reversibility: model.Partial},
	"read-database":   {BaseRisk: 30, Visibility: model.VisibilityInternal, Reversibility: model.Reversible},
	"write-database":  {BaseRisk: 50, Visibility: model.VisibilityInternal, Reversibility: model.Partial},
	"read-secrets":    {BaseRisk: 80, Visibility: model.VisibilityInternal, Reversibility: model.Reversible, Sensitive: true},
	"query-pii":       {BaseRisk: 65, Visibility: model.VisibilityInternal, Reversibility: model.Reversible, Sensitive: true},
	"search-web":      {BaseRisk: 10, Visibility: model.VisibilityExternal, Reversibility: model.Reversible},
	"send-http":       {BaseRisk: 45, Visibility: model.VisibilityExternal, Reversibility: model.Partial},
	"send-email":      {BaseRisk: 50, Visibility: model.VisibilityExternal, Reversibility: model.Irreversible},
	"post-social":     {BaseRisk: 55, Visibility: model.VisibilityPublic, Reversibility: model.Irreversible},
	"publish-content": {BaseRisk: 55, Visibility: model.VisibilityPublic, Reversibility: model.Partial},
	"exec-shell":      {BaseRisk: 70, Visibility: model.VisibilityInternal, Reversibility: model.Irreversible},
	"deploy":          {BaseRisk: 60, Visibility: model.VisibilityExternal, Reversibility: model.Partial},
	"place-trade":     {BaseRisk: 70, Visibility: model.VisibilityExternal, Reversibility: model.Irreversible},
	"transfer-funds":  {BaseRisk: 85, Visibility: model.VisibilityExternal, Reversibility: model.Irreversible},
}

// DefaultConfig returns the built-in pipeline tuning.
func DefaultConfig() Config {
	rc := risk.DefaultConfig()
	return Config{
		Tools:             map[string]ToolProfile{},
		ToolRiskOverrides: map[string]float64{},
		DangerousCombinations: [][2]string{
			{"read-secrets", "send-http"},
			{"read-secrets", "send-email"},
			{"read-secrets", "post-social"},
			{"query-pii", "send-http"},
			{"query-pii", "post-social"},
			{"read-database", "send-http"},
			{"exec-shell", "send-http"},
		},
		CombinationPenalty:   25,
		MaxStepsBeforeReview: 5,
		MaxDepthBeforeReview: 3,
		ComplexityPenalty:    5,
		MaxComplexityPenalty: 25,
		DataFlowPenalty:      20,
		DefaultToolRisk:      30,
		StepWeights: StepWeights{
			Tool:          0.55,
			Financial:     0.20,
			Reversibility: 0.15,
			Visibility:    0.10,
		},
		Reversibility: ReversibilityScores{
			Reversible:   10,
			Partial:      45,
			Irreversible: 80,
		},
		Visibility:         rc.Visibility,
		FinancialHalfValue: rc.FinancialHalfValue,
		Thresholds:         rc.Thresholds,
		RejectScore:        rc.RejectScore,
	}
}

// Validate rejects configurations that would make scoring meaningless.
func (c Config) Validate() error {
	w := c.StepWeights
	for name, v := range map[string]float64{
		"step_weights.tool":          w.Tool,
		"step_weights.financial":     w.Financial,
		"step_weights.reversibility": w.Reversibility,
		"step_weights.visibility":    w.Visibility,
		"combination_penalty":        c.CombinationPenalty,
		"complexity_penalty":         c.ComplexityPenalty,
		"max_complexity_penalty":     c.MaxComplexityPenalty,
		"data_flow_penalty":          c.DataFlowPenalty,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s must be >= 0, got %v", ErrInvalidConfig, name, v)
		}
	}
	if w.sum() <= 0 {
		return fmt.Errorf("%w: step weights must not all be zero", ErrInvalidConfig)
	}
	if c.MaxStepsBeforeReview < 1 || c.MaxDepthBeforeReview < 1 {
		return fmt.Errorf("%w: max_steps_before_review and max_depth_before_review must be >= 1", ErrInvalidConfig)
	}
	if c.FinancialHalfValue <= 0 {
		return fmt.Errorf("%w: financial_half_value must be > 0", ErrInvalidConfig)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.RejectScore <= c.Thresholds.High || c.RejectScore > 100 {
		return fmt.Errorf("%w: reject_score must be in (%v, 100], got %v", ErrInvalidConfig, c.Thresholds.High, c.RejectScore)
	}

	scores := map[string]float64{
		"default_tool_risk":          c.DefaultToolRisk,
		"reversibility.reversible":   c.Reversibility.Reversible,
		"reversibility.partial":      c.Reversibility.Partial,
		"reversibility.irreversible": c.Reversibility.Irreversible,
		"visibility.internal":        c.Visibility.Internal,
		"visibility.external":        c.Visibility.External,
		"visibility.public":          c.Visibility.Public,
	}
	for tool, v := range c.ToolRiskOverrides {
		scores["tool_risk_overrides."+tool] = v
	}
	for tool, p := range c.Tools {
		scores["tools."+tool+".base_risk"] = p.BaseRisk
		if _, ok := model.VisibilityRank[p.Visibility]; !ok {
			return fmt.Errorf("%w: tools.%s: unknown visibility %q", ErrInvalidConfig, tool, p.Visibility)
		}
		if _, ok := model.ReversibilityRank[p.Reversibility]; !ok {
			return fmt.Errorf("%w: tools.%s: unknown reversibility %q", ErrInvalidConfig, tool, p.Reversibility)
		}
	}
	for name, v := range scores {
		if v < 0 || v > 100 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s must be within [0, 100], got %v", ErrInvalidConfig, name, v)
		}
	}
	for i, pair := range c.DangerousCombinations {
		if strings.TrimSpace(pair[0]) == "" || strings.TrimSpace(pair[1]) == "" {
			return fmt.Errorf("%w: dangerous_combinations[%d] has an empty tool", ErrInvalidConfig, i)
		}
	}
	return nil
}
