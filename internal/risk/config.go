package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/ppiankov/actiongate/internal/model"
)

// ErrInvalidConfig marks a classifier configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid risk config")

// Weights are the factor weights. They are normalized by their sum,
// so only their proportions matter.
type Weights struct {
	Financial     float64 `yaml:"financial" json:"financial"`
	Reversibility float64 `yaml:"reversibility" json:"reversibility"`
	Category      float64 `yaml:"category" json:"category"`
	Urgency       float64 `yaml:"urgency" json:"urgency"`
	Visibility    float64 `yaml:"visibility" json:"visibility"`
}

func (w Weights) sum() float64 {
	return w.Financial + w.Reversibility + w.Category + w.Urgency + w.Visibility
}

// Thresholds are the upper score bounds of each level.
// score <= Safe → safe, <= Low → low, <= Medium → medium, <= High → high, else critical.
type Thresholds struct {
	Safe   float64 `yaml:"safe" json:"safe"`
	Low    float64 `yaml:"low" json:"low"`
	Medium float64 `yaml:"medium" json:"medium"`
	High   float64 `yaml:"high" json:"high"`
}

// Validate checks that the bands are ordered and inside [0, 100).
func (t Thresholds) Validate() error {
	if !(0 <= t.Safe && t.Safe < t.Low && t.Low < t.Medium && t.Medium < t.High && t.High < 100) {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= safe < low < medium < high < 100, got %+v", ErrInvalidConfig, t)
	}
	return nil
}

// UrgencyScores maps urgency to a raw factor value.
type UrgencyScores struct {
	Low      float64 `yaml:"low" json:"low"`
	Normal   float64 `yaml:"normal" json:"normal"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// ScoreFor returns the raw value for u.
func (us UrgencyScores) ScoreFor(u model.Urgency) float64 {
	switch u {
	case model.UrgencyLow:
		return us.Low
	case model.UrgencyHigh:
		return us.High
	case model.UrgencyCritical:
		return us.Critical
	default:
		return us.Normal
	}
}

// VisibilityScores maps derived visibility to a raw factor value.
type VisibilityScores struct {
	Internal float64 `yaml:"internal" json:"internal"`
	External float64 `yaml:"external" json:"external"`
	Public   float64 `yaml:"public" json:"public"`
}

// ScoreFor returns the raw value for v.
func (vs VisibilityScores) ScoreFor(v model.Visibility) float64 {
	switch v {
	case model.VisibilityPublic:
		return vs.Public
	case model.VisibilityExternal:
		return vs.External
	default:
		return vs.Internal
	}
}

// Config holds every tunable of the classifier.
type Config struct {
	Weights    Weights    `yaml:"weights" json:"weights"`
	Thresholds Thresholds `yaml:"thresholds" json:"thresholds"`

	// FinancialHalfValue is the absolute value that scores 50 on the
	// saturating financial curve 100·|v|/(|v|+half).
	FinancialHalfValue float64 `yaml:"financial_half_value" json:"financial_half_value"`

	ReversibleScore   float64 `yaml:"reversible_score" json:"reversible_score"`
	IrreversibleScore float64 `yaml:"irreversible_score" json:"irreversible_score"`

	CategoryRisk          map[model.Category]float64 `yaml:"category_risk" json:"category_risk"`
	CategoryRiskOverrides map[model.Category]float64 `yaml:"category_risk_overrides" json:"category_risk_overrides"`

	Urgency    UrgencyScores    `yaml:"urgency" json:"urgency"`
	Visibility VisibilityScores `yaml:"visibility" json:"visibility"`

	// AdditionalSafeActions are action types that always recommend auto_execute.
	AdditionalSafeActions []string `yaml:"additional_safe_actions" json:"additional_safe_actions"`

	// CriticalActionTypes are security-sensitive types whose score is
	// floored into the critical band.
	CriticalActionTypes []string `yaml:"critical_action_types" json:"critical_action_types"`

	// RejectScore is the score at or above which the recommendation is reject.
	RejectScore float64 `yaml:"reject_score" json:"reject_score"`
}

// DefaultConfig returns the built-in classifier tuning.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Financial:     0.35,
			Reversibility: 0.20,
			Category:      0.15,
			Urgency:       0.15,
			Visibility:    0.15,
		},
		Thresholds: Thresholds{
			Safe:   20,
			Low:    40,
			Medium: 60,
			High:   80,
		},
		FinancialHalfValue: 150,
		ReversibleScore:    10,
		IrreversibleScore:  80,
		CategoryRisk: map[model.Category]float64{
			model.CategoryTrading:       50,
			model.CategoryConfiguration: 40,
			model.CategoryContent:       30,
			model.CategoryOperations:    15,
		},
		Urgency: UrgencyScores{
			Low:      0,
			Normal:   25,
			High:     60,
			Critical: 100,
		},
		Visibility: VisibilityScores{
			Internal: 15,
			External: 50,
			Public:   85,
		},
		AdditionalSafeActions: []string{},
		CriticalActionTypes: []string{
			"change_api_keys",
			"rotate_credentials",
			"update_credentials",
			"modify_permissions",
			"grant_admin",
			"transfer_ownership",
			"export_private_key",
			"withdraw_all",
			"disable_safety_limits",
		},
		RejectScore: 95,
	}
}

// Validate rejects configurations that would make scoring meaningless.
// There is no silent fallback to permissive defaults.
func (c Config) Validate() error {
	w := c.Weights
	for name, v := range map[string]float64{
		"financial":     w.Financial,
		"reversibility": w.Reversibility,
		"category":      w.Category,
		"urgency":       w.Urgency,
		"visibility":    w.Visibility,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: weight %s must be >= 0, got %v", ErrInvalidConfig, name, v)
		}
	}
	if w.sum() <= 0 {
		return fmt.Errorf("%w: weights must not all be zero", ErrInvalidConfig)
	}

	t := c.Thresholds
	if err := t.Validate(); err != nil {
		return err
	}
	if c.FinancialHalfValue <= 0 {
		return fmt.Errorf("%w: financial_half_value must be > 0", ErrInvalidConfig)
	}
	if c.RejectScore <= t.High || c.RejectScore > 100 {
		return fmt.Errorf("%w: reject_score must be in (%v, 100], got %v", ErrInvalidConfig, t.High, c.RejectScore)
	}

	scores := map[string]float64{
		"reversible_score":    c.ReversibleScore,
		"irreversible_score":  c.IrreversibleScore,
		"urgency.low":         c.Urgency.Low,
		"urgency.normal":      c.Urgency.Normal,
		"urgency.high":        c.Urgency.High,
		"urgency.critical":    c.Urgency.Critical,
		"visibility.internal": c.Visibility.Internal,
		"visibility.external": c.Visibility.External,
		"visibility.public":   c.Visibility.Public,
	}
	for cat, v := range c.CategoryRisk {
		scores["category_risk."+string(cat)] = v
	}
	for cat, v := range c.CategoryRiskOverrides {
		scores["category_risk_overrides."+string(cat)] = v
	}
	for name, v := range scores {
		if v < 0 || v > 100 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s must be within [0, 100], got %v", ErrInvalidConfig, name, v)
		}
	}
	return nil
}

// categoryRisk returns the base risk of a category, honoring overrides.
func (c Config) categoryRisk(cat model.Category) float64 {
	if v, ok := c.CategoryRiskOverrides[cat]; ok {
		return v
	}
	if v, ok := c.CategoryRisk[cat]; ok {
		return v
	}
	return 100
}
