// Package risk scores a single action from weighted, explainable factors.
//
// Classification is deterministic and pure: the same action and config
// always produce the same assessment, and nothing is read or written.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
)

// Factor names as they appear in assessments.
const (
	FactorFinancial     = "financial"
	FactorReversibility = "reversibility"
	FactorCategory      = "category"
	FactorUrgency       = "urgency"
	FactorVisibility    = "visibility"
	FactorSensitiveType = "sensitive_type"
)

// Classifier scores actions. It holds only immutable configuration
// and is safe for concurrent use.
type Classifier struct {
	cfg       Config
	safeTypes map[string]bool
	critTypes map[string]bool
}

// NewClassifier validates cfg and builds a Classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		cfg:       cfg,
		safeTypes: lowerSet(cfg.AdditionalSafeActions),
		critTypes: lowerSet(cfg.CriticalActionTypes),
	}, nil
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// IsAllowListed reports whether the action type is on the safe allow-list.
func (c *Classifier) IsAllowListed(a model.Action) bool {
	return c.safeTypes[strings.ToLower(a.Type)]
}

// IsSensitive reports whether the action type is security-sensitive.
func (c *Classifier) IsSensitive(a model.Action) bool {
	return c.critTypes[strings.ToLower(a.Type)]
}

// Classify computes the risk assessment for a. Well-formed input never
// fails; shape validation belongs to model.ValidateAction upstream.
func (c *Classifier) Classify(a model.Action) model.RiskAssessment {
	cfg := c.cfg
	total := cfg.Weights.sum()

	financial := FinancialScore(a.Metadata.EstimatedValue, cfg.FinancialHalfValue)
	reversibility := cfg.IrreversibleScore
	if a.Metadata.Reversible {
		reversibility = cfg.ReversibleScore
	}
	visibility := a.Visibility()

	factors := []model.RiskFactor{
		factor(FactorFinancial, cfg.Weights.Financial/total, financial,
			fmt.Sprintf("estimated value %.2f", math.Abs(a.Metadata.EstimatedValue))),
		factor(FactorReversibility, cfg.Weights.Reversibility/total, reversibility,
			reversibilityDetail(a.Metadata.Reversible)),
		factor(FactorCategory, cfg.Weights.Category/total, cfg.categoryRisk(a.Category),
			"category "+string(a.Category)),
		factor(FactorUrgency, cfg.Weights.Urgency/total, cfg.Urgency.ScoreFor(a.Metadata.Urgency),
			"urgency "+string(a.Metadata.Urgency)),
		factor(FactorVisibility, cfg.Weights.Visibility/total, cfg.Visibility.ScoreFor(visibility),
			"visibility "+string(visibility)),
	}

	score := 0.0
	for _, f := range factors {
		score += f.Contribution
	}

	// Security-sensitive types are critical regardless of the weighted sum.
	sensitive := c.IsSensitive(a)
	if sensitive {
		floor := cfg.Thresholds.MinScore(model.RiskCritical)
		lift := math.Max(0, floor-score)
		factors = append(factors, model.RiskFactor{
			Name:         FactorSensitiveType,
			Weight:       0,
			Value:        100,
			Contribution: Round2(lift),
			Detail:       "security-sensitive action type " + a.Type,
		})
		score = math.Max(score, floor)
	}

	score = Round2(clamp(score, 0, 100))
	level := cfg.Thresholds.LevelFor(score)

	return model.RiskAssessment{
		Level:          level,
		Score:          score,
		Factors:        factors,
		Recommendation: c.recommend(a, level, score),
		Constraints:    constraints(a, level, financial, visibility, sensitive),
	}
}

func (c *Classifier) recommend(a model.Action, level model.RiskLevel, score float64) model.Outcome {
	if c.IsAllowListed(a) {
		return model.AutoExecute
	}
	return Recommend(level, score, c.cfg.RejectScore)
}

// Recommend maps a level onto the outcome a classifier suggests. Critical
// scores at or above rejectScore recommend reject.
func Recommend(level model.RiskLevel, score, rejectScore float64) model.Outcome {
	switch level {
	case model.RiskSafe, model.RiskLow:
		return model.AutoExecute
	case model.RiskMedium:
		return model.QueueApproval
	case model.RiskHigh:
		return model.Escalate
	default:
		if score >= rejectScore {
			return model.Reject
		}
		return model.Escalate
	}
}

// FinancialScore maps a signed value onto the saturating curve
// 100·|v|/(|v|+half). Only magnitude matters.
func FinancialScore(value, half float64) float64 {
	v := math.Abs(value)
	if v == 0 || half <= 0 {
		return 0
	}
	return 100 * v / (v + half)
}

// LevelFor maps a score onto a level band.
func (t Thresholds) LevelFor(score float64) model.RiskLevel {
	switch {
	case score <= t.Safe:
		return model.RiskSafe
	case score <= t.Low:
		return model.RiskLow
	case score <= t.Medium:
		return model.RiskMedium
	case score <= t.High:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

// MinScore returns the lowest integral score that lands in level.
func (t Thresholds) MinScore(level model.RiskLevel) float64 {
	switch level {
	case model.RiskSafe:
		return 0
	case model.RiskLow:
		return math.Floor(t.Safe) + 1
	case model.RiskMedium:
		return math.Floor(t.Low) + 1
	case model.RiskHigh:
		return math.Floor(t.Medium) + 1
	default:
		return math.Floor(t.High) + 1
	}
}

func constraints(a model.Action, level model.RiskLevel, financial float64, vis model.Visibility, sensitive bool) []string {
	out := []string{}
	if level.AtLeast(model.RiskHigh) {
		out = append(out, "requires human sign-off before execution")
	}
	if sensitive {
		out = append(out, "security-sensitive change: two-person review")
	}
	switch a.Category {
	case model.CategoryTrading:
		if level.AtLeast(model.RiskMedium) {
			out = append(out, "requires stop-loss")
		}
		if financial >= 50 {
			out = append(out, "position size capped at per-trade limit")
		}
	case model.CategoryContent:
		if vis == model.VisibilityPublic {
			out = append(out, "requires content review before publishing")
		}
	case model.CategoryConfiguration:
		out = append(out, "snapshot configuration before change")
	case model.CategoryOperations:
		if a.IsDeployment() {
			out = append(out, "deploy behind a rollback plan")
		}
	}
	if a.Category != model.CategoryTrading && financial >= 50 {
		out = append(out, "value capped")
	}
	if !a.Metadata.Reversible {
		out = append(out, "irreversible: no automatic rollback")
	}
	if a.Metadata.Urgency == model.UrgencyCritical {
		out = append(out, "compressed review window")
	}
	return out
}

func factor(name string, weight, value float64, detail string) model.RiskFactor {
	return model.RiskFactor{
		Name:         name,
		Weight:       Round2(weight),
		Value:        Round2(value),
		Contribution: Round2(weight * value),
		Detail:       detail,
	}
}

func reversibilityDetail(reversible bool) string {
	if reversible {
		return "reversible"
	}
	return "irreversible"
}

func lowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[strings.ToLower(s)] = true
	}
	return set
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// Round2 rounds a score to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

