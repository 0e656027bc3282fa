// Package sixhats produces an advisory six-perspective deliberation for an
// action. It never changes a routing outcome.
package sixhats

import (
	"fmt"
	"sort"

	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/risk"
)

// Evaluator runs the six hats. Safe for concurrent use.
type Evaluator struct {
	classifier *risk.Classifier
}

// NewEvaluator returns an Evaluator that classifies actions with c when no
// assessment is supplied. c must not be nil.
func NewEvaluator(c *risk.Classifier) *Evaluator {
	return &Evaluator{classifier: c}
}

// Evaluate deliberates on a. A nil ra is computed with the classifier.
func (e *Evaluator) Evaluate(a model.Action, ra *model.RiskAssessment) model.SixHatsResult {
	var assessment model.RiskAssessment
	if ra != nil {
		assessment = *ra
	} else {
		assessment = e.classifier.Classify(a)
	}

	var res model.SixHatsResult
	for _, h := range model.Hats {
		res.Perspectives[h] = hats[h](a, assessment, res.Perspectives[:h])
		res.Perspectives[h].Hat = h
	}
	res.Consensus = DetermineConsensus(res.Perspectives)
	res.OverallScore = OverallScore(res.Perspectives)
	res.Recommendation = GenerateRecommendation(res)
	return res
}

// Attach returns a copy of d with its perspectives filled in.
func (e *Evaluator) Attach(d model.Decision) model.Decision {
	res := e.Evaluate(d.Action, &d.Risk)
	d.Perspectives = &res
	return d
}

// DetermineConsensus combines six verdicts. A Black Hat stop, or two stops
// from any hats, is a stop.
func DetermineConsensus(ps [model.HatCount]model.HatPerspective) model.Consensus {
	counts := map[model.Verdict]int{}
	for _, p := range ps {
		counts[p.Verdict]++
	}
	switch {
	case ps[model.BlackHat].Verdict == model.VerdictStop || counts[model.VerdictStop] >= 2:
		return model.ConsensusStop
	case counts[model.VerdictProceed] >= 5:
		return model.StrongProceed
	case counts[model.VerdictProceed] >= 4:
		return model.ConsensusProceed
	case counts[model.VerdictCaution]+counts[model.VerdictStop] >= 4:
		return model.ConsensusCaution
	default:
		return model.ConsensusMixed
	}
}

// OverallScore averages the hat scores with Black and Blue counted twice.
func OverallScore(ps [model.HatCount]model.HatPerspective) float64 {
	sum, weight := 0.0, 0.0
	for _, p := range ps {
		w := 1.0
		if p.Hat == model.BlackHat || p.Hat == model.BlueHat {
			w = 2
		}
		sum += w * p.Score
		weight += w
	}
	return risk.Round2(sum / weight)
}

// GenerateRecommendation renders a one-paragraph synthesis citing the
// consensus and the two hats that pull hardest in its direction.
func GenerateRecommendation(res model.SixHatsResult) string {
	ranked := make([]model.HatPerspective, 0, model.HatCount)
	for _, p := range res.Perspectives {
		if p.Hat != model.BlueHat {
			ranked = append(ranked, p)
		}
	}
	favorable := res.Consensus == model.StrongProceed || res.Consensus == model.ConsensusProceed
	sort.SliceStable(ranked, func(i, j int) bool {
		if favorable {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Score < ranked[j].Score
	})

	return fmt.Sprintf("%s (overall %.1f). %s hat: %s %s hat: %s Next: %s",
		res.Consensus, res.OverallScore,
		ranked[0].Hat, ranked[0].Analysis,
		ranked[1].Hat, ranked[1].Analysis,
		res.Perspectives[model.BlueHat].Analysis)
}
