package sixhats

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/risk"
)

// Exposure bands in currency units.
const (
	smallExposure = 100
	largeExposure = 1000
)

// hatFunc is one perspective. prior holds the perspectives already
// produced, in hat order; only Blue reads it.
type hatFunc func(a model.Action, ra model.RiskAssessment, prior []model.HatPerspective) model.HatPerspective

// hats is indexed by model.Hat.
var hats = [model.HatCount]hatFunc{
	model.WhiteHat:  white,
	model.RedHat:    red,
	model.BlackHat:  black,
	model.YellowHat: yellow,
	model.GreenHat:  green,
	model.BlueHat:   blue,
}

// white restates the facts and counts the gaps in them.
func white(a model.Action, ra model.RiskAssessment, _ []model.HatPerspective) model.HatPerspective {
	value := math.Abs(a.Metadata.EstimatedValue)
	points := []string{
		fmt.Sprintf("%s %s from %s", a.Category, a.Type, a.Engine),
		fmt.Sprintf("estimated value %.2f", value),
		fmt.Sprintf("reversible: %t", a.Metadata.Reversible),
		fmt.Sprintf("urgency %s", a.Metadata.Urgency),
		fmt.Sprintf("risk %s at %.2f", ra.Level, ra.Score),
	}

	var gaps []string
	if strings.TrimSpace(a.Description) == "" {
		gaps = append(gaps, "no description")
	}
	if len(a.Params) == 0 {
		gaps = append(gaps, "no parameters")
	}
	if value == 0 && a.Category == model.CategoryTrading {
		gaps = append(gaps, "trade without an estimated value")
	}
	for _, g := range gaps {
		points = append(points, "gap: "+g)
	}

	verdict := model.VerdictProceed
	analysis := "The facts needed to assess this action are present."
	switch {
	case len(gaps) >= 2:
		verdict = model.VerdictReview
		analysis = fmt.Sprintf("Too little is known to judge this action: %s.", strings.Join(gaps, ", "))
	case len(gaps) == 1:
		verdict = model.VerdictCaution
		analysis = fmt.Sprintf("Mostly complete facts, one gap: %s.", gaps[0])
	}
	return model.HatPerspective{
		Hat:       model.WhiteHat,
		Verdict:   verdict,
		Analysis:  analysis,
		KeyPoints: points,
		Score:     clampScore(80 - 20*float64(len(gaps))),
	}
}

// red is the gut reaction: the inverse of the risk score.
func red(_ model.Action, ra model.RiskAssessment, _ []model.HatPerspective) model.HatPerspective {
	p := model.HatPerspective{Hat: model.RedHat, Score: clampScore(100 - ra.Score)}
	switch ra.Level {
	case model.RiskSafe, model.RiskLow:
		p.Verdict = model.VerdictProceed
		p.Analysis = fmt.Sprintf("Feels routine at %s risk.", ra.Level)
	case model.RiskMedium, model.RiskHigh:
		p.Verdict = model.VerdictCaution
		p.Analysis = fmt.Sprintf("Uneasy: %s risk at %.2f.", ra.Level, ra.Score)
	default:
		p.Verdict = model.VerdictStop
		p.Analysis = fmt.Sprintf("Alarming: critical risk at %.2f.", ra.Score)
	}
	if f, ok := ra.DominantFactor(); ok {
		p.KeyPoints = []string{"strongest signal: " + f.Name}
	}
	return p
}

// black lists concrete ways the action can go wrong.
func black(a model.Action, ra model.RiskAssessment, _ []model.HatPerspective) model.HatPerspective {
	value := math.Abs(a.Metadata.EstimatedValue)
	irreversible := !a.Metadata.Reversible
	urgent := a.Metadata.Urgency == model.UrgencyCritical

	var modes []string
	if irreversible {
		modes = append(modes, "cannot be undone once executed")
	}
	if a.Metadata.Urgency == model.UrgencyHigh || urgent {
		modes = append(modes, "urgency compresses the review window")
	}
	if value >= largeExposure {
		modes = append(modes, fmt.Sprintf("loss exposure of %.2f", value))
	}
	switch a.Category {
	case model.CategoryTrading:
		modes = append(modes, "the market can move against the position")
	case model.CategoryContent:
		if a.Visibility() == model.VisibilityPublic {
			modes = append(modes, "public content can cause reputational damage")
		}
	case model.CategoryConfiguration:
		modes = append(modes, "a bad configuration change can lock out services")
	case model.CategoryOperations:
		if a.IsDeployment() {
			modes = append(modes, "a release can cause an outage")
		}
	}
	for _, f := range ra.Factors {
		if f.Name == risk.FactorSensitiveType {
			modes = append(modes, "security-sensitive change")
		}
	}

	verdict := model.VerdictCaution
	switch {
	case ra.Level == model.RiskCritical,
		irreversible && urgent,
		irreversible && value >= largeExposure:
		verdict = model.VerdictStop
	case len(modes) <= 1 && ra.Level == model.RiskSafe:
		verdict = model.VerdictProceed
	}

	analysis := "No concrete failure mode stands out."
	if len(modes) > 0 {
		analysis = fmt.Sprintf("%d failure modes, worst: %s.", len(modes), modes[0])
	}
	return model.HatPerspective{
		Hat:       model.BlackHat,
		Verdict:   verdict,
		Analysis:  analysis,
		KeyPoints: modes,
		Score:     clampScore(100 - ra.Score - 10*float64(len(modes))),
	}
}

// yellow frames the upside.
func yellow(a model.Action, ra model.RiskAssessment, _ []model.HatPerspective) model.HatPerspective {
	var benefits []string
	switch a.Category {
	case model.CategoryTrading:
		benefits = append(benefits, "captures a market opportunity")
	case model.CategoryContent:
		benefits = append(benefits, "grows audience and reach")
	case model.CategoryOperations:
		benefits = append(benefits, "keeps systems healthy and shipping")
	case model.CategoryConfiguration:
		benefits = append(benefits, "keeps configuration current")
	}
	if a.Metadata.Reversible {
		benefits = append(benefits, "easy to roll back")
	}
	if math.Abs(a.Metadata.EstimatedValue) < smallExposure {
		benefits = append(benefits, "small financial exposure")
	}

	verdict := model.VerdictProceed
	if ra.Level == model.RiskCritical {
		verdict = model.VerdictCaution
	}
	return model.HatPerspective{
		Hat:       model.YellowHat,
		Verdict:   verdict,
		Analysis:  fmt.Sprintf("Upside: %s.", strings.Join(benefits, ", ")),
		KeyPoints: benefits,
		Score:     clampScore(90 - 0.5*ra.Score),
	}
}

// green proposes safer ways to reach the same goal.
func green(a model.Action, _ model.RiskAssessment, _ []model.HatPerspective) model.HatPerspective {
	var alts []string
	if math.Abs(a.Metadata.EstimatedValue) > smallExposure {
		alts = append(alts, "split into smaller tranches")
	}
	if a.Metadata.Urgency == model.UrgencyHigh || a.Metadata.Urgency == model.UrgencyCritical {
		alts = append(alts, "delay to a normal review window")
	}
	if !a.Metadata.Reversible {
		alts = append(alts, "find a reversible or staged variant")
	}
	if a.Visibility() == model.VisibilityPublic {
		alts = append(alts, "draft first and publish after review")
	}
	if a.IsDeployment() {
		alts = append(alts, "roll out to a canary first")
	}

	if len(alts) == 0 {
		return model.HatPerspective{
			Hat:      model.GreenHat,
			Verdict:  model.VerdictProceed,
			Analysis: "No better alternative; the action is already minimal.",
			Score:    75,
		}
	}
	return model.HatPerspective{
		Hat:       model.GreenHat,
		Verdict:   model.VerdictReview,
		Analysis:  fmt.Sprintf("Consider: %s.", alts[0]),
		KeyPoints: alts,
		Score:     clampScore(70 - 5*float64(len(alts))),
	}
}

// blue summarizes the other five into a next step.
func blue(_ model.Action, _ model.RiskAssessment, prior []model.HatPerspective) model.HatPerspective {
	counts := map[model.Verdict]int{}
	sum := 0.0
	blackStop := false
	for _, p := range prior {
		counts[p.Verdict]++
		sum += p.Score
		if p.Hat == model.BlackHat && p.Verdict == model.VerdictStop {
			blackStop = true
		}
	}
	score := 0.0
	if len(prior) > 0 {
		score = sum / float64(len(prior))
	}

	p := model.HatPerspective{
		Hat:   model.BlueHat,
		Score: clampScore(score),
		KeyPoints: []string{
			fmt.Sprintf("proceed %d, caution %d, review %d, stop %d",
				counts[model.VerdictProceed], counts[model.VerdictCaution], counts[model.VerdictReview], counts[model.VerdictStop]),
		},
	}
	switch {
	case blackStop || counts[model.VerdictStop] >= 2:
		p.Verdict = model.VerdictStop
		p.Analysis = "Halt and hand to a human owner."
	case counts[model.VerdictCaution]+counts[model.VerdictStop] >= 2:
		p.Verdict = model.VerdictCaution
		p.Analysis = "Queue for approval with the listed constraints."
	case counts[model.VerdictReview] >= 2:
		p.Verdict = model.VerdictReview
		p.Analysis = "Rework the action before deciding."
	default:
		p.Verdict = model.VerdictProceed
		p.Analysis = "Proceed under standard monitoring."
	}
	return p
}

func clampScore(v float64) float64 {
	return math.Round(math.Min(100, math.Max(0, v))*100) / 100
}
