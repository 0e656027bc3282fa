// Package pipeline scores a composite operation: a DAG of tool steps.
//
// Risk that no single step exposes comes from three places: tools that
// are dangerous together, graphs too large to review as a whole, and
// sensitive data flowing into a step that reaches outside the system.
package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/risk"
)

// Factor names as they appear in assessments.
const (
	FactorCumulative  = "cumulative_tool_risk"
	FactorCombination = "dangerous_combination"
	FactorComplexity  = "complexity"
	FactorDataFlow    = "data_flow"
	FactorDeclared    = "declared_risk_level"
)

// stepRef matches "$steps.<id>" references inside step inputs.
var stepRef = regexp.MustCompile(`\$steps\.([A-Za-z0-9_-]+)`)

var (
	sensitiveMarkers    = []string{"secret", "credential", "password", "passwd", "token", "api_key", "apikey", "private_key", "pii", "ssn"}
	publicMarkers       = []string{"post", "publish", "tweet", "broadcast"}
	externalMarkers     = []string{"http", "email", "mail", "webhook", "slack", "upload", "send", "api"}
	irreversibleMarkers = []string{"delete", "drop", "transfer", "pay", "exec", "send", "post", "publish"}
	partialMarkers      = []string{"write", "update", "create", "deploy"}
	amountKeys          = []string{"amount", "value", "estimated_value", "estimatedValue"}
)

// Classifier scores pipelines. It holds only immutable configuration and
// is safe for concurrent use.
type Classifier struct {
	cfg    Config
	tools  map[string]ToolProfile
	combos [][2]string
}

// NewClassifier validates cfg and builds a Classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tools := make(map[string]ToolProfile, len(DefaultTools)+len(cfg.Tools))
	for name, p := range DefaultTools {
		tools[name] = p
	}
	for name, p := range cfg.Tools {
		tools[strings.ToLower(name)] = p
	}
	for name, v := range cfg.ToolRiskOverrides {
		p := profileFor(tools, strings.ToLower(name), cfg.DefaultToolRisk)
		p.BaseRisk = v
		tools[strings.ToLower(name)] = p
	}

	seen := make(map[[2]string]bool, len(cfg.DangerousCombinations))
	var combos [][2]string
	for _, pair := range cfg.DangerousCombinations {
		a, b := strings.ToLower(strings.TrimSpace(pair[0])), strings.ToLower(strings.TrimSpace(pair[1]))
		if b < a {
			a, b = b, a
		}
		key := [2]string{a, b}
		if !seen[key] {
			seen[key] = true
			combos = append(combos, key)
		}
	}
	return &Classifier{cfg: cfg, tools: tools, combos: combos}, nil
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Profile returns the catalogue entry for tool, inferring one from the
// tool name when the tool is unknown.
func (c *Classifier) Profile(tool string) ToolProfile {
	return profileFor(c.tools, strings.ToLower(tool), c.cfg.DefaultToolRisk)
}

func profileFor(tools map[string]ToolProfile, tool string, defaultRisk float64) ToolProfile {
	if p, ok := tools[tool]; ok {
		return p
	}
	p := ToolProfile{BaseRisk: defaultRisk, Visibility: model.VisibilityInternal, Reversibility: model.Reversible}
	switch {
	case containsAny(tool, publicMarkers):
		p.Visibility = model.VisibilityPublic
	case containsAny(tool, externalMarkers):
		p.Visibility = model.VisibilityExternal
	}
	switch {
	case containsAny(tool, irreversibleMarkers):
		p.Reversibility = model.Irreversible
	case containsAny(tool, partialMarkers):
		p.Reversibility = model.Partial
	}
	p.Sensitive = containsAny(tool, sensitiveMarkers)
	return p
}

// Classify validates p and computes its risk assessment.
func (c *Classifier) Classify(p model.Pipeline) (model.PipelineRiskAssessment, error) {
	if err := model.ValidatePipeline(p); err != nil {
		return model.PipelineRiskAssessment{}, err
	}
	cfg := c.cfg

	steps := make([]model.StepRisk, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = c.stepRisk(s)
	}

	maxScore, cumulative := cumulativeRisk(steps)
	factors := []model.RiskFactor{{
		Name:         FactorCumulative,
		Weight:       1,
		Value:        risk.Round2(cumulative),
		Contribution: risk.Round2(cumulative),
		Detail:       fmt.Sprintf("%d steps, riskiest %.2f", len(steps), maxScore),
	}}
	score := cumulative
	var constraints []string

	if pairs := c.matchCombinations(p); len(pairs) > 0 {
		// A matched pair lands at least one band above its riskiest member.
		penalty := cfg.CombinationPenalty * float64(len(pairs))
		if floor := cfg.Thresholds.MinScore(pairLevel(pairs, steps).Next()); score+penalty < floor {
			penalty = risk.Round2(floor - score)
		}
		names := make([]string, len(pairs))
		for i, pr := range pairs {
			names[i] = pr[0] + " + " + pr[1]
			constraints = append(constraints, "dangerous tool combination: "+names[i])
		}
		factors = append(factors, model.RiskFactor{
			Name: FactorCombination, Weight: 1, Value: penalty, Contribution: penalty,
			Detail: strings.Join(names, ", "),
		})
		score += penalty
	}

	depth := CalculateDependencyDepth(p)
	if cx := c.complexity(len(p.Steps), depth); cx > 0 {
		factors = append(factors, model.RiskFactor{
			Name: FactorComplexity, Weight: 1, Value: cx, Contribution: cx,
			Detail: fmt.Sprintf("%d steps (review at %d), depth %d (review at %d)",
				len(p.Steps), cfg.MaxStepsBeforeReview, depth, cfg.MaxDepthBeforeReview),
		})
		score += cx
		constraints = append(constraints, "split pipeline into reviewable stages")
	}

	if flow, ok := dataFlow(p, steps); ok {
		factors = append(factors, model.RiskFactor{
			Name: FactorDataFlow, Weight: 1, Value: cfg.DataFlowPenalty, Contribution: cfg.DataFlowPenalty,
			Detail: flow,
		})
		score += cfg.DataFlowPenalty
		constraints = append(constraints, "sensitive data reaches an external step: review data flow")
	}

	if declared := p.Metadata.RiskLevel; declared != "" {
		floor := cfg.Thresholds.MinScore(declared)
		if score < floor {
			factors = append(factors, model.RiskFactor{
				Name: FactorDeclared, Weight: 0, Value: floor, Contribution: risk.Round2(floor - score),
				Detail: "declared risk level " + string(declared),
			})
			score = floor
		}
	}

	score = risk.Round2(math.Min(100, math.Max(0, score)))
	level := cfg.Thresholds.LevelFor(score)
	impact := worstCase(steps)

	if level.AtLeast(model.RiskHigh) {
		constraints = append([]string{"requires human sign-off before execution"}, constraints...)
	}
	if impact.Reversibility == model.Irreversible {
		constraints = append(constraints, "irreversible steps: no automatic rollback")
	}
	if impact.Financial > 0 {
		constraints = append(constraints, fmt.Sprintf("financial exposure up to %.2f", impact.Financial))
	}
	if constraints == nil {
		constraints = []string{}
	}

	return model.PipelineRiskAssessment{
		Level:           level,
		Score:           score,
		Factors:         factors,
		Recommendation:  risk.Recommend(level, score, cfg.RejectScore),
		Constraints:     constraints,
		StepRisks:       steps,
		EstimatedImpact: impact,
		DependencyDepth: depth,
	}, nil
}

func (c *Classifier) stepRisk(s model.PipelineStep) model.StepRisk {
	cfg := c.cfg
	prof := c.Profile(s.Tool)
	amount := inputAmount(s.Inputs)

	w := cfg.StepWeights
	raw := w.Tool*prof.BaseRisk +
		w.Financial*risk.FinancialScore(amount, cfg.FinancialHalfValue) +
		w.Reversibility*cfg.Reversibility.ScoreFor(prof.Reversibility) +
		w.Visibility*cfg.Visibility.ScoreFor(prof.Visibility)
	score := risk.Round2(raw / w.sum())

	return model.StepRisk{
		StepID:        s.ID,
		Tool:          s.Tool,
		Score:         score,
		Level:         cfg.Thresholds.LevelFor(score),
		Financial:     amount,
		Visibility:    prof.Visibility,
		Reversibility: prof.Reversibility,
		Sensitive:     prof.Sensitive || sensitiveInputs(s.Inputs),
	}
}

// cumulativeRisk blends the riskiest step with the mean so one dangerous
// step is never averaged away.
func cumulativeRisk(steps []model.StepRisk) (maxScore, cumulative float64) {
	if len(steps) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, s := range steps {
		sum += s.Score
		maxScore = math.Max(maxScore, s.Score)
	}
	mean := sum / float64(len(steps))
	return maxScore, 0.6*maxScore + 0.4*mean
}

func (c *Classifier) matchCombinations(p model.Pipeline) [][2]string {
	present := make(map[string]int, len(p.Steps))
	for _, s := range p.Steps {
		present[strings.ToLower(s.Tool)]++
	}
	var out [][2]string
	for _, pair := range c.combos {
		if pair[0] == pair[1] {
			if present[pair[0]] >= 2 {
				out = append(out, pair)
			}
			continue
		}
		if present[pair[0]] > 0 && present[pair[1]] > 0 {
			out = append(out, pair)
		}
	}
	return out
}

// pairLevel returns the most severe step level among tools in pairs.
func pairLevel(pairs [][2]string, steps []model.StepRisk) model.RiskLevel {
	inPair := make(map[string]bool, 2*len(pairs))
	for _, pr := range pairs {
		inPair[pr[0]], inPair[pr[1]] = true, true
	}
	worst := model.RiskSafe
	for _, s := range steps {
		if inPair[strings.ToLower(s.Tool)] && s.Level.Rank() > worst.Rank() {
			worst = s.Level
		}
	}
	return worst
}

func (c *Classifier) complexity(steps, depth int) float64 {
	cfg := c.cfg
	excess := max(0, steps-cfg.MaxStepsBeforeReview) + max(0, depth-cfg.MaxDepthBeforeReview)
	return math.Min(cfg.MaxComplexityPenalty, float64(excess)*cfg.ComplexityPenalty)
}

// CalculateDependencyDepth returns the number of steps in the longest
// dependsOn chain. Independent steps have depth 1. Cycles are cut at the
// first revisit.
func CalculateDependencyDepth(p model.Pipeline) int {
	byID := make(map[string]model.PipelineStep, len(p.Steps))
	for _, s := range p.Steps {
		byID[s.ID] = s
	}
	memo := make(map[string]int, len(p.Steps))
	visiting := make(map[string]bool)

	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := memo[id]; ok {
			return d
		}
		s, ok := byID[id]
		if !ok || visiting[id] {
			return 0
		}
		visiting[id] = true
		best := 0
		for _, dep := range s.DependsOn {
			best = max(best, depth(dep))
		}
		visiting[id] = false
		memo[id] = best + 1
		return best + 1
	}

	longest := 0
	for _, s := range p.Steps {
		longest = max(longest, depth(s.ID))
	}
	return longest
}

// dataFlow reports the first sensitive step whose output reaches a step
// with external or public visibility, through dependsOn edges or
// $steps.<id> input references.
func dataFlow(p model.Pipeline, steps []model.StepRisk) (string, bool) {
	index := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		index[s.ID] = i
	}
	upstream := make([][]int, len(p.Steps))
	for i, s := range p.Steps {
		for _, id := range upstreamIDs(s) {
			if j, ok := index[id]; ok && j != i {
				upstream[i] = append(upstream[i], j)
			}
		}
	}

	for i, dst := range steps {
		if model.VisibilityRank[dst.Visibility] < model.VisibilityRank[model.VisibilityExternal] {
			continue
		}
		if dst.Sensitive {
			return fmt.Sprintf("%s (%s) sends sensitive inputs externally", dst.Tool, dst.StepID), true
		}
		seen := make(map[int]bool)
		stack := append([]int(nil), upstream[i]...)
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[j] {
				continue
			}
			seen[j] = true
			if steps[j].Sensitive {
				return fmt.Sprintf("%s (%s) feeds %s (%s)", steps[j].Tool, steps[j].StepID, dst.Tool, dst.StepID), true
			}
			stack = append(stack, upstream[j]...)
		}
	}
	return "", false
}

func upstreamIDs(s model.PipelineStep) []string {
	ids := append([]string(nil), s.DependsOn...)
	for _, text := range inputStrings(s.Inputs) {
		for _, m := range stepRef.FindAllStringSubmatch(text, -1) {
			ids = append(ids, m[1])
		}
	}
	return ids
}

func worstCase(steps []model.StepRisk) model.Impact {
	impact := model.Impact{Visibility: model.VisibilityInternal, Reversibility: model.Reversible}
	for _, s := range steps {
		impact.Financial = math.Max(impact.Financial, s.Financial)
		if model.VisibilityRank[s.Visibility] > model.VisibilityRank[impact.Visibility] {
			impact.Visibility = s.Visibility
		}
		if model.ReversibilityRank[s.Reversibility] > model.ReversibilityRank[impact.Reversibility] {
			impact.Reversibility = s.Reversibility
		}
	}
	return impact
}

// inputAmount returns the absolute monetary amount a step declares.
func inputAmount(inputs map[string]any) float64 {
	for _, key := range amountKeys {
		if v, ok := toFloat(inputs[key]); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return math.Abs(v)
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sensitiveInputs reports whether any input key or string value looks
// like a secret, credential or personal data.
func sensitiveInputs(inputs map[string]any) bool {
	for k := range inputs {
		if containsAny(strings.ToLower(k), sensitiveMarkers) {
			return true
		}
	}
	for _, text := range inputStrings(inputs) {
		if stepRef.MatchString(text) {
			continue
		}
		if containsAny(strings.ToLower(text), sensitiveMarkers) {
			return true
		}
	}
	return false
}

// inputStrings flattens every string in inputs, in key order.
func inputStrings(inputs map[string]any) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			out = append(out, val)
		case map[string]any:
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(val[k])
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		case []string:
			out = append(out, val...)
		}
	}
	walk(inputs)
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
