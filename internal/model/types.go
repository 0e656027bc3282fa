package model

import (
	"strings"
	"time"
)

// Engine identifies the upstream producer of an action.
type Engine string

const (
	EngineMoney        Engine = "money"
	EngineGrowth       Engine = "growth"
	EngineProduct      Engine = "product"
	EngineOrchestrator Engine = "orchestrator"
)

// Category is the broad operational class of an action.
type Category string

const (
	CategoryTrading       Category = "trading"
	CategoryContent       Category = "content"
	CategoryOperations    Category = "operations"
	CategoryConfiguration Category = "configuration"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryTrading,
	CategoryContent,
	CategoryOperations,
	CategoryConfiguration,
}

// Urgency raises risk because it compresses review time.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Visibility is how far outside the system the effect of an action reaches.
type Visibility string

const (
	VisibilityInternal Visibility = "internal"
	VisibilityExternal Visibility = "external"
	VisibilityPublic   Visibility = "public"
)

// VisibilityRank maps visibility to a comparable integer for worst-case aggregation.
var VisibilityRank = map[Visibility]int{
	VisibilityInternal: 0,
	VisibilityExternal: 1,
	VisibilityPublic:   2,
}

// Metadata carries the producer's estimates about an action.
type Metadata struct {
	EstimatedValue float64 `json:"estimated_value" yaml:"estimated_value"`
	Reversible     bool    `json:"reversible" yaml:"reversible"`
	Urgency        Urgency `json:"urgency" yaml:"urgency"`
}

// Action is one candidate operation proposed by an upstream engine.
// The engine never mutates an Action.
type Action struct {
	ID          string         `json:"id" yaml:"id"`
	Engine      Engine         `json:"engine" yaml:"engine"`
	Category    Category       `json:"category" yaml:"category"`
	Type        string         `json:"type" yaml:"type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Params      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Metadata    Metadata       `json:"metadata" yaml:"metadata"`
}

var publicContentMarkers = []string{"publish", "post", "tweet", "blog", "announce", "thread", "newsletter"}

var onChainMarkers = []string{"swap", "onchain", "on_chain", "bridge", "mint", "transfer"}

var releaseMarkers = []string{"deploy", "release", "rollout"}

// Visibility derives the external visibility of the action from its
// category and type. Public-facing content and on-chain trades rank highest.
func (a Action) Visibility() Visibility {
	t := strings.ToLower(a.Type)
	switch a.Category {
	case CategoryContent:
		if containsAny(t, publicContentMarkers) {
			return VisibilityPublic
		}
		return VisibilityExternal
	case CategoryTrading:
		if onChain, ok := a.Params["onchain"].(bool); ok && onChain {
			return VisibilityPublic
		}
		if containsAny(t, onChainMarkers) {
			return VisibilityPublic
		}
		return VisibilityExternal
	case CategoryOperations:
		if containsAny(t, releaseMarkers) {
			return VisibilityExternal
		}
		return VisibilityInternal
	default:
		return VisibilityInternal
	}
}

// IsDeployment reports whether the action ships code or configuration to a live target.
func (a Action) IsDeployment() bool {
	return containsAny(strings.ToLower(a.Type), releaseMarkers)
}

// IsBuild reports whether the action triggers a build.
func (a Action) IsBuild() bool {
	return strings.Contains(strings.ToLower(a.Type), "build")
}

// IsBlogPost reports whether the action publishes a long-form blog post.
func (a Action) IsBlogPost() bool {
	return a.Category == CategoryContent && strings.Contains(strings.ToLower(a.Type), "blog")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// RiskFactor is one weighted input to a risk score.
type RiskFactor struct {
	Name         string  `json:"name" yaml:"name"`
	Weight       float64 `json:"weight" yaml:"weight"`
	Value        float64 `json:"value" yaml:"value"`
	Contribution float64 `json:"contribution" yaml:"contribution"`
	Detail       string  `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// RiskAssessment is the classifier's view of a single action.
type RiskAssessment struct {
	Level          RiskLevel    `json:"level"`
	Score          float64      `json:"score"`
	Factors        []RiskFactor `json:"factors"`
	Recommendation Outcome      `json:"recommendation"`
	Constraints    []string     `json:"constraints"`
}

// DominantFactor returns the factor with the largest contribution.
func (ra RiskAssessment) DominantFactor() (RiskFactor, bool) {
	if len(ra.Factors) == 0 {
		return RiskFactor{}, false
	}
	best := ra.Factors[0]
	for _, f := range ra.Factors[1:] {
		if f.Contribution > best.Contribution {
			best = f
		}
	}
	return best, true
}

// Violation is one boundary that an action would cross.
type Violation struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// BoundaryCheckResult is the pass/fail outcome of a boundary check.
type BoundaryCheckResult struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// Names returns the violated boundary names in order.
func (r BoundaryCheckResult) Names() []string {
	names := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		names = append(names, v.Name)
	}
	return names
}

// Has reports whether the named boundary was violated.
func (r BoundaryCheckResult) Has(name string) bool {
	for _, v := range r.Violations {
		if v.Name == name {
			return true
		}
	}
	return false
}

// AutonomyLevel is the configured policy stance, 1 (manual) through 4 (full autonomy).
type AutonomyLevel int

const (
	AutonomyManual     AutonomyLevel = 1
	AutonomyBounded    AutonomyLevel = 2
	AutonomySupervised AutonomyLevel = 3
	AutonomyFull       AutonomyLevel = 4
)

// Valid reports whether the level is one of the four defined stances.
func (l AutonomyLevel) Valid() bool {
	return l >= AutonomyManual && l <= AutonomyFull
}

func (l AutonomyLevel) String() string {
	switch l {
	case AutonomyManual:
		return "manual"
	case AutonomyBounded:
		return "bounded"
	case AutonomySupervised:
		return "supervised"
	case AutonomyFull:
		return "full"
	default:
		return "unknown"
	}
}

// Decision is the terminal, auditable output of routing one action.
type Decision struct {
	ID            string              `json:"id"`
	Sequence      uint64              `json:"sequence"`
	Action        Action              `json:"action"`
	Risk          RiskAssessment      `json:"risk"`
	Boundary      BoundaryCheckResult `json:"boundary"`
	Outcome       Outcome             `json:"outcome"`
	AutonomyLevel AutonomyLevel       `json:"autonomy_level"`
	Reason        string              `json:"reason"`
	Fault         string              `json:"fault,omitempty"`
	Perspectives  *SixHatsResult      `json:"perspectives,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}
