package model

import "fmt"

// Hat is one of the six fixed deliberation perspectives.
type Hat int

const (
	WhiteHat Hat = iota
	RedHat
	BlackHat
	YellowHat
	GreenHat
	BlueHat
)

// HatCount is the number of perspectives in a deliberation.
const HatCount = 6

// Hats lists every hat in evaluation order.
var Hats = [HatCount]Hat{WhiteHat, RedHat, BlackHat, YellowHat, GreenHat, BlueHat}

func (h Hat) String() string {
	switch h {
	case WhiteHat:
		return "white"
	case RedHat:
		return "red"
	case BlackHat:
		return "black"
	case YellowHat:
		return "yellow"
	case GreenHat:
		return "green"
	case BlueHat:
		return "blue"
	default:
		return "unknown"
	}
}

// MarshalText renders the hat by name.
func (h Hat) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a hat name.
func (h *Hat) UnmarshalText(b []byte) error {
	for _, k := range Hats {
		if k.String() == string(b) {
			*h = k
			return nil
		}
	}
	return fmt.Errorf("unknown hat %q", b)
}

// Verdict is a single hat's position on an action.
type Verdict string

const (
	VerdictProceed Verdict = "proceed"
	VerdictCaution Verdict = "caution"
	VerdictStop    Verdict = "stop"
	VerdictReview  Verdict = "review"
)

// Consensus is the combined reading of all six verdicts.
type Consensus string

const (
	StrongProceed    Consensus = "strong_proceed"
	ConsensusProceed Consensus = "proceed"
	ConsensusMixed   Consensus = "mixed"
	ConsensusCaution Consensus = "caution"
	ConsensusStop    Consensus = "stop"
)

// HatPerspective is one hat's analysis. Score is 0 (strongly against) to 100 (strongly for).
type HatPerspective struct {
	Hat       Hat      `json:"hat"`
	Verdict   Verdict  `json:"verdict"`
	Analysis  string   `json:"analysis"`
	KeyPoints []string `json:"key_points"`
	Score     float64  `json:"score"`
}

// SixHatsResult is the advisory deliberation attached to a decision.
type SixHatsResult struct {
	Perspectives   [HatCount]HatPerspective `json:"perspectives"`
	Consensus      Consensus                `json:"consensus"`
	OverallScore   float64                  `json:"overall_score"`
	Recommendation string                   `json:"recommendation"`
}

// Perspective returns the analysis for one hat.
func (r SixHatsResult) Perspective(h Hat) HatPerspective {
	return r.Perspectives[h]
}
