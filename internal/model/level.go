package model

import "fmt"

// RiskLevel is the banded severity of a risk score.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists levels from least to most severe.
var RiskLevels = []RiskLevel{RiskSafe, RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Rank maps a level to a comparable integer. Unknown levels rank as critical.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskSafe:
		return 0
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 4
	}
}

// Valid reports whether l is a known level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskSafe, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// AtLeast reports whether l is as severe as other or more.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.Rank() >= other.Rank()
}

// Next returns the band one step more severe. Critical stays critical.
func (l RiskLevel) Next() RiskLevel {
	return RiskLevels[min(l.Rank()+1, len(RiskLevels)-1)]
}

// Outcome is a routing result. Outcomes are ordered by severity:
// auto_execute < queue_approval < escalate < reject.
type Outcome string

const (
	AutoExecute   Outcome = "auto_execute"
	QueueApproval Outcome = "queue_approval"
	Escalate      Outcome = "escalate"
	Reject        Outcome = "reject"
)

// Severity maps an outcome to a comparable integer. Unknown outcomes rank as reject.
func (o Outcome) Severity() int {
	switch o {
	case AutoExecute:
		return 0
	case QueueApproval:
		return 1
	case Escalate:
		return 2
	default:
		return 3
	}
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case AutoExecute, QueueApproval, Escalate, Reject:
		return true
	}
	return false
}

// Demote moves the outcome exactly one step toward reject.
// Reject is the floor and stays reject.
func (o Outcome) Demote() Outcome {
	switch o {
	case AutoExecute:
		return QueueApproval
	case QueueApproval:
		return Escalate
	default:
		return Reject
	}
}

// ParseOutcome maps a string to an Outcome. Fail-closed: unknown → error.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.Valid() {
		return "", fmt.Errorf("unknown outcome %q", s)
	}
	return o, nil
}
