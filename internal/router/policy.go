package router

import "github.com/ppiankov/actiongate/internal/model"

// determineOutcome applies the autonomy policy.
//
// Each level sets a base outcome for the risk level. Any boundary violation
// then demotes that outcome by exactly one step, so at level 2 a medium
// action with a violation escalates rather than holding at queue_approval,
// and a high one is rejected. Critical risk never
// executes: it escalates, or rejects when a boundary is also violated or
// the classifier already recommends reject. Level 1 is shadow mode and
// queues everything below critical. From level 2 up, outcomes never get
// stricter as the level rises.
func determineOutcome(level model.AutonomyLevel, ra model.RiskAssessment, br model.BoundaryCheckResult, allowListed bool) model.Outcome {
	violated := !br.Passed || len(br.Violations) > 0

	if ra.Level == model.RiskCritical {
		if violated || ra.Recommendation == model.Reject {
			return model.Reject
		}
		return model.Escalate
	}

	out := baseOutcome(level, ra.Level, allowListed)
	if violated {
		out = out.Demote()
	}
	return out
}

func baseOutcome(level model.AutonomyLevel, rl model.RiskLevel, allowListed bool) model.Outcome {
	switch level {
	case model.AutonomyManual:
		return model.QueueApproval
	case model.AutonomyBounded:
		if allowListed || rl.Rank() <= model.RiskLow.Rank() {
			return model.AutoExecute
		}
		if rl == model.RiskHigh {
			return model.Escalate
		}
		return model.QueueApproval
	case model.AutonomySupervised:
		if allowListed || rl.Rank() <= model.RiskMedium.Rank() {
			return model.AutoExecute
		}
		return model.Escalate
	case model.AutonomyFull:
		return model.AutoExecute
	default:
		// Unknown levels fail closed.
		return model.Escalate
	}
}
