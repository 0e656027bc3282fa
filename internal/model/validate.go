package model

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidAction marks an action rejected at the system boundary.
	ErrInvalidAction = errors.New("invalid action")
	// ErrInvalidPipeline marks a pipeline rejected at the system boundary.
	ErrInvalidPipeline = errors.New("invalid pipeline")
	// ErrCyclicPipeline marks a pipeline whose dependency graph has a cycle.
	ErrCyclicPipeline = errors.New("pipeline dependency graph has a cycle")
)

// ValidationError names the offending field. It unwraps to ErrInvalidAction,
// ErrInvalidPipeline or ErrCyclicPipeline.
type ValidationError struct {
	Field  string
	Reason string
	kind   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.kind }

func actionError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason, kind: ErrInvalidAction}
}

func pipelineError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason, kind: ErrInvalidPipeline}
}

// ValidateAction checks the shape of an action. Nothing is coerced:
// unknown enum values and missing identifiers are errors.
func ValidateAction(a Action) error {
	if a.ID == "" {
		return actionError("id", "must not be empty")
	}
	switch a.Engine {
	case EngineMoney, EngineGrowth, EngineProduct, EngineOrchestrator:
	default:
		return actionError("engine", fmt.Sprintf("unknown engine %q", a.Engine))
	}
	switch a.Category {
	case CategoryTrading, CategoryContent, CategoryOperations, CategoryConfiguration:
	default:
		return actionError("category", fmt.Sprintf("unknown category %q", a.Category))
	}
	if a.Type == "" {
		return actionError("type", "must not be empty")
	}
	switch a.Metadata.Urgency {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
	default:
		return actionError("metadata.urgency", fmt.Sprintf("unknown urgency %q", a.Metadata.Urgency))
	}
	v := a.Metadata.EstimatedValue
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return actionError("metadata.estimated_value", "must be a finite number")
	}
	return nil
}

// ValidatePipeline checks step identity, dependency references and acyclicity.
func ValidatePipeline(p Pipeline) error {
	if p.ID == "" {
		return pipelineError("id", "must not be empty")
	}
	if len(p.Steps) == 0 {
		return pipelineError("steps", "must contain at least one step")
	}
	if p.Metadata.RiskLevel != "" && !p.Metadata.RiskLevel.Valid() {
		return pipelineError("metadata.risk_level", fmt.Sprintf("unknown risk level %q", p.Metadata.RiskLevel))
	}

	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return pipelineError(fmt.Sprintf("steps[%d].id", i), "must not be empty")
		}
		if seen[s.ID] {
			return pipelineError(fmt.Sprintf("steps[%d].id", i), fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true
		if s.Tool == "" {
			return pipelineError(fmt.Sprintf("steps[%d].tool", i), "must not be empty")
		}
	}
	for i, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return pipelineError(fmt.Sprintf("steps[%d].depends_on", i), fmt.Sprintf("unknown step %q", dep))
			}
			if dep == s.ID {
				return &ValidationError{Field: fmt.Sprintf("steps[%d].depends_on", i), Reason: "step depends on itself", kind: ErrCyclicPipeline}
			}
		}
	}

	if cycle := findCycle(p); cycle != "" {
		return &ValidationError{Field: "steps", Reason: "cycle through step " + cycle, kind: ErrCyclicPipeline}
	}
	return nil
}

// findCycle returns the ID of a step on a dependency cycle, or "".
func findCycle(p Pipeline) string {
	const (
		unvisited = iota
		visiting
		done
	)
	deps := make(map[string][]string, len(p.Steps))
	for _, s := range p.Steps {
		deps[s.ID] = s.DependsOn
	}
	state := make(map[string]int, len(p.Steps))

	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}
		state[id] = visiting
		for _, d := range deps[id] {
			if c := visit(d); c != "" {
				return c
			}
		}
		state[id] = done
		return ""
	}

	for _, s := range p.Steps {
		if c := visit(s.ID); c != "" {
			return c
		}
	}
	return ""
}
