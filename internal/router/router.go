// Package router turns an action into a routing decision: classify, check
// boundaries, apply the autonomy policy, record the decision and announce
// it on the event bus.
//
// An error from Route means no decision was made and the action must not
// run.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/actiongate/internal/boundary"
	"github.com/ppiankov/actiongate/internal/event"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/pipeline"
	"github.com/ppiankov/actiongate/internal/risk"
	"github.com/ppiankov/actiongate/internal/sixhats"
	"github.com/ppiankov/actiongate/internal/usage"
)

var (
	// ErrRejectedDecision is returned when execution of a rejected decision is recorded.
	ErrRejectedDecision = errors.New("decision was rejected")
	// ErrInvalidLevel marks an autonomy level outside 1..4.
	ErrInvalidLevel = errors.New("invalid autonomy level")
)

// Config is the router configuration.
type Config struct {
	AutonomyLevel model.AutonomyLevel
	Boundaries    boundary.Boundaries
	Risk          risk.Config
	Pipeline      pipeline.Config
}

// DefaultConfig returns bounded autonomy with default limits and tuning.
func DefaultConfig() Config {
	return Config{
		AutonomyLevel: model.AutonomyBounded,
		Boundaries:    boundary.DefaultBoundaries(),
		Risk:          risk.DefaultConfig(),
		Pipeline:      pipeline.DefaultConfig(),
	}
}

// Router is the decision orchestrator. Safe for concurrent use.
type Router struct {
	mu         sync.RWMutex
	level      model.AutonomyLevel
	classifier *risk.Classifier

	checker   *boundary.Checker
	pipelines *pipeline.Classifier
	hats      *sixhats.Evaluator
	bus       *event.Bus
	logger    *slog.Logger
	now       func() time.Time

	seq atomic.Uint64
}

type options struct {
	bus       *event.Bus
	logger    *slog.Logger
	now       func() time.Time
	hats      bool
	evaluator *sixhats.Evaluator
	pipelines *pipeline.Classifier
}

// Option configures a Router.
type Option func(*options)

// WithBus publishes decision events on b.
func WithBus(b *event.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source for decisions and usage days.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSixHats attaches perspectives to escalated, rejected and high-risk
// decisions. A nil evaluator uses the router's own classifier.
func WithSixHats(e *sixhats.Evaluator) Option {
	return func(o *options) {
		o.hats = true
		o.evaluator = e
	}
}

// WithPipelineClassifier replaces the classifier built from Config.Pipeline.
func WithPipelineClassifier(c *pipeline.Classifier) Option {
	return func(o *options) { o.pipelines = c }
}

// New validates cfg and builds a Router over the usage store.
func New(cfg Config, store usage.Store, opts ...Option) (*Router, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.bus == nil {
		o.bus = event.NewBus(o.logger)
	}

	if !cfg.AutonomyLevel.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, cfg.AutonomyLevel)
	}
	classifier, err := risk.NewClassifier(cfg.Risk)
	if err != nil {
		return nil, err
	}
	checker, err := boundary.NewChecker(cfg.Boundaries, store,
		boundary.WithClock(o.now), boundary.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	pipelines := o.pipelines
	if pipelines == nil {
		if pipelines, err = pipeline.NewClassifier(cfg.Pipeline); err != nil {
			return nil, err
		}
	}
	var hats *sixhats.Evaluator
	if o.hats {
		hats = o.evaluator
		if hats == nil {
			hats = sixhats.NewEvaluator(classifier)
		}
	}

	return &Router{
		level:      cfg.AutonomyLevel,
		classifier: classifier,
		checker:    checker,
		pipelines:  pipelines,
		hats:       hats,
		bus:        o.bus,
		logger:     o.logger,
		now:        o.now,
	}, nil
}

// Route decides what happens to a. It never executes the action and never
// records usage.
func (r *Router) Route(ctx context.Context, a model.Action) (model.Decision, error) {
	if err := model.ValidateAction(a); err != nil {
		return model.Decision{}, err
	}

	r.mu.RLock()
	level, classifier := r.level, r.classifier
	r.mu.RUnlock()

	ra := classifier.Classify(a)

	var fault string
	br, err := r.checker.Check(ctx, a, ra.Level)
	if err != nil {
		if !errors.Is(err, usage.ErrUnavailable) {
			return model.Decision{}, fmt.Errorf("boundary check %s: %w", a.ID, err)
		}
		// Fail closed: limits that cannot be read count as violated.
		fault = err.Error()
		br = model.BoundaryCheckResult{
			Passed:     false,
			Violations: []model.Violation{{Name: boundary.ViolationUsageUnavailable, Detail: fault}},
		}
		r.logger.Error("usage store unavailable, failing closed", "action", a.ID, "error", err)
	}

	outcome := determineOutcome(level, ra, br, classifier.IsAllowListed(a))
	d := r.createDecision(a, ra, br, outcome, level, fault)

	if r.hats != nil && (outcome.Severity() >= model.Escalate.Severity() || ra.Level.AtLeast(model.RiskHigh)) {
		d = r.hats.Attach(d)
	}

	r.emitDecisionEvents(d)
	r.logger.Info("decision",
		"id", d.ID, "seq", d.Sequence, "action", a.ID, "type", a.Type,
		"risk", ra.Level, "score", ra.Score, "outcome", outcome, "level", int(level),
		"violations", len(br.Violations))
	return d, nil
}

// RoutePipeline applies the autonomy policy to a whole pipeline. Usage
// boundaries apply per action, not per pipeline.
func (r *Router) RoutePipeline(ctx context.Context, p model.Pipeline) (model.PipelineDecision, error) {
	if err := ctx.Err(); err != nil {
		return model.PipelineDecision{}, err
	}
	pra, err := r.pipelines.Classify(p)
	if err != nil {
		return model.PipelineDecision{}, err
	}

	level := r.AutonomyLevel()
	ra := model.RiskAssessment{
		Level:          pra.Level,
		Score:          pra.Score,
		Factors:        pra.Factors,
		Recommendation: pra.Recommendation,
	}
	outcome := determineOutcome(level, ra, model.BoundaryCheckResult{Passed: true}, false)

	d := model.PipelineDecision{
		ID:            uuid.NewString(),
		Sequence:      r.seq.Add(1),
		Pipeline:      p,
		Risk:          pra,
		Outcome:       outcome,
		AutonomyLevel: level,
		Reason:        reason(outcome, level, ra, nil, ""),
		Timestamp:     r.now().UTC(),
	}
	r.bus.Publish(event.Event{Type: event.PipelineAssessed, Timestamp: d.Timestamp, Pipeline: &d})
	r.logger.Info("pipeline decision",
		"id", d.ID, "seq", d.Sequence, "pipeline", p.ID, "steps", len(p.Steps),
		"risk", pra.Level, "score", pra.Score, "outcome", outcome)
	return d, nil
}

func (r *Router) createDecision(a model.Action, ra model.RiskAssessment, br model.BoundaryCheckResult, outcome model.Outcome, level model.AutonomyLevel, fault string) model.Decision {
	if br.Violations == nil {
		br.Violations = []model.Violation{}
	}
	return model.Decision{
		ID:            uuid.NewString(),
		Sequence:      r.seq.Add(1),
		Action:        a,
		Risk:          ra,
		Boundary:      br,
		Outcome:       outcome,
		AutonomyLevel: level,
		Reason:        reason(outcome, level, ra, br.Violations, fault),
		Fault:         fault,
		Timestamp:     r.now().UTC(),
	}
}

func reason(outcome model.Outcome, level model.AutonomyLevel, ra model.RiskAssessment, vs []model.Violation, fault string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at level %d (%s): %s risk %.2f", outcome, int(level), level, ra.Level, ra.Score)
	if f, ok := ra.DominantFactor(); ok {
		fmt.Fprintf(&b, ", driven by %s", f.Name)
	}
	if len(vs) > 0 {
		names := make([]string, len(vs))
		for i, v := range vs {
			names[i] = v.Name
		}
		fmt.Fprintf(&b, "; violations: %s", strings.Join(names, ", "))
	}
	if fault != "" {
		b.WriteString("; infrastructure fault")
	}
	return b.String()
}

func (r *Router) emitDecisionEvents(d model.Decision) {
	ts := d.Timestamp
	r.bus.Publish(event.Event{Type: event.DecisionMade, Timestamp: ts, Decision: &d})
	r.bus.Publish(event.Event{Type: event.ForOutcome(d.Outcome), Timestamp: ts, Decision: &d})
	if len(d.Boundary.Violations) > 0 {
		r.bus.Publish(event.Event{Type: event.BoundaryViolation, Timestamp: ts, Decision: &d, Violations: d.Boundary.Violations})
	}
	if d.Fault != "" {
		r.bus.Publish(event.Event{Type: event.UsageFault, Timestamp: ts, Decision: &d, Error: d.Fault})
	}
}

// RecordExecution counts an executed decision against daily usage.
// An auto_execute decision must still fit today's caps, otherwise it
// fails with boundary.ErrCapReached and nothing is counted. Queued and
// escalated decisions only execute after a human approved them, so they
// are counted without the cap check. Rejected decisions cannot be executed.
func (r *Router) RecordExecution(ctx context.Context, d model.Decision) error {
	switch d.Outcome {
	case model.Reject:
		return fmt.Errorf("%w: %s", ErrRejectedDecision, d.ID)
	case model.AutoExecute:
		return r.checker.RecordUsage(ctx, d.Action)
	default:
		return r.checker.RecordApproved(ctx, d.Action)
	}
}

// SetAutonomyLevel changes the policy stance for subsequent decisions.
func (r *Router) SetAutonomyLevel(l model.AutonomyLevel) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, l)
	}
	r.mu.Lock()
	prev := r.level
	r.level = l
	r.mu.Unlock()
	if prev != l {
		r.logger.Info("autonomy level changed", "from", int(prev), "to", int(l))
	}
	return nil
}

// AutonomyLevel returns the current policy stance.
func (r *Router) AutonomyLevel() model.AutonomyLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.level
}

// UpdateBoundaries replaces the active limits.
func (r *Router) UpdateBoundaries(b boundary.Boundaries) error {
	return r.checker.UpdateBoundaries(b)
}

// UpdateRiskConfig replaces the classifier tuning for subsequent decisions.
func (r *Router) UpdateRiskConfig(cfg risk.Config) error {
	c, err := risk.NewClassifier(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.classifier = c
	r.mu.Unlock()
	r.logger.Info("risk config updated")
	return nil
}

// Classifier returns the active risk classifier.
func (r *Router) Classifier() *risk.Classifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classifier
}

// Checker exposes the boundary checker for usage inspection and reset.
func (r *Router) Checker() *boundary.Checker {
	return r.checker
}

// Bus returns the event bus decisions are published on.
func (r *Router) Bus() *event.Bus {
	return r.bus
}

// DecisionCount returns how many decisions have been made.
func (r *Router) DecisionCount() uint64 {
	return r.seq.Load()
}
