// Package scenario runs YAML routing assertions against a configuration:
// a sequence of actions, each with the outcome the policy must produce.
package scenario

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/router"
	"github.com/ppiankov/actiongate/internal/usage"
)

// Run evaluates the cases in order against cfg with the scenario's
// overrides applied. All cases share one in-memory usage store.
// Errors are reserved for scenarios that cannot be set up.
func Run(ctx context.Context, s *Scenario, cfg *config.Config) (*RunResult, error) {
	rc := cfg.Router()
	if s.AutonomyLevel != 0 {
		rc.AutonomyLevel = s.AutonomyLevel
	}
	b, err := rc.Boundaries.WithOverrides(&s.Boundaries)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	rc.Boundaries = b

	now := time.Now
	if s.Now != "" {
		t, err := time.Parse(time.RFC3339, s.Now)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: now: %w", s.Name, err)
		}
		now = func() time.Time { return t }
	}

	store := usage.NewMemoryStore()
	defer store.Close()
	if err := seed(ctx, store, s.Seed, now()); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	r, err := router.New(rc, store, router.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	result := &RunResult{Name: s.Name, Total: len(s.Cases)}
	for i, c := range s.Cases {
		cr := runCase(ctx, r, i, c)
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}
	return result, nil
}

func runCase(ctx context.Context, r *router.Router, i int, c Case) CaseResult {
	a := c.Action
	if a.ID == "" {
		a.ID = fmt.Sprintf("case-%d", i+1)
	}
	if a.Metadata.Urgency == "" {
		a.Metadata.Urgency = model.UrgencyNormal
	}

	cr := CaseResult{
		Index:    i + 1,
		ActionID: a.ID,
		Type:     a.Type,
		Expected: strings.ToLower(c.Expect),
	}

	d, err := r.Route(ctx, a)
	if err != nil {
		cr.Actual = ExpectError
		cr.Reason = err.Error()
		cr.Passed = cr.Expected == ExpectError
		if !cr.Passed {
			cr.Failures = append(cr.Failures, fmt.Sprintf("expected %s, got error", cr.Expected))
		}
		return cr
	}

	cr.Actual = string(d.Outcome)
	cr.RiskLevel = string(d.Risk.Level)
	cr.Score = d.Risk.Score
	cr.Violations = d.Boundary.Names()
	cr.Reason = d.Reason

	if cr.Actual != cr.Expected {
		cr.Failures = append(cr.Failures, fmt.Sprintf("expected %s, got %s", cr.Expected, cr.Actual))
	}
	if c.ExpectViolation != "" && !slices.Contains(cr.Violations, c.ExpectViolation) {
		cr.Failures = append(cr.Failures, fmt.Sprintf("expected violation %q", c.ExpectViolation))
	}
	if c.ExpectRisk != "" && !strings.EqualFold(c.ExpectRisk, cr.RiskLevel) {
		cr.Failures = append(cr.Failures, fmt.Sprintf("expected %s risk, got %s", c.ExpectRisk, cr.RiskLevel))
	}
	cr.Passed = len(cr.Failures) == 0

	if c.Record && d.Outcome == model.AutoExecute {
		if err := r.RecordExecution(ctx, d); err != nil {
			cr.Passed = false
			cr.Failures = append(cr.Failures, "record: "+err.Error())
		}
	}
	return cr
}

func seed(ctx context.Context, store usage.Store, seeds []Seed, now time.Time) error {
	for _, sd := range seeds {
		b := usage.Bucket(sd.Bucket)
		if !slices.Contains(usage.Buckets, b) {
			return fmt.Errorf("seed: unknown bucket %q", sd.Bucket)
		}
		if sd.Count < 0 || sd.Spend < 0 || sd.DaysAgo < 0 {
			return fmt.Errorf("seed %s: values must not be negative", sd.Bucket)
		}
		key := usage.DateKey(now.AddDate(0, 0, -sd.DaysAgo))
		delta := usage.Counter{Count: sd.Count, Spend: decimal.NewFromFloat(sd.Spend)}
		if _, err := store.Increment(ctx, key, b, delta); err != nil {
			return fmt.Errorf("seed %s: %w", sd.Bucket, err)
		}
	}
	return nil
}

// Load parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	for i, c := range s.Cases {
		if strings.EqualFold(c.Expect, ExpectError) {
			continue
		}
		if _, err := model.ParseOutcome(strings.ToLower(c.Expect)); err != nil {
			return nil, fmt.Errorf("scenario %s case %d: %w", path, i+1, err)
		}
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and the config at configPath, then runs.
func LoadAndRun(ctx context.Context, path, configPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	result, err := Run(ctx, s, cfg)
	if err != nil {
		return nil, err
	}
	result.File = path
	return result, nil
}
