// Package boundary enforces hard operational limits on actions: daily
// caps, value ceilings, deployment review, blocked keywords and time
// windows. Limits are independent of the risk score.
//
// Check only reads usage. Usage is written by RecordUsage once an action
// has actually executed.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/usage"
)

// Violation names.
const (
	ViolationDailyTradeCap    = "daily trade cap exceeded"
	ViolationTradeValueCap    = "per-trade value cap exceeded"
	ViolationDailyContentCap  = "daily content cap exceeded"
	ViolationWeeklyBlogCap    = "weekly blog cap exceeded"
	ViolationDailyBuildCap    = "daily build cap exceeded"
	ViolationDeploymentReview = "deployment requires review"
	ViolationGlobalSpendCap   = "global daily spend cap exceeded"
	ViolationTimeWindow       = "outside allowed time window"
	ViolationBlockedKeyword   = "blocked keyword"
	ViolationValueThreshold   = "action value threshold exceeded"
	ViolationUsageUnavailable = "usage store unavailable"
)

// ErrCapReached reports an execution that no longer fits today's limits.
var ErrCapReached = errors.New("daily limit reached")

// blogWindowDays is the rolling window for the weekly blog cap, today included.
const blogWindowDays = 7

// DailyUsage is a snapshot of every bucket for one UTC day.
type DailyUsage struct {
	Date     string                         `json:"date"`
	Counters map[usage.Bucket]usage.Counter `json:"counters"`
}

// Count returns the executed-action count for a bucket.
func (d DailyUsage) Count(b usage.Bucket) int64 {
	return d.Counters[b].Count
}

// Spend returns the cumulative spend for a bucket.
func (d DailyUsage) Spend(b usage.Bucket) decimal.Decimal {
	return d.Counters[b].Spend
}

// Checker evaluates boundaries against persisted usage.
type Checker struct {
	mu       sync.RWMutex
	bounds   Boundaries
	keywords keywordMatcher

	store  usage.Store
	now    func() time.Time
	logger *slog.Logger

	// recordMu makes the cap re-check and the increments of one record
	// atomic with respect to other records in this process.
	recordMu sync.Mutex
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// NewChecker validates b and builds a Checker over store.
func NewChecker(b Boundaries, store usage.Store, opts ...Option) (*Checker, error) {
	if store == nil {
		return nil, fmt.Errorf("boundary: nil usage store")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	c := &Checker{
		bounds:   b.Clone(),
		keywords: newKeywordMatcher(b.BlockedKeywords),
		store:    store,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Boundaries returns a copy of the active limits.
func (c *Checker) Boundaries() Boundaries {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bounds.Clone()
}

// UpdateBoundaries replaces the active limits. Invalid limits are rejected
// and the previous ones stay in force.
func (c *Checker) UpdateBoundaries(b Boundaries) error {
	if err := b.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.bounds = b.Clone()
	c.keywords = newKeywordMatcher(b.BlockedKeywords)
	c.mu.Unlock()
	c.logger.Info("boundaries updated")
	return nil
}

func (c *Checker) snapshot() (Boundaries, keywordMatcher) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bounds, c.keywords
}

// Check evaluates every applicable boundary for a and returns all
// violations. riskLevel is the action's classified level; it only matters
// for the deployment rule. Errors come from the usage store and wrap
// usage.ErrUnavailable.
func (c *Checker) Check(ctx context.Context, a model.Action, riskLevel model.RiskLevel) (model.BoundaryCheckResult, error) {
	b, kw := c.snapshot()
	now := c.now().UTC()
	value := decimal.NewFromFloat(math.Abs(a.Metadata.EstimatedValue))

	var vs []model.Violation
	add := func(name, format string, args ...any) {
		vs = append(vs, model.Violation{Name: name, Detail: fmt.Sprintf(format, args...)})
	}

	if word, ok := kw.Match(a); ok {
		add(ViolationBlockedKeyword, "action mentions %q", word)
	}

	if tw := b.TimeWindow; tw != nil && !tw.Contains(now.Hour()) {
		add(ViolationTimeWindow, "hour %02d UTC outside %02d:00-%02d:00", now.Hour(), tw.StartHour, tw.EndHour)
	}

	if limit, ok := b.ValueThresholds[a.Category]; ok && limit > 0 {
		if value.GreaterThan(decimal.NewFromFloat(limit)) {
			add(ViolationValueThreshold, "value %s exceeds %s threshold %s", value.StringFixed(2), a.Category, decimal.NewFromFloat(limit).StringFixed(2))
		}
	}

	if a.Category == model.CategoryTrading {
		if t := b.Trading; t.MaxTradeValue > 0 && value.GreaterThan(decimal.NewFromFloat(t.MaxTradeValue)) {
			add(ViolationTradeValueCap, "trade value %s > max %s", value.StringFixed(2), decimal.NewFromFloat(t.MaxTradeValue).StringFixed(2))
		}
	}

	capped, err := c.capViolations(ctx, b, a, now)
	if err != nil {
		return model.BoundaryCheckResult{}, err
	}
	vs = append(vs, capped...)

	if a.IsDeployment() && b.Deployment.RequireReview && riskLevel != model.RiskSafe && !allowListed(b.Deployment.AllowList, a.Type) {
		add(ViolationDeploymentReview, "deployment %q at %s risk is not allow-listed", a.Type, riskLevel)
	}

	return model.BoundaryCheckResult{Passed: len(vs) == 0, Violations: vs}, nil
}

// RecordUsage counts one auto-executed action against today's buckets:
// its category, the global total, and the blog or build bucket when it
// applies. The daily caps are checked again under the record lock, so two
// actions routed before either was recorded cannot both take the last
// slot; the loser gets ErrCapReached and nothing is counted.
// A failure part way leaves earlier buckets incremented.
func (c *Checker) RecordUsage(ctx context.Context, a model.Action) error {
	return c.record(ctx, a, true)
}

// RecordApproved counts an action a human approved. Caps are not checked:
// the approval is the override.
func (c *Checker) RecordApproved(ctx context.Context, a model.Action) error {
	return c.record(ctx, a, false)
}

func (c *Checker) record(ctx context.Context, a model.Action, enforce bool) error {
	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	now := c.now().UTC()
	if enforce {
		b, _ := c.snapshot()
		vs, err := c.capViolations(ctx, b, a, now)
		if err != nil {
			return err
		}
		if len(vs) > 0 {
			names := make([]string, len(vs))
			for i, v := range vs {
				names[i] = v.Name
			}
			c.logger.Warn("execution over cap", "action", a.ID, "violations", names)
			return fmt.Errorf("%w: %s", ErrCapReached, strings.Join(names, ", "))
		}
	}

	day := usage.DateKey(now)
	delta := usage.Counter{Count: 1, Spend: decimal.NewFromFloat(math.Abs(a.Metadata.EstimatedValue))}

	buckets := []usage.Bucket{usage.CategoryBucket(a.Category), usage.BucketTotal}
	if a.IsBlogPost() {
		buckets = append(buckets, usage.BucketBlog)
	}
	if a.IsBuild() {
		buckets = append(buckets, usage.BucketBuild)
	}
	for _, bucket := range buckets {
		if _, err := c.store.Increment(ctx, day, bucket, delta); err != nil {
			c.logger.Error("usage increment failed", "action", a.ID, "bucket", bucket, "error", err)
			return err
		}
	}
	c.logger.Debug("usage recorded", "action", a.ID, "date", day, "buckets", len(buckets), "approved", !enforce)
	return nil
}

// GetOrCreateUsage returns every bucket for dateKey. Days without usage
// read as zero.
func (c *Checker) GetOrCreateUsage(ctx context.Context, dateKey string) (DailyUsage, error) {
	du := DailyUsage{Date: dateKey, Counters: make(map[usage.Bucket]usage.Counter, len(usage.Buckets))}
	for _, b := range usage.Buckets {
		cur, err := c.store.Get(ctx, dateKey, b)
		if err != nil {
			return DailyUsage{}, err
		}
		du.Counters[b] = cur
	}
	return du, nil
}

// Today returns usage for the current UTC day.
func (c *Checker) Today(ctx context.Context) (DailyUsage, error) {
	return c.GetOrCreateUsage(ctx, usage.DateKey(c.now()))
}

// GetWeeklyBlogCount returns blog posts executed over the last seven days.
func (c *Checker) GetWeeklyBlogCount(ctx context.Context) (int64, error) {
	return c.weeklyBlogCount(ctx, c.now().UTC())
}

func (c *Checker) weeklyBlogCount(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for i := 0; i < blogWindowDays; i++ {
		cur, err := c.store.Get(ctx, usage.DateKey(now.AddDate(0, 0, -i)), usage.BucketBlog)
		if err != nil {
			return 0, err
		}
		total += cur.Count
	}
	return total, nil
}

// PruneUsage drops days that no boundary reads any more: everything
// before the weekly blog window. Stores that cannot prune are left alone.
func (c *Checker) PruneUsage(ctx context.Context) (int64, error) {
	p, ok := c.store.(usage.Pruner)
	if !ok {
		return 0, nil
	}
	before := usage.DateKey(c.now().AddDate(0, 0, -(blogWindowDays - 1)))
	n, err := p.Prune(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.logger.Info("usage pruned", "before", before, "removed", n)
	}
	return n, nil
}

// ResetDailyUsage clears all persisted usage.
func (c *Checker) ResetDailyUsage(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return err
	}
	c.logger.Info("usage reset")
	return nil
}

func allowListed(list []string, actionType string) bool {
	for _, t := range list {
		if strings.EqualFold(t, actionType) {
			return true
		}
	}
	return false
}
