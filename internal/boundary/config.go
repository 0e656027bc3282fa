package boundary

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/actiongate/internal/model"
)

// ErrInvalidBoundaries marks a boundaries configuration that cannot be used.
var ErrInvalidBoundaries = errors.New("invalid boundaries")

// Trading limits. Zero values mean unlimited for that dimension.
type Trading struct {
	MaxDailyTrades int64   `yaml:"max_daily_trades" json:"max_daily_trades"`
	MaxDailySpend  float64 `yaml:"max_daily_spend" json:"max_daily_spend"`
	MaxTradeValue  float64 `yaml:"max_trade_value" json:"max_trade_value"`
}

// Content limits. Zero values mean unlimited.
type Content struct {
	MaxDailyPosts      int64 `yaml:"max_daily_posts" json:"max_daily_posts"`
	MaxWeeklyBlogPosts int64 `yaml:"max_weekly_blog_posts" json:"max_weekly_blog_posts"`
}

// Build limits. Zero means unlimited.
type Build struct {
	MaxDailyBuilds int64 `yaml:"max_daily_builds" json:"max_daily_builds"`
}

// Deployment policy. When RequireReview is set, deployments that are not
// on the allow-list need a safe risk level to pass.
type Deployment struct {
	RequireReview bool     `yaml:"require_review" json:"require_review"`
	AllowList     []string `yaml:"allow_list" json:"allow_list"`
}

// TimeWindow allows actions in [StartHour, EndHour) UTC. The window may
// wrap midnight (StartHour > EndHour).
type TimeWindow struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
}

// Contains reports whether the UTC hour falls inside the window.
func (w TimeWindow) Contains(hour int) bool {
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// Boundaries are hard operational limits, independent of risk score.
type Boundaries struct {
	Trading    Trading    `yaml:"trading" json:"trading"`
	Content    Content    `yaml:"content" json:"content"`
	Build      Build      `yaml:"build" json:"build"`
	Deployment Deployment `yaml:"deployment" json:"deployment"`

	// MaxDailySpend is the global spend ceiling across all categories.
	MaxDailySpend float64 `yaml:"max_daily_spend" json:"max_daily_spend"`

	// ValueThresholds caps the value of a single action per category.
	ValueThresholds map[model.Category]float64 `yaml:"value_thresholds" json:"value_thresholds"`

	BlockedKeywords []string    `yaml:"blocked_keywords" json:"blocked_keywords"`
	TimeWindow      *TimeWindow `yaml:"time_window,omitempty" json:"time_window,omitempty"`
}

// DefaultBlockedKeywords are terms that are never acceptable in an
// autonomous action.
var DefaultBlockedKeywords = []string{
	"guaranteed returns",
	"pump and dump",
	"seed phrase",
	"private key",
	"rug pull",
	"wash trade",
	"insider tip",
	"rm -rf /",
}

// DefaultBoundaries returns the built-in limits.
func DefaultBoundaries() Boundaries {
	return Boundaries{
		Trading: Trading{
			MaxDailyTrades: 20,
			MaxDailySpend:  1000,
			MaxTradeValue:  500,
		},
		Content: Content{
			MaxDailyPosts:      10,
			MaxWeeklyBlogPosts: 3,
		},
		Build: Build{
			MaxDailyBuilds: 20,
		},
		Deployment: Deployment{
			RequireReview: true,
			AllowList:     []string{},
		},
		MaxDailySpend:   2000,
		ValueThresholds: map[model.Category]float64{},
		BlockedKeywords: slices.Clone(DefaultBlockedKeywords),
	}
}

// Clone returns a deep copy so overlays never mutate the original.
func (b Boundaries) Clone() Boundaries {
	out := b
	out.Deployment.AllowList = slices.Clone(b.Deployment.AllowList)
	out.BlockedKeywords = slices.Clone(b.BlockedKeywords)
	out.ValueThresholds = make(map[model.Category]float64, len(b.ValueThresholds))
	for k, v := range b.ValueThresholds {
		out.ValueThresholds[k] = v
	}
	if b.TimeWindow != nil {
		tw := *b.TimeWindow
		out.TimeWindow = &tw
	}
	return out
}

// WithOverrides decodes a YAML overlay onto a copy of b. Only the fields
// present in the node change.
func (b Boundaries) WithOverrides(node *yaml.Node) (Boundaries, error) {
	out := b.Clone()
	if node == nil || node.Kind == 0 {
		return out, nil
	}
	if err := node.Decode(&out); err != nil {
		return Boundaries{}, fmt.Errorf("%w: %v", ErrInvalidBoundaries, err)
	}
	return out, out.Validate()
}

// Validate fails fast on limits that cannot be enforced.
func (b Boundaries) Validate() error {
	counts := map[string]int64{
		"trading.max_daily_trades":      b.Trading.MaxDailyTrades,
		"content.max_daily_posts":       b.Content.MaxDailyPosts,
		"content.max_weekly_blog_posts": b.Content.MaxWeeklyBlogPosts,
		"build.max_daily_builds":        b.Build.MaxDailyBuilds,
	}
	for name, v := range counts {
		if v < 0 {
			return fmt.Errorf("%w: %s must be >= 0, got %d", ErrInvalidBoundaries, name, v)
		}
	}

	values := map[string]float64{
		"trading.max_daily_spend": b.Trading.MaxDailySpend,
		"trading.max_trade_value": b.Trading.MaxTradeValue,
		"max_daily_spend":         b.MaxDailySpend,
	}
	for cat, v := range b.ValueThresholds {
		values["value_thresholds."+string(cat)] = v
	}
	for name, v := range values {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a finite value >= 0, got %v", ErrInvalidBoundaries, name, v)
		}
	}

	for cat := range b.ValueThresholds {
		if !slices.Contains(model.Categories, cat) {
			return fmt.Errorf("%w: value_thresholds: unknown category %q", ErrInvalidBoundaries, cat)
		}
	}
	for i, kw := range b.BlockedKeywords {
		if kw == "" {
			return fmt.Errorf("%w: blocked_keywords[%d] must not be empty", ErrInvalidBoundaries, i)
		}
	}
	if tw := b.TimeWindow; tw != nil {
		if tw.StartHour < 0 || tw.StartHour > 23 || tw.EndHour < 0 || tw.EndHour > 23 {
			return fmt.Errorf("%w: time_window hours must be within 0..23, got %d..%d", ErrInvalidBoundaries, tw.StartHour, tw.EndHour)
		}
		if tw.StartHour == tw.EndHour {
			return fmt.Errorf("%w: time_window must not be empty", ErrInvalidBoundaries)
		}
	}
	return nil
}
