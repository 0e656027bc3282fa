package risk

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ppiankov/actiongate/internal/model"
)

func newTestClassifier(t *testing.T, mutate func(*Config)) *Classifier {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClassifier(cfg)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	return c
}

func smallTrade() model.Action {
	return model.Action{
		ID:       "trade-1",
		Engine:   model.EngineMoney,
		Category: model.CategoryTrading,
		Type:     "market_buy",
		Metadata: model.Metadata{EstimatedValue: 10, Reversible: false, Urgency: model.UrgencyNormal},
	}
}

func TestSmallIrreversibleTradeIsLow(t *testing.T) {
	c := newTestClassifier(t, nil)
	ra := c.Classify(smallTrade())

	if ra.Level != model.RiskLow {
		t.Errorf("expected low, got %s (score %.2f)", ra.Level, ra.Score)
	}
	if ra.Recommendation != model.AutoExecute {
		t.Errorf("expected auto_execute, got %s", ra.Recommendation)
	}
	if len(ra.Factors) != 5 {
		t.Errorf("expected 5 factors, got %d", len(ra.Factors))
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := newTestClassifier(t, nil)
	actions := []model.Action{
		smallTrade(),
		{ID: "c", Engine: model.EngineGrowth, Category: model.CategoryContent, Type: "publish_blog",
			Metadata: model.Metadata{EstimatedValue: 250, Reversible: true, Urgency: model.UrgencyHigh}},
		{ID: "k", Engine: model.EngineOrchestrator, Category: model.CategoryConfiguration, Type: "change_api_keys",
			Metadata: model.Metadata{Urgency: model.UrgencyCritical}},
	}
	for _, a := range actions {
		first := c.Classify(a)
		second := c.Classify(a)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("classification of %s not deterministic:\n%+v\n%+v", a.ID, first, second)
		}
	}
}

func TestScoreMonotonicInValue(t *testing.T) {
	c := newTestClassifier(t, nil)
	a := smallTrade()
	prev := -1.0
	for _, v := range []float64{0, 1, 10, 50, 100, 250, 1000, 5000, 1e6} {
		a.Metadata.EstimatedValue = v
		score := c.Classify(a).Score
		if score < prev {
			t.Fatalf("score decreased at value %v: %.2f < %.2f", v, score, prev)
		}
		prev = score
	}
}

func TestSignDoesNotMatter(t *testing.T) {
	c := newTestClassifier(t, nil)
	a := smallTrade()
	a.Metadata.EstimatedValue = 500
	pos := c.Classify(a).Score
	a.Metadata.EstimatedValue = -500
	neg := c.Classify(a).Score
	if pos != neg {
		t.Errorf("expected equal scores for +/-500, got %.2f and %.2f", pos, neg)
	}
}

func TestFinancialCurve(t *testing.T) {
	tests := []struct {
		value    float64
		min, max float64
	}{
		{0, 0, 0},
		{100, 35, 45},
		{1000, 78, 90},
		{1e9, 99, 100},
	}
	for _, tt := range tests {
		got := FinancialScore(tt.value, 150)
		if got < tt.min || got > tt.max {
			t.Errorf("FinancialScore(%v) = %.2f, want [%v, %v]", tt.value, got, tt.min, tt.max)
		}
	}
}

func TestSensitiveTypeIsCritical(t *testing.T) {
	c := newTestClassifier(t, nil)
	a := model.Action{
		ID:       "keys",
		Engine:   model.EngineOrchestrator,
		Category: model.CategoryConfiguration,
		Type:     "change_api_keys",
		Metadata: model.Metadata{Reversible: false, Urgency: model.UrgencyCritical},
	}
	ra := c.Classify(a)
	if ra.Level != model.RiskCritical {
		t.Fatalf("expected critical, got %s (%.2f)", ra.Level, ra.Score)
	}
	if ra.Recommendation != model.Escalate {
		t.Errorf("expected escalate, got %s", ra.Recommendation)
	}
	found := false
	for _, f := range ra.Factors {
		if f.Name == FactorSensitiveType {
			found = true
		}
	}
	if !found {
		t.Error("expected sensitive_type factor")
	}
}

func TestAdditionalSafeActionsForceAutoExecute(t *testing.T) {
	c := newTestClassifier(t, func(cfg *Config) {
		cfg.AdditionalSafeActions = []string{"Rebalance_Portfolio"}
	})
	a := smallTrade()
	a.Type = "rebalance_portfolio"
	a.Metadata.EstimatedValue = 100000
	a.Metadata.Urgency = model.UrgencyCritical

	ra := c.Classify(a)
	if ra.Level.Rank() < model.RiskHigh.Rank() {
		t.Fatalf("expected high risk for a large urgent trade, got %s", ra.Level)
	}
	if ra.Recommendation != model.AutoExecute {
		t.Errorf("expected auto_execute for allow-listed type, got %s", ra.Recommendation)
	}
}

func TestCategoryOverride(t *testing.T) {
	base := newTestClassifier(t, nil)
	over := newTestClassifier(t, func(cfg *Config) {
		cfg.CategoryRiskOverrides = map[model.Category]float64{model.CategoryOperations: 100}
	})
	a := model.Action{ID: "o", Engine: model.EngineProduct, Category: model.CategoryOperations, Type: "restart_worker",
		Metadata: model.Metadata{Reversible: true, Urgency: model.UrgencyLow}}

	if over.Classify(a).Score <= base.Classify(a).Score {
		t.Error("expected override to raise the score")
	}
}

func TestLevelThresholds(t *testing.T) {
	th := DefaultConfig().Thresholds
	tests := []struct {
		score float64
		want  model.RiskLevel
	}{
		{0, model.RiskSafe},
		{20, model.RiskSafe},
		{21, model.RiskLow},
		{40, model.RiskLow},
		{41, model.RiskMedium},
		{60, model.RiskMedium},
		{61, model.RiskHigh},
		{80, model.RiskHigh},
		{81, model.RiskCritical},
		{100, model.RiskCritical},
	}
	for _, tt := range tests {
		if got := th.LevelFor(tt.score); got != tt.want {
			t.Errorf("LevelFor(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
	for _, lvl := range model.RiskLevels {
		if got := th.LevelFor(th.MinScore(lvl)); got != lvl {
			t.Errorf("MinScore(%s) lands in %s", lvl, got)
		}
	}
}

func TestConstraintsForRiskyTrade(t *testing.T) {
	c := newTestClassifier(t, nil)
	a := smallTrade()
	a.Metadata.EstimatedValue = 2000
	a.Metadata.Urgency = model.UrgencyCritical
	ra := c.Classify(a)

	want := map[string]bool{
		"requires stop-loss":                      false,
		"position size capped at per-trade limit": false,
		"irreversible: no automatic rollback":     false,
		"compressed review window":                false,
	}
	for _, s := range ra.Constraints {
		if _, ok := want[s]; ok {
			want[s] = true
		}
	}
	for s, seen := range want {
		if !seen {
			t.Errorf("missing constraint %q in %v", s, ra.Constraints)
		}
	}
}

func TestInvalidConfigFailsFast(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Weights.Financial = -1 }},
		{"zero weights", func(c *Config) { c.Weights = Weights{} }},
		{"unordered thresholds", func(c *Config) { c.Thresholds.Low = 10 }},
		{"zero half value", func(c *Config) { c.FinancialHalfValue = 0 }},
		{"score out of range", func(c *Config) { c.Urgency.Critical = 150 }},
		{"bad override", func(c *Config) {
			c.CategoryRiskOverrides = map[model.Category]float64{model.CategoryTrading: -5}
		}},
		{"reject below high", func(c *Config) { c.RejectScore = 50 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewClassifier(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
