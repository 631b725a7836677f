package evaluator_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/pricegate/pkg/evaluator"
	"mercator-hq/pricegate/pkg/history"
	"mercator-hq/pricegate/pkg/history/storage"
	"mercator-hq/pricegate/pkg/pricing"
	"mercator-hq/pricegate/pkg/rules"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func floatPtr(f float64) *float64 { return &f }

func baseRule(id string) pricing.Rule {
	return pricing.Rule{
		ID:                  id,
		Priority:            10,
		MinConfidence:       0.85,
		MaxConfidence:       1,
		MaxPriceIncreasePct: 0.10,
		MaxPriceDecreasePct: 0.20,
		Action:              pricing.ActionApplyImmediately,
		Enabled:             true,
	}
}

func rec(current, recommended, confidence float64) pricing.Recommendation {
	return pricing.Recommendation{
		ProductID:        "sku-1",
		CurrentPrice:     current,
		RecommendedPrice: recommended,
		Confidence:       confidence,
		Context:          pricing.BusinessContext{Category: "toys"},
	}
}

type fixture struct {
	registry *rules.Registry
	tracker  *history.Tracker
	eval     *evaluator.Evaluator
}

func newFixture(t *testing.T, rs ...pricing.Rule) *fixture {
	t.Helper()
	registry := rules.NewRegistry(nil, nil)
	for _, r := range rs {
		if err := registry.Add(context.Background(), r); err != nil {
			t.Fatalf("Add(%s) error = %v", r.ID, err)
		}
	}
	tracker := history.NewTracker(storage.NewMemoryStore(), time.UTC)
	return &fixture{
		registry: registry,
		tracker:  tracker,
		eval:     evaluator.New(registry, tracker, nil),
	}
}

func (f *fixture) record(t *testing.T, ruleID string, at time.Time) {
	t.Helper()
	err := f.tracker.Record(context.Background(), pricing.HistoryEntry{
		ProductID:  "sku-1",
		Timestamp:  at,
		OldPrice:   100,
		NewPrice:   95,
		RuleID:     ruleID,
		ChangeType: pricing.ChangeAutomatic,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
}

func TestEvaluate_Gates(t *testing.T) {
	tests := []struct {
		name     string
		rule     func(r *pricing.Rule)
		rec      pricing.Recommendation
		history  []time.Duration // entries for the rule, as offsets before now
		wantRule string
		wantGate evaluator.Gate
	}{
		{
			name:     "decrease within limit",
			rec:      rec(100, 90, 0.9),
			wantRule: "r1",
		},
		{
			name:     "decrease exactly at limit",
			rec:      rec(100, 80, 0.9),
			wantRule: "r1",
		},
		{
			name:     "decrease beyond limit",
			rule:     func(r *pricing.Rule) { r.MaxPriceDecreasePct = 0.10 },
			rec:      rec(100, 80, 0.9),
			wantGate: evaluator.GatePriceLimit,
		},
		{
			name:     "increase beyond limit",
			rec:      rec(100, 115, 0.9),
			wantGate: evaluator.GatePriceLimit,
		},
		{
			name:     "below absolute minimum",
			rule:     func(r *pricing.Rule) { r.MinPrice = floatPtr(95) },
			rec:      rec(100, 90, 0.9),
			wantGate: evaluator.GatePriceLimit,
		},
		{
			name:     "above absolute maximum",
			rule:     func(r *pricing.Rule) { r.MaxPrice = floatPtr(104) },
			rec:      rec(100, 105, 0.9),
			wantGate: evaluator.GatePriceLimit,
		},
		{
			name: "margin too thin",
			rule: func(r *pricing.Rule) {
				r.RequireMarginCheck = true
				r.MinProfitMargin = 0.2
			},
			rec: func() pricing.Recommendation {
				r := rec(100, 90, 0.9)
				r.Context.UnitCost = 85
				return r
			}(),
			wantGate: evaluator.GateMargin,
		},
		{
			name: "margin bypassed without cost",
			rule: func(r *pricing.Rule) {
				r.RequireMarginCheck = true
				r.MinProfitMargin = 0.5
			},
			rec:      rec(100, 90, 0.9),
			wantRule: "r1",
		},
		{
			name:     "in cooldown",
			rule:     func(r *pricing.Rule) { r.CooldownHours = 6 },
			rec:      rec(100, 90, 0.9),
			history:  []time.Duration{time.Hour},
			wantGate: evaluator.GateCooldown,
		},
		{
			name:     "cooldown elapsed",
			rule:     func(r *pricing.Rule) { r.CooldownHours = 6 },
			rec:      rec(100, 90, 0.9),
			history:  []time.Duration{7 * time.Hour},
			wantRule: "r1",
		},
		{
			name:     "daily limit reached",
			rule:     func(r *pricing.Rule) { r.MaxChangesPerDay = 2 },
			rec:      rec(100, 90, 0.9),
			history:  []time.Duration{time.Hour, 2 * time.Hour},
			wantGate: evaluator.GateDailyLimit,
		},
		{
			name:     "yesterday does not count",
			rule:     func(r *pricing.Rule) { r.MaxChangesPerDay = 1 },
			rec:      rec(100, 90, 0.9),
			history:  []time.Duration{13 * time.Hour},
			wantRule: "r1",
		},
		{
			name:     "outside active hours",
			rule:     func(r *pricing.Rule) { r.ActiveHours = []int{1, 2, 3} },
			rec:      rec(100, 90, 0.9),
			wantGate: evaluator.GateActiveHours,
		},
		{
			name:     "inside active hours",
			rule:     func(r *pricing.Rule) { r.ActiveHours = []int{11, 12} },
			rec:      rec(100, 90, 0.9),
			wantRule: "r1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRule("r1")
			if tt.rule != nil {
				tt.rule(&r)
			}
			f := newFixture(t, r)
			for _, offset := range tt.history {
				f.record(t, "r1", now.Add(-offset))
			}

			got, err := f.eval.Evaluate(context.Background(), tt.rec, now)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}

			if tt.wantRule != "" {
				if !got.Matched() || got.Rule.ID != tt.wantRule {
					t.Fatalf("matched = %v, want rule %s (summary %q)", got.Rule, tt.wantRule, got.Summary())
				}
				return
			}

			if got.Matched() {
				t.Fatalf("unexpected match %s", got.Rule.ID)
			}
			if got.Reason != evaluator.NoRuleReason {
				t.Errorf("Reason = %q, want %q", got.Reason, evaluator.NoRuleReason)
			}
			found := false
			for _, failure := range got.Failures() {
				if failure.Gate == tt.wantGate {
					found = true
				}
			}
			if !found {
				t.Errorf("gate %s not among failures %+v", tt.wantGate, got.Failures())
			}
		})
	}
}

func TestEvaluate_AllGatesReported(t *testing.T) {
	r := baseRule("r1")
	r.MaxPriceDecreasePct = 0.05
	r.ActiveHours = []int{3}
	r.CooldownHours = 6

	f := newFixture(t, r)
	f.record(t, "r1", now.Add(-time.Hour))

	got, err := f.eval.Evaluate(context.Background(), rec(100, 90, 0.9), now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(got.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got.Candidates))
	}
	if n := len(got.Candidates[0].Failures); n != 3 {
		t.Errorf("failures = %d, want 3: %+v", n, got.Candidates[0].Failures)
	}
	if !strings.Contains(got.Summary(), "r1:") {
		t.Errorf("Summary() = %q, want rule prefix", got.Summary())
	}
}

func TestEvaluate_PriorityFallthrough(t *testing.T) {
	strict := baseRule("a-strict")
	strict.Priority = 1
	strict.MaxPriceDecreasePct = 0.05

	loose := baseRule("b-loose")
	loose.Priority = 2
	loose.Action = pricing.ActionApplyWithApproval

	outOfRange := baseRule("c-low-confidence")
	outOfRange.Priority = 0
	outOfRange.MinConfidence = 0.5
	outOfRange.MaxConfidence = 0.8

	f := newFixture(t, loose, strict, outOfRange)

	got, err := f.eval.Evaluate(context.Background(), rec(100, 90, 0.9), now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got.Matched() || got.Rule.ID != "b-loose" {
		t.Fatalf("matched %v, want b-loose", got.Rule)
	}
	if got.Action() != pricing.ActionApplyWithApproval {
		t.Errorf("Action() = %s", got.Action())
	}
	if len(got.Candidates) != 2 || got.Candidates[0].RuleID != "a-strict" {
		t.Errorf("candidates = %+v, want [a-strict b-loose]", got.Candidates)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	a := baseRule("alpha")
	b := baseRule("beta")
	f := newFixture(t, b, a)

	for i := 0; i < 20; i++ {
		got, err := f.eval.Evaluate(context.Background(), rec(100, 95, 0.9), now)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if got.Rule.ID != "alpha" {
			t.Fatalf("iteration %d matched %s, want alpha", i, got.Rule.ID)
		}
	}
}

func TestEvaluate_NoOp(t *testing.T) {
	f := newFixture(t, baseRule("r1"))

	got, err := f.eval.Evaluate(context.Background(), rec(100, 100, 0.9), now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !got.NoOp || got.Matched() {
		t.Errorf("got NoOp=%v Matched=%v, want no-op without rule", got.NoOp, got.Matched())
	}
	if got.Reason != evaluator.NoOpReason {
		t.Errorf("Reason = %q", got.Reason)
	}

	got, err = f.eval.Evaluate(context.Background(), rec(100, 100.004, 0.9), now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got.NoOp {
		t.Error("sub-cent change treated as a no-op")
	}
}

func TestEvaluate_NoCandidates(t *testing.T) {
	f := newFixture(t)
	got, err := f.eval.Evaluate(context.Background(), rec(100, 90, 0.9), now)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got.Matched() || got.Reason != evaluator.NoRuleReason {
		t.Errorf("got %+v, want no-rule result", got)
	}
}

type failingFinder struct{}

func (failingFinder) Find(context.Context, pricing.Recommendation) ([]pricing.Rule, error) {
	return nil, errors.New("disk on fire")
}

func TestEvaluate_RuleLookupError(t *testing.T) {
	tracker := history.NewTracker(storage.NewMemoryStore(), time.UTC)
	eval := evaluator.New(failingFinder{}, tracker, nil)

	_, err := eval.Evaluate(context.Background(), rec(100, 90, 0.9), now)
	if !errors.Is(err, evaluator.ErrRuleLookup) {
		t.Fatalf("error = %v, want ErrRuleLookup", err)
	}
}
