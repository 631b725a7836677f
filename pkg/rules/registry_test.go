package rules

import (
	"context"
	"errors"
	"testing"

	"mercator-hq/pricegate/pkg/pricing"
)

func testRule(id string, priority int) pricing.Rule {
	return pricing.Rule{
		ID:                  id,
		Priority:            priority,
		MinConfidence:       0.5,
		MaxConfidence:       1.0,
		MaxPriceIncreasePct: 0.1,
		MaxPriceDecreasePct: 0.2,
		Action:              pricing.ActionApplyImmediately,
		Enabled:             true,
	}
}

func testRecommendation() pricing.Recommendation {
	return pricing.Recommendation{
		ProductID:        "sku-1",
		CurrentPrice:     100,
		RecommendedPrice: 90,
		Confidence:       0.9,
		Context: pricing.BusinessContext{
			Category:       "toys",
			UnitCost:       50,
			InventoryLevel: 250,
		},
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)

	if err := reg.Add(ctx, testRule("r1", 1)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := reg.Add(ctx, testRule("r1", 2)); !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("expected ErrDuplicateRule, got %v", err)
	}

	invalid := testRule("bad", 1)
	invalid.MinConfidence = 2
	if err := reg.Add(ctx, invalid); !errors.Is(err, pricing.ErrInvalidRule) {
		t.Errorf("expected ErrInvalidRule, got %v", err)
	}

	if err := reg.Remove(ctx, "r1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := reg.Remove(ctx, "r1"); !errors.Is(err, pricing.ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestRegistry_FindOrdering(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)

	for _, rule := range []pricing.Rule{testRule("c", 5), testRule("b", 1), testRule("a", 5)} {
		if err := reg.Add(ctx, rule); err != nil {
			t.Fatal(err)
		}
	}

	got, err := reg.Find(ctx, testRecommendation())
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("candidate %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestRegistry_FindExclusions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *pricing.Rule)
		want   bool
	}{
		{"matches", func(r *pricing.Rule) {}, true},
		{"disabled", func(r *pricing.Rule) { r.Enabled = false }, false},
		{"excluded product", func(r *pricing.Rule) { r.ExcludedProducts = []string{"sku-1"} }, false},
		{"category listed", func(r *pricing.Rule) { r.Categories = []string{"books", "toys"} }, true},
		{"category not listed", func(r *pricing.Rule) { r.Categories = []string{"books"} }, false},
		{"confidence below min", func(r *pricing.Rule) { r.MinConfidence = 0.95 }, false},
		{"confidence above max", func(r *pricing.Rule) { r.MinConfidence = 0.5; r.MaxConfidence = 0.8 }, false},
		{"confidence at inclusive bound", func(r *pricing.Rule) { r.MinConfidence = 0.9; r.MaxConfidence = 0.9 }, true},
		{"condition true", func(r *pricing.Rule) {
			r.Condition = map[string]any{">": []any{map[string]any{"var": "inventory_level"}, 100}}
		}, true},
		{"condition false", func(r *pricing.Rule) {
			r.Condition = map[string]any{"==": []any{map[string]any{"var": "category"}, "books"}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			reg := NewRegistry(nil, nil)

			rule := testRule("r", 1)
			tt.mutate(&rule)
			if err := reg.Add(ctx, rule); err != nil {
				t.Fatalf("Add failed: %v", err)
			}

			got, err := reg.Find(ctx, testRecommendation())
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if (len(got) == 1) != tt.want {
				t.Errorf("matched = %v, want %v", len(got) == 1, tt.want)
			}
		})
	}
}

func TestRegistry_SetEnabled(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)
	_ = reg.Add(ctx, testRule("r1", 1))

	if err := reg.SetEnabled(ctx, "r1", false); err != nil {
		t.Fatal(err)
	}
	got, _ := reg.Find(ctx, testRecommendation())
	if len(got) != 0 {
		t.Error("disabled rule should not be found")
	}

	if err := reg.SetEnabled(ctx, "missing", true); !errors.Is(err, pricing.ErrRuleNotFound) {
		t.Errorf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestRegistry_ReplaceIsAtomic(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)
	_ = reg.Add(ctx, testRule("keep", 1))

	bad := testRule("broken", 1)
	bad.Action = "unknown"
	err := reg.Replace(ctx, []pricing.Rule{testRule("new", 1), bad})
	if err == nil {
		t.Fatal("expected Replace to fail")
	}

	rules, _ := reg.List(ctx)
	if len(rules) != 1 || rules[0].ID != "keep" {
		t.Errorf("failed Replace must leave rules untouched, got %v", rules)
	}

	if err := reg.Replace(ctx, []pricing.Rule{testRule("x", 1), testRule("x", 2)}); !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("expected ErrDuplicateRule, got %v", err)
	}
}

func TestRegistry_FindReturnsCopies(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, nil)
	rule := testRule("r1", 1)
	rule.Categories = []string{"toys"}
	_ = reg.Add(ctx, rule)

	got, _ := reg.Find(ctx, testRecommendation())
	got[0].Categories[0] = "mutated"

	again, _ := reg.Find(ctx, testRecommendation())
	if len(again) != 1 || again[0].Categories[0] != "toys" {
		t.Error("callers must not be able to mutate registered rules")
	}
}

func TestRegistry_InvalidConditionRejected(t *testing.T) {
	rule := testRule("r1", 1)
	rule.Condition = map[string]any{"var": "category"}

	err := NewRegistry(nil, nil).Add(context.Background(), rule)
	if !errors.Is(err, pricing.ErrInvalidRule) {
		t.Errorf("expected non-boolean condition to be rejected, got %v", err)
	}
}
