package pricing

import (
	"errors"
	"math"
	"testing"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusApplied, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusManualReview, true},
		{StatusPending, StatusExpired, true},
		{StatusManualReview, StatusApplied, true},
		{StatusManualReview, StatusRejected, true},
		{StatusManualReview, StatusExpired, true},
		{StatusManualReview, StatusPending, false},
		{StatusManualReview, StatusManualReview, false},
		{StatusApplied, StatusManualReview, false},
		{StatusApplied, StatusRejected, false},
		{StatusRejected, StatusApplied, false},
		{StatusExpired, StatusManualReview, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRule_Validate(t *testing.T) {
	valid := Rule{
		ID:                  "r1",
		MinConfidence:       0.8,
		MaxConfidence:       1.0,
		MaxPriceIncreasePct: 0.1,
		MaxPriceDecreasePct: 0.2,
		Action:              ActionApplyImmediately,
		Enabled:             true,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}

	bad := valid
	bad.ID = ""
	bad.ActiveHours = []int{25}
	bad.Action = "explode"
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
	var ruleErr *RuleError
	if !errors.As(err, &ruleErr) || len(ruleErr.Problems) != 3 {
		t.Errorf("expected 3 problems, got %v", err)
	}
}

func TestSortRules(t *testing.T) {
	rules := []Rule{
		{ID: "b", Priority: 2},
		{ID: "z", Priority: 1},
		{ID: "a", Priority: 2},
	}
	SortRules(rules)

	want := []string{"z", "a", "b"}
	for i, id := range want {
		if rules[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, rules[i].ID, id)
		}
	}
}

func TestRule_CloneCopiesNestedCondition(t *testing.T) {
	r := Rule{ID: "r1", Condition: map[string]any{
		"and": []any{
			map[string]any{">": []any{map[string]any{"var": "signals.demand"}, 0.5}},
			map[string]any{"in": []any{map[string]any{"var": "category"}, []any{"shoes", "bags"}}},
		},
	}}
	c := r.Clone()

	clauses := c.Condition["and"].([]any)
	gt := clauses[0].(map[string]any)
	gt[">"].([]any)[1] = 0.9
	in := clauses[1].(map[string]any)["in"].([]any)
	in[1].([]any)[0] = "hats"
	clauses[1] = map[string]any{"==": []any{1, 1}}

	orig := r.Condition["and"].([]any)
	if got := orig[0].(map[string]any)[">"].([]any)[1]; got != 0.5 {
		t.Errorf("original threshold = %v, want 0.5", got)
	}
	origIn, ok := orig[1].(map[string]any)["in"].([]any)
	if !ok {
		t.Fatalf("original clause replaced: %v", orig[1])
	}
	if got := origIn[1].([]any)[0]; got != "shoes" {
		t.Errorf("original category = %v, want shoes", got)
	}
}

func TestRule_CloneIsIndependent(t *testing.T) {
	minPrice := 5.0
	r := Rule{ID: "r", Categories: []string{"toys"}, MinPrice: &minPrice}
	c := r.Clone()
	c.Categories[0] = "books"
	*c.MinPrice = 9

	if r.Categories[0] != "toys" || *r.MinPrice != 5 {
		t.Error("mutating the clone changed the original rule")
	}
}

func TestRecommendation_Validate(t *testing.T) {
	base := Recommendation{ProductID: "p1", CurrentPrice: 10, RecommendedPrice: 9, Confidence: 0.9}
	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		mut   func(r *Recommendation)
		field string
	}{
		{"empty product", func(r *Recommendation) { r.ProductID = " " }, "product_id"},
		{"zero price", func(r *Recommendation) { r.CurrentPrice = 0 }, "current_price"},
		{"nan price", func(r *Recommendation) { r.RecommendedPrice = math.NaN() }, "recommended_price"},
		{"confidence above one", func(r *Recommendation) { r.Confidence = 1.5 }, "confidence"},
		{"infinite cost", func(r *Recommendation) { r.Context.UnitCost = math.Inf(1) }, "context.unit_cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := base
			tt.mut(&rec)
			err := rec.Validate()
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("field = %s, want %s", vErr.Field, tt.field)
			}
			if !errors.Is(err, ErrInvalidRecommendation) {
				t.Error("expected error to wrap ErrInvalidRecommendation")
			}
		})
	}
}
