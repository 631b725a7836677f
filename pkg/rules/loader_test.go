package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/pricegate/pkg/pricing"
)

const sampleRules = `
rules:
  - id: slow-movers
    priority: 20
    min_confidence: 0.5
    max_confidence: 0.8
    max_price_increase_pct: 0.05
    max_price_decrease_pct: 0.10
    action: apply_with_approval
  - id: high-confidence
    priority: 10
    min_confidence: 0.85
    max_price_increase_pct: 0.10
    max_price_decrease_pct: 0.20
    cooldown_hours: 6
    max_changes_per_day: 3
    active_hours: [8, 9, 10, 11, 12, 13, 14, 15, 16, 17]
    require_margin_check: true
    min_profit_margin: 0.15
    min_price: 4.99
    action: apply_immediately
    condition:
      ">": [{"var": "inventory_level"}, 10]
`

func TestParse(t *testing.T) {
	rules, err := Parse([]byte(sampleRules))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}

	first := rules[0]
	if first.ID != "high-confidence" {
		t.Errorf("rules must be sorted by priority, first = %s", first.ID)
	}
	if !first.Enabled {
		t.Error("rules default to enabled")
	}
	if first.MaxConfidence != 1 {
		t.Errorf("max_confidence default = %v, want 1", first.MaxConfidence)
	}
	if first.MinPrice == nil || *first.MinPrice != 4.99 {
		t.Errorf("min_price = %v, want 4.99", first.MinPrice)
	}
	if len(first.ActiveHours) != 10 {
		t.Errorf("active_hours = %v", first.ActiveHours)
	}
	if first.Condition == nil {
		t.Error("condition should be decoded")
	}
	if rules[1].Action != pricing.ActionApplyWithApproval {
		t.Errorf("action = %s", rules[1].Action)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "rules: [:"},
		{"missing id", "rules:\n  - priority: 1\n"},
		{"unknown action", "rules:\n  - id: a\n    action: launch\n"},
		{"duplicate id", "rules:\n  - id: a\n  - id: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(sampleRules), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(rules) != 2 {
		t.Errorf("got %d rules, want 2", len(rules))
	}

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadFile_ExampleRules(t *testing.T) {
	rules, err := LoadFile(filepath.Join("..", "..", "examples", "config", "rules.yaml"))
	if err != nil {
		t.Fatalf("example rules do not load: %v", err)
	}
	want := []string{"electronics-review", "clearance", "standard", "low-confidence"}
	if len(rules) != len(want) {
		t.Fatalf("got %d rules, want %d", len(rules), len(want))
	}
	for i, id := range want {
		if rules[i].ID != id {
			t.Errorf("rules[%d] = %s, want %s", i, rules[i].ID, id)
		}
	}
}
