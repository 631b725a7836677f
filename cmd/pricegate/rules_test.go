package main

import (
	"strings"
	"testing"
)

func TestRulesLint(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", testRules, false},
		{"duplicate id", "rules:\n  - id: a\n    action: ignore\n  - id: a\n    action: ignore\n", true},
		{"bad band", "rules:\n  - id: a\n    min_confidence: 0.9\n    max_confidence: 0.5\n", true},
		{"unknown action", "rules:\n  - id: a\n    action: shout\n", true},
		{"malformed yaml", "rules: [\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "rules.yaml", tt.content)
			out, err := execute(t, "rules", "lint", "--file", path, "-o", "text")
			if (err != nil) != tt.wantErr {
				t.Fatalf("rules lint error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(out, "2 rules valid") {
				t.Errorf("output = %q", out)
			}
		})
	}
}

func TestRulesList(t *testing.T) {
	path := writeFile(t, "rules.yaml", testRules)
	out, err := execute(t, "rules", "list", "--file", path, "-o", "csv")
	if err != nil {
		t.Fatalf("rules list error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "1,review-electronics,") || !strings.HasPrefix(lines[2], "10,standard,") {
		t.Errorf("rules not in priority order:\n%s", out)
	}
}
