package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testRules = `rules:
  - id: review-electronics
    priority: 1
    categories: [electronics]
    min_confidence: 0.5
    max_price_increase_pct: 0.10
    max_price_decrease_pct: 0.10
    max_changes_per_day: 5
    action: apply_with_approval
  - id: standard
    priority: 10
    min_confidence: 0.8
    max_price_increase_pct: 0.10
    max_price_decrease_pct: 0.20
    max_changes_per_day: 5
    action: apply_immediately
`

var testDir string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "pricegate-cmd")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	testDir = dir

	rulesPath := filepath.Join(dir, "rules.yaml")
	configPath := filepath.Join(dir, "pricegate.yaml")
	cfg := fmt.Sprintf(`rules:
  path: %s
storage:
  backend: sqlite
  sqlite:
    decisions_path: %s
    history_path: %s
sink:
  mode: log
telemetry:
  logging:
    level: error
  metrics:
    enabled: false
`, rulesPath, filepath.Join(dir, "data", "decisions.db"), filepath.Join(dir, "data", "history.db"))

	if err := os.WriteFile(rulesPath, []byte(testRules), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfgFile = configPath

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestEvaluateApproveHistory(t *testing.T) {
	recs := writeFile(t, "recs.json", `[
	  {"product_id": "cli-sku-1", "current_price": 100, "recommended_price": 95, "confidence": 0.9,
	   "context": {"category": "toys", "unit_cost": 60}},
	  {"product_id": "cli-sku-2", "current_price": 200, "recommended_price": 190, "confidence": 0.9,
	   "context": {"category": "electronics", "unit_cost": 120}}
	]`)

	out, err := execute(t, "evaluate", "--file", recs, "--no-progress", "-o", "json")
	if err != nil {
		t.Fatalf("evaluate error = %v", err)
	}
	var rows []map[string]string
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("evaluate output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["status"] != "applied" {
		t.Errorf("cli-sku-1 status = %q, want applied", rows[0]["status"])
	}
	if rows[1]["status"] != "manual_review" {
		t.Fatalf("cli-sku-2 status = %q, want manual_review", rows[1]["status"])
	}
	id := rows[1]["decision"]

	out, err = execute(t, "pending", "-o", "csv")
	if err != nil {
		t.Fatalf("pending error = %v", err)
	}
	if !strings.Contains(out, id) {
		t.Errorf("pending output missing %s:\n%s", id, out)
	}

	out, err = execute(t, "approve", id, "--yes", "--approver", "qa", "-o", "text")
	if err != nil {
		t.Fatalf("approve error = %v", err)
	}
	if !strings.Contains(out, "applied") {
		t.Errorf("approve output = %q", out)
	}

	out, err = execute(t, "history", "cli-sku-2", "-o", "json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	var entries []map[string]string
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0]["type"] != "manual_approval" || entries[0]["new"] != "190.00" {
		t.Errorf("history = %v", entries)
	}

	out, err = execute(t, "show", id)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	if !strings.Contains(out, `"resolved_by": "qa"`) {
		t.Errorf("show output missing resolver:\n%s", out)
	}
}

func TestApproveUnknownDecision(t *testing.T) {
	_, err := execute(t, "approve", "does-not-exist", "--yes", "--approver", "qa")
	if err == nil {
		t.Fatal("expected an error for an unknown decision")
	}
}

func TestEvaluateRejectsMalformedFile(t *testing.T) {
	path := writeFile(t, "bad.json", `{"product_id": `)
	if _, err := execute(t, "evaluate", "--file", path, "--no-progress"); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestDecisionsStatusFilter(t *testing.T) {
	if _, err := execute(t, "decisions", "--status", "applied", "-o", "csv"); err != nil {
		t.Fatalf("decisions error = %v", err)
	}
	if _, err := execute(t, "decisions", "--status", "bogus"); err == nil {
		t.Fatal("expected an error for an unknown status")
	}
}

func TestAlertsJSON(t *testing.T) {
	out, err := execute(t, "alerts", "--hours", "1", "-o", "json")
	if err != nil {
		t.Fatalf("alerts error = %v", err)
	}
	var summary struct {
		Hours    int               `json:"hours"`
		Controls []json.RawMessage `json:"controls"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("alerts output is not JSON: %v\n%s", err, out)
	}
	if summary.Hours != 1 || len(summary.Controls) != 5 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestSweep(t *testing.T) {
	out, err := execute(t, "sweep", "-o", "text")
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}
	if !strings.Contains(out, "expire:") || !strings.Contains(out, "prune:") {
		t.Errorf("sweep output = %q", out)
	}
	if _, err := execute(t, "sweep", "vacuum"); err == nil {
		t.Error("expected an error for an unknown job")
	}
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := execute(t, "pending", "-o", "yaml")
	if err == nil {
		t.Fatal("expected an error for an unknown output format")
	}
	outputFmt = "text"
}
