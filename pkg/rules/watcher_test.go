package rules

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - id: first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(nil, nil)
	w, err := NewWatcher(path, reg, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Reload(ctx); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}

	go func() { _ = w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("rules:\n  - id: second\n  - id: third\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rules, _ := reg.List(ctx)
		if len(rules) == 2 && rules[0].ID == "second" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("registry was not reloaded after the rules file changed")
}

func TestWatcher_KeepsRulesOnBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - id: good\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	reg := NewRegistry(nil, nil)
	w, err := NewWatcher(path, reg, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("rules: [:"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(ctx); err == nil {
		t.Fatal("expected reload of a broken file to fail")
	}

	rules, _ := reg.List(ctx)
	if len(rules) != 1 || rules[0].ID != "good" {
		t.Errorf("previous rules should survive a failed reload, got %v", rules)
	}
}

func TestWatcher_OnReloadReceivesFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - id: first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(nil, nil)
	w, err := NewWatcher(path, reg, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Stop() }()

	var calls atomic.Int32
	var lastID atomic.Value
	w.OnReload(func(ctx context.Context, rules []pricing.Rule) error {
		calls.Add(1)
		if len(rules) > 0 {
			lastID.Store(rules[0].ID)
		}
		return reg.Replace(ctx, rules)
	})

	go func() { _ = w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("rules:\n  - id: second\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() > 0 && lastID.Load() == "second" {
			rules, _ := reg.List(ctx)
			if len(rules) != 1 || rules[0].ID != "second" {
				t.Errorf("registry = %v, want the reloaded rule", rules)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("reload callback was not invoked after the rules file changed")
}

func TestDebouncer_Trigger(t *testing.T) {
	debouncer := NewDebouncer(100 * time.Millisecond)
	defer debouncer.Stop()

	var callCount atomic.Int32
	for i := 0; i < 5; i++ {
		debouncer.Trigger(func() { callCount.Add(1) })
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	if count := callCount.Load(); count != 1 {
		t.Errorf("Callback called %d times, want 1", count)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	debouncer := NewDebouncer(100 * time.Millisecond)

	var callCount atomic.Int32
	debouncer.Trigger(func() { callCount.Add(1) })
	debouncer.Stop()
	debouncer.Stop()

	time.Sleep(150 * time.Millisecond)

	if count := callCount.Load(); count != 0 {
		t.Errorf("Callback called %d times after Stop(), want 0", count)
	}
}
