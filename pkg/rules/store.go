package rules

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/pricegate/pkg/pricing"
)

// Store persists rules. Implementations must be safe for concurrent use and
// must hand out copies so callers cannot mutate stored rules.
type Store interface {
	// Put inserts or replaces a rule.
	Put(ctx context.Context, rule pricing.Rule) error

	// Delete removes a rule. Returns pricing.ErrRuleNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Get returns a rule. Returns pricing.ErrRuleNotFound if absent.
	Get(ctx context.Context, id string) (pricing.Rule, error)

	// List returns every rule in no particular order.
	List(ctx context.Context) ([]pricing.Rule, error)

	// ReplaceAll atomically swaps the full rule set.
	ReplaceAll(ctx context.Context, rules []pricing.Rule) error
}

// MemoryStore is a Store backed by a map guarded by a sync.RWMutex.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]pricing.Rule
}

// NewMemoryStore creates an empty in-memory rule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]pricing.Rule)}
}

// Put inserts or replaces a rule.
func (m *MemoryStore) Put(ctx context.Context, rule pricing.Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rules[rule.ID] = rule.Clone()
	return nil
}

// Delete removes a rule.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	delete(m.rules, id)
	return nil
}

// Get returns a copy of a rule.
func (m *MemoryStore) Get(ctx context.Context, id string) (pricing.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return pricing.Rule{}, fmt.Errorf("%w: %s", pricing.ErrRuleNotFound, id)
	}
	return rule.Clone(), nil
}

// List returns copies of all rules.
func (m *MemoryStore) List(ctx context.Context) ([]pricing.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pricing.Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		out = append(out, rule.Clone())
	}
	return out, nil
}

// ReplaceAll swaps the rule set.
func (m *MemoryStore) ReplaceAll(ctx context.Context, rules []pricing.Rule) error {
	next := make(map[string]pricing.Rule, len(rules))
	for _, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("rule id cannot be empty")
		}
		next[rule.ID] = rule.Clone()
	}

	m.mu.Lock()
	m.rules = next
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored rules.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}
