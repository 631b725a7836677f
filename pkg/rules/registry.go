package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/pricegate/pkg/pricing"
)

// ErrDuplicateRule is returned by Add when the rule ID is already registered.
var ErrDuplicateRule = errors.New("duplicate rule id")

// Registry is the ordered set of pricing rules.
type Registry struct {
	store  Store
	logger *slog.Logger
}

// NewRegistry creates a registry on top of store. A nil store gets a fresh
// MemoryStore.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: logger.With("component", "rules.registry"),
	}
}

// Add validates and registers a new rule.
func (r *Registry) Add(ctx context.Context, rule pricing.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := validateCondition(rule); err != nil {
		return err
	}

	if _, err := r.store.Get(ctx, rule.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	} else if !errors.Is(err, pricing.ErrRuleNotFound) {
		return err
	}

	if err := r.store.Put(ctx, rule); err != nil {
		return err
	}

	r.logger.Info("rule added",
		"rule_id", rule.ID,
		"priority", rule.Priority,
		"action", rule.Action,
	)
	return nil
}

// Remove unregisters a rule.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("rule removed", "rule_id", id)
	return nil
}

// SetEnabled toggles a rule.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	rule, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	rule.Enabled = enabled
	if err := r.store.Put(ctx, rule); err != nil {
		return err
	}
	r.logger.Info("rule toggled", "rule_id", id, "enabled", enabled)
	return nil
}

// Get returns a copy of one rule.
func (r *Registry) Get(ctx context.Context, id string) (pricing.Rule, error) {
	return r.store.Get(ctx, id)
}

// List returns all rules in evaluation order.
func (r *Registry) List(ctx context.Context) ([]pricing.Rule, error) {
	rules, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	pricing.SortRules(rules)
	return rules, nil
}

// Replace validates a complete rule set and swaps it in atomically.
// Nothing changes if any rule is invalid.
func (r *Registry) Replace(ctx context.Context, rules []pricing.Rule) error {
	if err := ValidateSet(rules); err != nil {
		return err
	}
	if err := r.store.ReplaceAll(ctx, rules); err != nil {
		return err
	}
	r.logger.Info("rule set replaced", "rule_count", len(rules))
	return nil
}

// Find returns the rules applicable to rec, in evaluation order.
func (r *Registry) Find(ctx context.Context, rec pricing.Recommendation) ([]pricing.Rule, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	candidates := make([]pricing.Rule, 0, len(all))
	for _, rule := range all {
		if !matches(rule, rec) {
			continue
		}
		if len(rule.Condition) > 0 {
			if data == nil {
				data = rec.Data()
			}
			ok, err := EvaluateCondition(rule.Condition, data)
			if err != nil {
				r.logger.Warn("rule condition failed, skipping rule",
					"rule_id", rule.ID,
					"product_id", rec.ProductID,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}
		}
		candidates = append(candidates, rule)
	}

	pricing.SortRules(candidates)
	return candidates, nil
}

// matches applies the static exclusion filters.
func matches(rule pricing.Rule, rec pricing.Recommendation) bool {
	if !rule.Enabled {
		return false
	}
	for _, excluded := range rule.ExcludedProducts {
		if excluded == rec.ProductID {
			return false
		}
	}
	if len(rule.Categories) > 0 {
		found := false
		for _, category := range rule.Categories {
			if category == rec.Context.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return rec.Confidence >= rule.MinConfidence && rec.Confidence <= rule.MaxConfidence
}

// ValidateSet validates every rule and rejects duplicate IDs.
func ValidateSet(rules []pricing.Rule) error {
	seen := make(map[string]struct{}, len(rules))
	var errs []error
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := validateCondition(rule); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[rule.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID))
			continue
		}
		seen[rule.ID] = struct{}{}
	}
	return errors.Join(errs...)
}

// validateCondition dry-runs the condition against a blank recommendation so
// malformed JSONLogic is caught at registration time.
func validateCondition(rule pricing.Rule) error {
	if len(rule.Condition) == 0 {
		return nil
	}
	if _, err := EvaluateCondition(rule.Condition, pricing.Recommendation{}.Data()); err != nil {
		return &pricing.RuleError{RuleID: rule.ID, Problems: []string{err.Error()}}
	}
	return nil
}
