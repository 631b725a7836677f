package engine

import (
	"context"

	"mercator-hq/pricegate/pkg/pricing"
)

// AddRule registers a rule.
func (e *Engine) AddRule(ctx context.Context, rule pricing.Rule) error {
	return e.rules.Add(ctx, rule)
}

// RemoveRule unregisters a rule. Decisions that matched it keep its ID.
func (e *Engine) RemoveRule(ctx context.Context, id string) error {
	return e.rules.Remove(ctx, id)
}

// EnableRule enables or disables a rule.
func (e *Engine) EnableRule(ctx context.Context, id string, enabled bool) error {
	return e.rules.SetEnabled(ctx, id, enabled)
}

// ListRules returns the rules in evaluation order.
func (e *Engine) ListRules(ctx context.Context) ([]pricing.Rule, error) {
	return e.rules.List(ctx)
}

// ReloadRules atomically replaces the rule set. A successful reload
// resumes a halted engine, since the rule store is readable again.
func (e *Engine) ReloadRules(ctx context.Context, rules []pricing.Rule) error {
	if err := e.rules.Replace(ctx, rules); err != nil {
		return err
	}
	e.Resume()
	return nil
}

// SetRiskControl updates a risk control.
func (e *Engine) SetRiskControl(controlType pricing.RiskControlType, threshold float64, enabled bool) error {
	return e.risk.SetControl(controlType, threshold, enabled)
}

// RiskControls returns the current risk controls.
func (e *Engine) RiskControls() []pricing.RiskControl {
	return e.risk.Controls()
}

// Unfreeze closes an open freeze window ahead of time.
func (e *Engine) Unfreeze() {
	e.risk.Unfreeze()
}
