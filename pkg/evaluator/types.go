package evaluator

import (
	"fmt"
	"strings"

	"mercator-hq/pricegate/pkg/pricing"
)

// NoRuleReason is the decision reason when no candidate passes its gates.
const NoRuleReason = "no rule could process this recommendation automatically"

// NoOpReason is the decision reason when the recommended price equals the
// current price.
const NoOpReason = "no-op: recommended price equals current price"

// Gate names one per-rule check.
type Gate string

const (
	GatePriceLimit  Gate = "price_limit"
	GateMargin      Gate = "margin"
	GateCooldown    Gate = "cooldown"
	GateDailyLimit  Gate = "daily_limit"
	GateActiveHours Gate = "active_hours"
)

// GateFailure is one failed gate with a human-readable reason.
type GateFailure struct {
	Gate   Gate   `json:"gate"`
	Reason string `json:"reason"`
}

// RuleOutcome records how a single candidate fared.
type RuleOutcome struct {
	RuleID   string        `json:"rule_id"`
	Failures []GateFailure `json:"failures,omitempty"`
}

// Passed reports whether the candidate passed every gate.
func (o RuleOutcome) Passed() bool {
	return len(o.Failures) == 0
}

// Result is the outcome of evaluating one recommendation.
type Result struct {
	// Rule is the winning rule, nil when no candidate passed.
	Rule *pricing.Rule

	// NoOp is set when the price does not change. Rule is nil.
	NoOp bool

	// Candidates lists every evaluated candidate in evaluation order.
	Candidates []RuleOutcome

	// Reason explains a result without a winning rule.
	Reason string
}

// Matched reports whether a rule won.
func (r *Result) Matched() bool {
	return r.Rule != nil
}

// Action returns the winning rule's action, or "" when nothing matched.
func (r *Result) Action() pricing.RuleAction {
	if r.Rule == nil {
		return ""
	}
	return r.Rule.Action
}

// Failures returns the gate failures across all candidates.
func (r *Result) Failures() []GateFailure {
	var out []GateFailure
	for _, c := range r.Candidates {
		out = append(out, c.Failures...)
	}
	return out
}

// Summary renders the rejected candidates for logs and audit.
func (r *Result) Summary() string {
	var parts []string
	for _, c := range r.Candidates {
		if c.Passed() {
			continue
		}
		reasons := make([]string, len(c.Failures))
		for i, f := range c.Failures {
			reasons[i] = f.Reason
		}
		parts = append(parts, fmt.Sprintf("%s: %s", c.RuleID, strings.Join(reasons, "; ")))
	}
	return strings.Join(parts, " | ")
}
