package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/pricegate/pkg/history"
	"mercator-hq/pricegate/pkg/pricing"
)

// ErrRuleLookup marks a failure to read candidate rules. The engine treats
// it as fatal.
var ErrRuleLookup = errors.New("rule lookup failed")

// RuleFinder returns the candidate rules for a recommendation, ordered by
// priority then ID.
type RuleFinder interface {
	Find(ctx context.Context, rec pricing.Recommendation) ([]pricing.Rule, error)
}

// Evaluator applies per-rule gates to a recommendation.
type Evaluator struct {
	rules   RuleFinder
	tracker *history.Tracker
	logger  *slog.Logger
}

// New creates an evaluator. A nil logger uses slog.Default().
func New(rules RuleFinder, tracker *history.Tracker, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		rules:   rules,
		tracker: tracker,
		logger:  logger.With("component", "evaluator"),
	}
}

// Evaluate returns the winning rule for rec at time now.
//
// An unchanged price short-circuits to a NoOp result before any rule is
// consulted. Gate failures are not errors; errors are reserved for store
// failures.
func (e *Evaluator) Evaluate(ctx context.Context, rec pricing.Recommendation, now time.Time) (*Result, error) {
	if pricing.SamePrice(rec.CurrentPrice, rec.RecommendedPrice) {
		return &Result{NoOp: true, Reason: NoOpReason}, nil
	}

	candidates, err := e.rules.Find(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuleLookup, err)
	}

	result := &Result{}
	for _, rule := range candidates {
		outcome, err := e.evaluateRule(ctx, rule, rec, now)
		if err != nil {
			return nil, err
		}
		result.Candidates = append(result.Candidates, outcome)

		if outcome.Passed() {
			winner := rule.Clone()
			result.Rule = &winner
			e.logger.Debug("rule matched",
				"product_id", rec.ProductID,
				"rule_id", rule.ID,
				"action", rule.Action,
			)
			return result, nil
		}

		e.logger.Debug("rule rejected",
			"product_id", rec.ProductID,
			"rule_id", rule.ID,
			"failures", len(outcome.Failures),
		)
	}

	result.Reason = NoRuleReason
	return result, nil
}

// evaluateRule runs every gate for one candidate.
func (e *Evaluator) evaluateRule(ctx context.Context, rule pricing.Rule, rec pricing.Recommendation, now time.Time) (RuleOutcome, error) {
	outcome := RuleOutcome{RuleID: rule.ID}

	outcome.Failures = append(outcome.Failures, e.checkPriceLimit(rule, rec)...)
	outcome.Failures = append(outcome.Failures, e.checkMargin(rule, rec)...)

	cooldown, err := e.checkCooldown(ctx, rule, rec, now)
	if err != nil {
		return outcome, err
	}
	outcome.Failures = append(outcome.Failures, cooldown...)

	daily, err := e.checkDailyLimit(ctx, rule, rec, now)
	if err != nil {
		return outcome, err
	}
	outcome.Failures = append(outcome.Failures, daily...)

	outcome.Failures = append(outcome.Failures, e.checkActiveHours(rule, now)...)
	return outcome, nil
}
