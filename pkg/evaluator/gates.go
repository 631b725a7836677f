package evaluator

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

func (e *Evaluator) checkPriceLimit(rule pricing.Rule, rec pricing.Recommendation) []GateFailure {
	var failures []GateFailure
	pct := pricing.ChangePct(rec.CurrentPrice, rec.RecommendedPrice)

	switch {
	case pct > 0 && pricing.ExceedsFraction(pct, rule.MaxPriceIncreasePct):
		failures = append(failures, GateFailure{
			Gate:   GatePriceLimit,
			Reason: fmt.Sprintf("increase %.2f%% exceeds limit %.2f%%", pct*100, rule.MaxPriceIncreasePct*100),
		})
	case pct < 0 && pricing.ExceedsFraction(pct, rule.MaxPriceDecreasePct):
		failures = append(failures, GateFailure{
			Gate:   GatePriceLimit,
			Reason: fmt.Sprintf("decrease %.2f%% exceeds limit %.2f%%", -pct*100, rule.MaxPriceDecreasePct*100),
		})
	}

	if rule.MinPrice != nil && rec.RecommendedPrice < *rule.MinPrice {
		failures = append(failures, GateFailure{
			Gate:   GatePriceLimit,
			Reason: fmt.Sprintf("price %.2f below minimum %.2f", rec.RecommendedPrice, *rule.MinPrice),
		})
	}
	if rule.MaxPrice != nil && rec.RecommendedPrice > *rule.MaxPrice {
		failures = append(failures, GateFailure{
			Gate:   GatePriceLimit,
			Reason: fmt.Sprintf("price %.2f above maximum %.2f", rec.RecommendedPrice, *rule.MaxPrice),
		})
	}
	return failures
}

func (e *Evaluator) checkMargin(rule pricing.Rule, rec pricing.Recommendation) []GateFailure {
	if !rule.RequireMarginCheck {
		return nil
	}

	margin, ok := pricing.ProfitMargin(rec.RecommendedPrice, rec.Context.UnitCost)
	if !ok {
		e.logger.Info("margin check bypassed, unit cost unknown",
			"product_id", rec.ProductID,
			"rule_id", rule.ID,
			"unit_cost", rec.Context.UnitCost,
		)
		return nil
	}
	if margin < rule.MinProfitMargin {
		return []GateFailure{{
			Gate:   GateMargin,
			Reason: fmt.Sprintf("margin %.2f%% below minimum %.2f%%", margin*100, rule.MinProfitMargin*100),
		}}
	}
	return nil
}

func (e *Evaluator) checkCooldown(ctx context.Context, rule pricing.Rule, rec pricing.Recommendation, now time.Time) ([]GateFailure, error) {
	last, err := e.tracker.LastChangeByRule(ctx, rec.ProductID, rule.ID, rule.Cooldown(), now)
	if err != nil {
		return nil, fmt.Errorf("cooldown lookup for rule %s: %w", rule.ID, err)
	}
	if last == nil {
		return nil, nil
	}

	remaining := rule.Cooldown() - now.Sub(last.Timestamp)
	return []GateFailure{{
		Gate:   GateCooldown,
		Reason: fmt.Sprintf("rule in cooldown for another %s", remaining.Round(time.Minute)),
	}}, nil
}

func (e *Evaluator) checkDailyLimit(ctx context.Context, rule pricing.Rule, rec pricing.Recommendation, now time.Time) ([]GateFailure, error) {
	if rule.MaxChangesPerDay <= 0 {
		return nil, nil
	}

	count, err := e.tracker.CountToday(ctx, rec.ProductID, now)
	if err != nil {
		return nil, fmt.Errorf("daily count for product %s: %w", rec.ProductID, err)
	}
	if count >= rule.MaxChangesPerDay {
		return []GateFailure{{
			Gate:   GateDailyLimit,
			Reason: fmt.Sprintf("daily limit reached (%d/%d)", count, rule.MaxChangesPerDay),
		}}, nil
	}
	return nil, nil
}

func (e *Evaluator) checkActiveHours(rule pricing.Rule, now time.Time) []GateFailure {
	hour := now.In(e.tracker.Location()).Hour()
	if rule.ActiveAt(hour) {
		return nil
	}
	return []GateFailure{{
		Gate:   GateActiveHours,
		Reason: fmt.Sprintf("hour %d outside active hours %v", hour, rule.ActiveHours),
	}}
}
