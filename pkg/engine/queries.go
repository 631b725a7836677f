package engine

import (
	"context"
	"time"

	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/pricing"
	"mercator-hq/pricegate/pkg/risk"
)

// AlertSummary reports risk activity and decision outcomes over a window.
type AlertSummary struct {
	Hours int `json:"hours"`
	risk.AlertSummary

	// Decisions counts decisions created in the window by current status.
	Decisions map[pricing.Status]int `json:"decisions"`

	// Halted carries the halt cause while the engine is halted.
	Halted string `json:"halted,omitempty"`

	// FrozenUntil is set while a freeze_all control blocks pricing.
	FrozenUntil *time.Time `json:"frozen_until,omitempty"`
}

// GetDecision returns one decision.
func (e *Engine) GetDecision(ctx context.Context, id string) (*pricing.DecisionRequest, error) {
	return e.machine.Get(ctx, id)
}

// GetPendingApprovals returns the decisions awaiting manual review, oldest
// first.
func (e *Engine) GetPendingApprovals(ctx context.Context) ([]*pricing.DecisionRequest, error) {
	return e.machine.Store().Query(ctx, decision.Filter{
		Statuses: []pricing.Status{pricing.StatusManualReview},
	})
}

// ListDecisions returns decisions matching filter.
func (e *Engine) ListDecisions(ctx context.Context, filter decision.Filter) ([]*pricing.DecisionRequest, error) {
	return e.machine.Store().Query(ctx, filter)
}

// GetHistory returns the product's applied changes of the last days days.
// days <= 0 returns the whole retained log.
func (e *Engine) GetHistory(ctx context.Context, productID string, days int) ([]pricing.HistoryEntry, error) {
	return e.tracker.History(ctx, productID, days, e.now())
}

// GetAlertSummary aggregates the last hours of risk triggers and decisions.
func (e *Engine) GetAlertSummary(ctx context.Context, hours int) (*AlertSummary, error) {
	if hours <= 0 {
		hours = 24
	}
	now := e.now()

	summary := &AlertSummary{
		Hours:        hours,
		AlertSummary: e.risk.Alerts().Summary(hours, now),
		Decisions:    make(map[pricing.Status]int),
	}

	recent, err := e.machine.Store().Query(ctx, decision.Filter{CreatedSince: summary.Since})
	if err != nil {
		return nil, err
	}
	for _, req := range recent {
		summary.Decisions[req.Status]++
	}

	if err := e.Halted(); err != nil {
		summary.Halted = err.Error()
	}
	if until := e.risk.FrozenUntil(now); !until.IsZero() {
		summary.FrozenUntil = &until
	}
	return summary, nil
}
