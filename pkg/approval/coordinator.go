// Package approval resolves decisions parked in manual review.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/pricing"
)

// ErrNotAwaitingReview is returned for a request that is open but not in
// manual review.
var ErrNotAwaitingReview = errors.New("decision is not awaiting review")

// Coordinator applies or rejects requests in manual review.
type Coordinator struct {
	machine *decision.Machine
	logger  *slog.Logger
}

// New creates a coordinator. A nil logger uses slog.Default().
func New(machine *decision.Machine, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		machine: machine,
		logger:  logger.With("component", "approval"),
	}
}

// Approve resolves request id.
//
// approved=true applies the price with change type manual_approval. When the
// price sink fails the request stays in manual review with the failure as
// its reason and Approve returns false with a nil error.
// approved=false rejects the request with reason "rejected by <approver>".
//
// An unknown, terminal or in-flight request returns false and an error
// wrapping pricing.ErrDecisionNotFound, pricing.ErrIllegalTransition or
// pricing.ErrDecisionInFlight.
func (c *Coordinator) Approve(ctx context.Context, id string, approved bool, approver string) (bool, error) {
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return false, fmt.Errorf("approver cannot be empty")
	}

	req, err := c.machine.Get(ctx, id)
	if err != nil {
		return false, err
	}

	unlock := c.machine.Lock(req.ProductID)
	// Re-read under the lock; the first read only located the product.
	req, err = c.machine.Get(ctx, id)
	if err != nil {
		unlock()
		return false, err
	}
	if err := c.checkReviewable(req, approved); err != nil {
		unlock()
		return false, err
	}

	if !approved {
		err := c.machine.Transition(ctx, req, pricing.StatusRejected, "rejected by "+approver, approver)
		unlock()
		if err != nil {
			return false, err
		}
		c.logger.Info("decision rejected by reviewer",
			"request_id", id,
			"product_id", req.ProductID,
			"approver", approver,
		)
		return true, nil
	}

	ticket, err := c.machine.BeginApply(ctx, req, pricing.ChangeManualApproval, approver)
	unlock()
	if err != nil {
		return false, err
	}

	final, err := c.machine.FinishApply(ctx, ticket)
	if err != nil {
		return false, err
	}

	ok := final.Status == pricing.StatusApplied
	c.logger.Info("decision approved by reviewer",
		"request_id", id,
		"product_id", final.ProductID,
		"approver", approver,
		"status", final.Status,
	)
	return ok, nil
}

func (c *Coordinator) checkReviewable(req *pricing.DecisionRequest, approved bool) error {
	if c.machine.InFlight(req.ID) {
		return fmt.Errorf("decision %s: %w", req.ID, pricing.ErrDecisionInFlight)
	}
	if req.Status.Terminal() {
		to := pricing.StatusRejected
		if approved {
			to = pricing.StatusApplied
		}
		return &pricing.TransitionError{RequestID: req.ID, From: req.Status, To: to}
	}
	if req.Status != pricing.StatusManualReview {
		return fmt.Errorf("decision %s is %s: %w", req.ID, req.Status, ErrNotAwaitingReview)
	}
	return nil
}
