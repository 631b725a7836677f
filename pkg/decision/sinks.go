package decision

import (
	"context"

	"mercator-hq/pricegate/pkg/pricing"
)

// PriceSink writes an applied price to the storefront. It is called exactly
// once per apply attempt and never under a lock. An error rolls the request
// back to manual review.
type PriceSink interface {
	UpdatePrice(ctx context.Context, productID string, oldPrice, newPrice float64) error
}

// ApprovalNotifier is told when a request enters manual review.
type ApprovalNotifier interface {
	ApprovalRequired(ctx context.Context, req pricing.DecisionRequest) error
}

// RecommendationNotifier is told about notify_only recommendations.
type RecommendationNotifier interface {
	Recommended(ctx context.Context, req pricing.DecisionRequest) error
}

// Observer receives lifecycle events, typically for metrics.
type Observer interface {
	Transitioned(from, to pricing.Status)
	SinkFailed(sink string)
}

type nopObserver struct{}

func (nopObserver) Transitioned(pricing.Status, pricing.Status) {}
func (nopObserver) SinkFailed(string)                           {}
