package decision

import (
	"context"
	"errors"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

// ErrDuplicateDecision is returned by Store.Create for an existing ID.
var ErrDuplicateDecision = errors.New("duplicate decision id")

// Filter selects requests in Store.Query. Zero fields match everything.
type Filter struct {
	ProductID string
	Statuses  []pricing.Status

	// ExpiresBefore selects requests with ExpiresAt strictly before it.
	ExpiresBefore time.Time

	// CreatedSince selects requests created at or after it.
	CreatedSince time.Time

	// Limit caps the result size. Zero or negative means no cap.
	Limit int
}

// Match reports whether req satisfies the filter.
func (f Filter) Match(req *pricing.DecisionRequest) bool {
	if f.ProductID != "" && req.ProductID != f.ProductID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if req.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.ExpiresBefore.IsZero() && !req.ExpiresAt.Before(f.ExpiresBefore) {
		return false
	}
	if !f.CreatedSince.IsZero() && req.CreatedAt.Before(f.CreatedSince) {
		return false
	}
	return true
}

// OpenStatuses are the non-terminal statuses.
var OpenStatuses = []pricing.Status{pricing.StatusPending, pricing.StatusManualReview}

// Store persists decision requests. Implementations must be safe for
// concurrent use and must hand out copies.
type Store interface {
	// Create inserts a new request.
	Create(ctx context.Context, req *pricing.DecisionRequest) error

	// Update overwrites an existing request.
	Update(ctx context.Context, req *pricing.DecisionRequest) error

	// Get returns a request or pricing.ErrDecisionNotFound.
	Get(ctx context.Context, id string) (*pricing.DecisionRequest, error)

	// Query returns matching requests ordered by CreatedAt ascending.
	Query(ctx context.Context, filter Filter) ([]*pricing.DecisionRequest, error)

	// Close releases backend resources.
	Close() error
}
