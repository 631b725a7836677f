package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/pricing"
)

// MemoryStore implements decision.Store in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*pricing.DecisionRequest
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*pricing.DecisionRequest)}
}

// Create inserts req.
func (m *MemoryStore) Create(ctx context.Context, req *pricing.DecisionRequest) error {
	if req.ID == "" {
		return fmt.Errorf("decision id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[req.ID]; ok {
		return fmt.Errorf("%w: %s", decision.ErrDuplicateDecision, req.ID)
	}
	m.requests[req.ID] = req.Clone()
	return nil
}

// Update overwrites req.
func (m *MemoryStore) Update(ctx context.Context, req *pricing.DecisionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[req.ID]; !ok {
		return fmt.Errorf("%w: %s", pricing.ErrDecisionNotFound, req.ID)
	}
	m.requests[req.ID] = req.Clone()
	return nil
}

// Get returns a copy of the request.
func (m *MemoryStore) Get(ctx context.Context, id string) (*pricing.DecisionRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pricing.ErrDecisionNotFound, id)
	}
	return req.Clone(), nil
}

// Query returns matching requests by CreatedAt ascending.
func (m *MemoryStore) Query(ctx context.Context, filter decision.Filter) ([]*pricing.DecisionRequest, error) {
	m.mu.RLock()
	var out []*pricing.DecisionRequest
	for _, req := range m.requests {
		if filter.Match(req) {
			out = append(out, req.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
