package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercator-hq/pricegate/pkg/pricing"
)

// Tracker answers cooldown and daily-cap questions from a Store.
//
// Tracker does no locking of its own. Callers that check and then record
// (the engine) must serialize per product.
type Tracker struct {
	store Store
	loc   *time.Location
}

// NewTracker creates a tracker. Calendar days are computed in loc; nil
// means time.Local.
func NewTracker(store Store, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{store: store, loc: loc}
}

// Location returns the time zone calendar days are computed in.
func (t *Tracker) Location() *time.Location {
	return t.loc
}

// Store returns the underlying store.
func (t *Tracker) Store() Store {
	return t.store
}

// NewEntry builds an entry for an applied change, assigning an ID and
// computing ChangePct.
func NewEntry(req *pricing.DecisionRequest, changeType pricing.ChangeType, at time.Time) pricing.HistoryEntry {
	return pricing.HistoryEntry{
		ID:         uuid.NewString(),
		ProductID:  req.ProductID,
		RequestID:  req.ID,
		Timestamp:  at,
		OldPrice:   req.CurrentPrice,
		NewPrice:   req.RecommendedPrice,
		RuleID:     req.MatchedRuleID,
		ChangeType: changeType,
		ChangePct:  pricing.ChangePct(req.CurrentPrice, req.RecommendedPrice),
	}
}

// Record appends an entry.
func (t *Tracker) Record(ctx context.Context, entry pricing.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ProductID == "" {
		return fmt.Errorf("history entry product id cannot be empty")
	}
	return t.store.Append(ctx, entry)
}

// Revert removes an entry appended by Record.
func (t *Tracker) Revert(ctx context.Context, entry pricing.HistoryEntry) error {
	return t.store.Remove(ctx, entry.ProductID, entry.ID)
}

// LastChangeByRule returns the newest entry for product applied under
// ruleID within window before now, or nil.
func (t *Tracker) LastChangeByRule(ctx context.Context, productID, ruleID string, window time.Duration, now time.Time) (*pricing.HistoryEntry, error) {
	if window <= 0 {
		return nil, nil
	}
	entries, err := t.store.List(ctx, productID, now.Add(-window))
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.RuleID == ruleID && now.Sub(e.Timestamp) < window {
			return &e, nil
		}
	}
	return nil, nil
}

// DayBounds returns the start and end of the calendar day containing now.
func (t *Tracker) DayBounds(now time.Time) (start, end time.Time) {
	local := now.In(t.loc)
	start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.loc)
	return start, start.AddDate(0, 0, 1)
}

// CountToday returns how many changes were applied to product on the
// calendar day containing now, across all rules.
func (t *Tracker) CountToday(ctx context.Context, productID string, now time.Time) (int, error) {
	start, end := t.DayBounds(now)
	entries, err := t.store.List(ctx, productID, start)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			count++
		}
	}
	return count, nil
}

// History returns the product's entries of the last days days. days <= 0
// returns the full retained log.
func (t *Tracker) History(ctx context.Context, productID string, days int, now time.Time) ([]pricing.HistoryEntry, error) {
	var since time.Time
	if days > 0 {
		since = now.AddDate(0, 0, -days)
	}
	return t.store.List(ctx, productID, since)
}
