package history

import (
	"context"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

// Store persists the price change log. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append adds an entry. The entry must carry an ID.
	Append(ctx context.Context, entry pricing.HistoryEntry) error

	// Remove deletes one entry. Used to compensate a failed price write.
	// Removing an unknown entry is a no-op.
	Remove(ctx context.Context, productID, entryID string) error

	// List returns the product's entries with Timestamp >= since, ordered
	// by Timestamp ascending.
	List(ctx context.Context, productID string, since time.Time) ([]pricing.HistoryEntry, error)

	// Prune deletes entries older than olderThan and returns how many
	// were removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}
