package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention is how long history entries are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Pruner deletes history entries older than the retention window.
type Pruner struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewPruner creates a pruner. retention <= 0 uses DefaultRetention.
func NewPruner(store Store, retention time.Duration, logger *slog.Logger) *Pruner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     store,
		retention: retention,
		now:       time.Now,
		logger:    logger.With("component", "history.retention"),
	}
}

// Retention returns the configured retention window.
func (p *Pruner) Retention() time.Duration {
	return p.retention
}

// Prune removes expired entries and returns how many were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)

	deleted, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history older than %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		p.logger.Info("pruned price history",
			"deleted_count", deleted,
			"retention_days", int(p.retention.Hours()/24),
		)
	} else {
		p.logger.Debug("no price history pruned")
	}
	return deleted, nil
}
