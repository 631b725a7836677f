package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/pricing"
)

// Event types published for decisions.
const (
	EventApprovalRequired = "approval_required"
	EventRecommended      = "recommended"
)

// Event is the message published for a decision.
type Event struct {
	Type        string                  `json:"type"`
	Decision    pricing.DecisionRequest `json:"decision"`
	PublishedAt time.Time               `json:"published_at"`
}

// Publisher publishes raw payloads. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Subjects names the outbound subjects.
type Subjects struct {
	Approvals       string
	Recommendations string
}

// NATSNotifier publishes decision events. It implements
// decision.ApprovalNotifier and decision.RecommendationNotifier.
type NATSNotifier struct {
	pub      Publisher
	subjects Subjects
	now      func() time.Time
}

// NewNATSNotifier creates a notifier publishing on pub.
func NewNATSNotifier(pub Publisher, subjects Subjects) (*NATSNotifier, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if subjects.Approvals == "" || subjects.Recommendations == "" {
		return nil, fmt.Errorf("approval and recommendation subjects are required")
	}
	return &NATSNotifier{pub: pub, subjects: subjects, now: time.Now}, nil
}

// ApprovalRequired implements decision.ApprovalNotifier.
func (n *NATSNotifier) ApprovalRequired(ctx context.Context, req pricing.DecisionRequest) error {
	return n.publish(ctx, n.subjects.Approvals, EventApprovalRequired, req)
}

// Recommended implements decision.RecommendationNotifier.
func (n *NATSNotifier) Recommended(ctx context.Context, req pricing.DecisionRequest) error {
	return n.publish(ctx, n.subjects.Recommendations, EventRecommended, req)
}

func (n *NATSNotifier) publish(ctx context.Context, subject, kind string, req pricing.DecisionRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Type: kind, Decision: req, PublishedAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	if err := n.pub.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s to %s: %w", kind, subject, err)
	}
	return nil
}

// LogNotifier writes decision events to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "sink.notify")}
}

// ApprovalRequired implements decision.ApprovalNotifier.
func (n *LogNotifier) ApprovalRequired(ctx context.Context, req pricing.DecisionRequest) error {
	n.logger.InfoContext(ctx, "decision awaiting approval",
		"request_id", req.ID,
		"product_id", req.ProductID,
		"current_price", req.CurrentPrice,
		"recommended_price", req.RecommendedPrice,
		"reason", req.ApprovalReason,
	)
	return nil
}

// Recommended implements decision.RecommendationNotifier.
func (n *LogNotifier) Recommended(ctx context.Context, req pricing.DecisionRequest) error {
	n.logger.InfoContext(ctx, "price recommendation",
		"request_id", req.ID,
		"product_id", req.ProductID,
		"rule_id", req.MatchedRuleID,
		"recommended_price", req.RecommendedPrice,
	)
	return nil
}

// Notifier is both notifier interfaces.
type Notifier interface {
	decision.ApprovalNotifier
	decision.RecommendationNotifier
}

// Fanout delivers every event to all notifiers and joins their errors.
type Fanout []Notifier

// ApprovalRequired implements decision.ApprovalNotifier.
func (f Fanout) ApprovalRequired(ctx context.Context, req pricing.DecisionRequest) error {
	var errs []error
	for _, n := range f {
		if err := n.ApprovalRequired(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recommended implements decision.RecommendationNotifier.
func (f Fanout) Recommended(ctx context.Context, req pricing.DecisionRequest) error {
	var errs []error
	for _, n := range f {
		if err := n.Recommended(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink is a PriceSink that only logs. It backs dry runs.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a dry-run sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "sink.dryrun")}
}

// UpdatePrice implements decision.PriceSink.
func (s *LogSink) UpdatePrice(ctx context.Context, productID string, oldPrice, newPrice float64) error {
	s.logger.InfoContext(ctx, "price update (dry run)",
		"product_id", productID,
		"old_price", oldPrice,
		"new_price", newPrice,
	)
	return nil
}
