// Package ingest feeds recommendations and approval decisions from NATS
// subjects into the engine.
//
// A recommendation message carries an optional recommendation: a null
// recommendation means the producer had nothing for the product and the
// message is acknowledged without creating a decision.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"mercator-hq/pricegate/pkg/pricing"
)

// Evaluator governs a recommendation. *engine.Engine satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, rec pricing.Recommendation, signals pricing.MarketSignals) (*pricing.DecisionRequest, error)
}

// Approver resolves a decision in manual review. *engine.Engine satisfies it.
type Approver interface {
	Approve(ctx context.Context, id string, approved bool, approver string) (bool, error)
}

// RecommendationMessage is the payload on the recommendation subject.
type RecommendationMessage struct {
	Recommendation *pricing.Recommendation `json:"recommendation"`
	Signals        pricing.MarketSignals   `json:"signals"`
}

// ApprovalMessage is the payload on the approval subject.
type ApprovalMessage struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
	Approver  string `json:"approver"`
}

// Reply is sent back when a message carries a reply subject.
type Reply struct {
	RequestID string         `json:"request_id,omitempty"`
	Status    pricing.Status `json:"status,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Applied   bool           `json:"applied,omitempty"`
	Skipped   bool           `json:"skipped,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Handler decodes messages and calls the engine.
type Handler struct {
	evaluator Evaluator
	approver  Approver
	logger    *slog.Logger
}

// NewHandler creates a handler.
func NewHandler(evaluator Evaluator, approver Approver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		evaluator: evaluator,
		approver:  approver,
		logger:    logger.With("component", "ingest"),
	}
}

// HandleRecommendation processes one recommendation payload.
func (h *Handler) HandleRecommendation(ctx context.Context, data []byte) (Reply, error) {
	var msg RecommendationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Reply{}, fmt.Errorf("decode recommendation: %w", err)
	}
	if msg.Recommendation == nil {
		h.logger.DebugContext(ctx, "empty recommendation skipped")
		return Reply{Skipped: true}, nil
	}

	req, err := h.evaluator.Evaluate(ctx, *msg.Recommendation, msg.Signals)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		RequestID: req.ID,
		Status:    req.Status,
		Reason:    req.ApprovalReason,
	}, nil
}

// HandleApproval processes one approval payload.
func (h *Handler) HandleApproval(ctx context.Context, data []byte) (Reply, error) {
	var msg ApprovalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Reply{}, fmt.Errorf("decode approval: %w", err)
	}
	if msg.RequestID == "" {
		return Reply{}, pricing.NewValidationError("request_id", "must not be empty")
	}

	applied, err := h.approver.Approve(ctx, msg.RequestID, msg.Approved, msg.Approver)
	if err != nil {
		return Reply{RequestID: msg.RequestID}, err
	}
	return Reply{RequestID: msg.RequestID, Applied: applied && msg.Approved}, nil
}

// Subscriber is the subset of *nats.Conn used here.
type Subscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Subjects names the inbound subjects.
type Subjects struct {
	Recommendations string
	Approvals       string
	Queue           string
}

// Consumer binds a Handler to NATS subscriptions.
type Consumer struct {
	handler *Handler
	logger  *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewConsumer creates a consumer.
func NewConsumer(handler *Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{handler: handler, logger: logger.With("component", "ingest.consumer")}
}

// Start subscribes to the configured subjects. Handlers run with ctx; an
// empty subject is not subscribed.
func (c *Consumer) Start(ctx context.Context, conn Subscriber, subjects Subjects) error {
	bindings := []struct {
		subject string
		handle  func(context.Context, []byte) (Reply, error)
	}{
		{subjects.Recommendations, c.handler.HandleRecommendation},
		{subjects.Approvals, c.handler.HandleApproval},
	}

	for _, b := range bindings {
		if b.subject == "" {
			continue
		}
		handle := b.handle
		sub, err := conn.QueueSubscribe(b.subject, subjects.Queue, func(m *nats.Msg) {
			c.dispatch(ctx, m, handle)
		})
		if err != nil {
			c.Stop()
			return fmt.Errorf("subscribe %s: %w", b.subject, err)
		}
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
		c.logger.Info("subscribed", "subject", b.subject, "queue", subjects.Queue)
	}
	return nil
}

// Stop drains the subscriptions.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain subscription", "subject", sub.Subject, "error", err)
		}
	}
	c.subs = nil
}

func (c *Consumer) dispatch(ctx context.Context, m *nats.Msg, handle func(context.Context, []byte) (Reply, error)) {
	reply, err := handle(ctx, m.Data)
	if err != nil {
		reply.Error = err.Error()
		level := slog.LevelWarn
		if errors.Is(err, pricing.ErrEngineHalted) {
			level = slog.LevelError
		}
		c.logger.Log(ctx, level, "message rejected", "subject", m.Subject, "error", err)
	}

	if m.Reply == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		c.logger.Error("marshal reply", "subject", m.Subject, "error", err)
		return
	}
	if err := m.Respond(payload); err != nil {
		c.logger.Warn("reply failed", "subject", m.Subject, "error", err)
	}
}
