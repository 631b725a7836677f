package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/pricegate/pkg/approval"
	"mercator-hq/pricegate/pkg/decision"
	"mercator-hq/pricegate/pkg/evaluator"
	"mercator-hq/pricegate/pkg/history"
	"mercator-hq/pricegate/pkg/pricing"
	"mercator-hq/pricegate/pkg/risk"
	"mercator-hq/pricegate/pkg/rules"
)

// ConflictPolicy decides what happens to a recommendation for a product that
// already has an open decision.
type ConflictPolicy string

const (
	// ConflictRejectNew rejects the new recommendation.
	ConflictRejectNew ConflictPolicy = "reject_new"

	// ConflictSupersede rejects the open decision and evaluates the new one.
	// A decision whose price write is in flight is never superseded.
	ConflictSupersede ConflictPolicy = "supersede"
)

// Valid reports whether p is a known policy.
func (p ConflictPolicy) Valid() bool {
	return p == ConflictRejectNew || p == ConflictSupersede
}

// Config wires an Engine.
type Config struct {
	Rules     *rules.Registry
	Tracker   *history.Tracker
	Decisions decision.Store

	// Risk defaults to a layer with the stock controls.
	Risk *risk.Layer

	Sink            decision.PriceSink
	Approvals       decision.ApprovalNotifier
	Recommendations decision.RecommendationNotifier

	// ConflictPolicy defaults to ConflictRejectNew.
	ConflictPolicy ConflictPolicy

	// Expiry is the lifetime of an open decision. Zero means
	// pricing.DefaultExpiry.
	Expiry time.Duration

	// Metrics defaults to collectors on a private registry.
	Metrics *Metrics

	Now    func() time.Time
	Logger *slog.Logger
}

// Engine governs recommendations into decisions.
type Engine struct {
	rules     *rules.Registry
	tracker   *history.Tracker
	evaluator *evaluator.Evaluator
	risk      *risk.Layer
	machine   *decision.Machine
	approvals *approval.Coordinator
	policy    ConflictPolicy
	metrics   *Metrics
	now       func() time.Time
	logger    *slog.Logger

	haltMu  sync.RWMutex
	haltErr error
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Rules == nil {
		return nil, fmt.Errorf("rule registry cannot be nil")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("history tracker cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = ConflictRejectNew
	}
	if !cfg.ConflictPolicy.Valid() {
		return nil, fmt.Errorf("unknown conflict policy %q", cfg.ConflictPolicy)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Risk == nil {
		layer, err := risk.NewLayer(risk.Config{}, cfg.Logger)
		if err != nil {
			return nil, err
		}
		cfg.Risk = layer
	}

	machine, err := decision.NewMachine(decision.Config{
		Store:           cfg.Decisions,
		Tracker:         cfg.Tracker,
		Sink:            cfg.Sink,
		Approvals:       cfg.Approvals,
		Recommendations: cfg.Recommendations,
		Observer:        cfg.Metrics,
		Expiry:          cfg.Expiry,
		Now:             cfg.Now,
		Logger:          cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		rules:     cfg.Rules,
		tracker:   cfg.Tracker,
		evaluator: evaluator.New(cfg.Rules, cfg.Tracker, cfg.Logger),
		risk:      cfg.Risk,
		machine:   machine,
		approvals: approval.New(machine, cfg.Logger),
		policy:    cfg.ConflictPolicy,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
		logger:    cfg.Logger.With("component", "engine"),
	}, nil
}

// after collects the side effects to run once the product lock is released.
type after struct {
	ticket    *decision.Ticket
	review    bool
	recommend bool
}

// Evaluate governs one recommendation and returns the resulting decision.
//
// Validation failures return a *pricing.ValidationError and create no
// state. Policy outcomes are never errors: they are recorded on the
// returned request with a reason.
func (e *Engine) Evaluate(ctx context.Context, rec pricing.Recommendation, signals pricing.MarketSignals) (*pricing.DecisionRequest, error) {
	if err := e.Halted(); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	unlock := e.machine.Lock(rec.ProductID)
	req, next, err := e.decide(ctx, rec, signals)
	unlock()
	if err != nil {
		return nil, err
	}

	switch {
	case next.ticket != nil:
		req, err = e.machine.FinishApply(ctx, next.ticket)
		if err != nil {
			return nil, err
		}
	case next.review:
		e.machine.NotifyReview(ctx, req)
	case next.recommend:
		e.machine.NotifyRecommendation(ctx, req)
	}

	e.metrics.recordDecision(req.Status, started)
	return req.Clone(), nil
}

// decide runs under the product lock.
func (e *Engine) decide(ctx context.Context, rec pricing.Recommendation, signals pricing.MarketSignals) (*pricing.DecisionRequest, after, error) {
	now := e.now()
	req := &pricing.DecisionRequest{
		ID:               uuid.NewString(),
		ProductID:        rec.ProductID,
		CurrentPrice:     rec.CurrentPrice,
		RecommendedPrice: rec.RecommendedPrice,
		Confidence:       rec.Confidence,
	}

	open, blocker, err := e.openConflicts(ctx, rec.ProductID)
	if err != nil {
		return nil, after{}, err
	}

	var result *evaluator.Result
	if blocker == "" {
		result, err = e.evaluator.Evaluate(ctx, rec, now)
		if err != nil {
			if errors.Is(err, evaluator.ErrRuleLookup) {
				e.halt(err)
			}
			return nil, after{}, err
		}
		e.metrics.recordGateFailures(result)
		if result.Matched() {
			req.MatchedRuleID = result.Rule.ID
		}
		req.NoOp = result.NoOp
	}

	if err := e.machine.Submit(ctx, req); err != nil {
		return nil, after{}, err
	}

	if blocker != "" {
		reason := fmt.Sprintf("product %s already has open decision %s", rec.ProductID, blocker)
		return req, after{}, e.machine.Transition(ctx, req, pricing.StatusRejected, reason, "")
	}

	// Older decisions are only superseded once the new one is evaluated
	// and stored, so a failed evaluation leaves them untouched.
	if err := e.supersede(ctx, open, req.ID); err != nil {
		return req, after{}, e.failToReview(ctx, req, fmt.Errorf("supersede open decisions: %w", err))
	}
	return e.dispose(ctx, req, rec, signals, result)
}

// openConflicts returns the product's open decisions and, under the
// reject_new policy or while one of them is applying, the ID of the
// decision that blocks a new one.
func (e *Engine) openConflicts(ctx context.Context, productID string) ([]*pricing.DecisionRequest, string, error) {
	open, err := e.machine.Store().Query(ctx, decision.Filter{
		ProductID: productID,
		Statuses:  decision.OpenStatuses,
	})
	if err != nil {
		return nil, "", err
	}
	for _, old := range open {
		if e.policy == ConflictRejectNew || e.machine.InFlight(old.ID) {
			return open, old.ID, nil
		}
	}
	return open, "", nil
}

// supersede rejects open decisions in favour of newID.
func (e *Engine) supersede(ctx context.Context, open []*pricing.DecisionRequest, newID string) error {
	for _, old := range open {
		reason := "superseded by " + newID
		if err := e.machine.Transition(ctx, old, pricing.StatusRejected, reason, ""); err != nil {
			return err
		}
		e.logger.Info("open decision superseded",
			"product_id", old.ProductID,
			"request_id", old.ID,
			"superseded_by", newID,
		)
	}
	return nil
}

// dispose maps the evaluation and risk assessment to a transition.
func (e *Engine) dispose(ctx context.Context, req *pricing.DecisionRequest, rec pricing.Recommendation, signals pricing.MarketSignals, result *evaluator.Result) (*pricing.DecisionRequest, after, error) {
	switch {
	case result.NoOp:
		return req, after{}, e.machine.Transition(ctx, req, pricing.StatusRejected, result.Reason, "")

	case !result.Matched():
		e.logger.Info("no rule matched",
			"product_id", req.ProductID,
			"request_id", req.ID,
			"candidates", result.Summary(),
		)
		err := e.machine.Transition(ctx, req, pricing.StatusManualReview, result.Reason, "")
		return req, after{review: err == nil}, err
	}

	rule := result.Rule
	switch rule.Action {
	case pricing.ActionIgnore:
		reason := fmt.Sprintf("rule %s ignores this recommendation", rule.ID)
		return req, after{}, e.machine.Transition(ctx, req, pricing.StatusRejected, reason, "")

	case pricing.ActionNotifyOnly:
		reason := fmt.Sprintf("rule %s only notifies; price unchanged", rule.ID)
		err := e.machine.Transition(ctx, req, pricing.StatusRejected, reason, "")
		return req, after{recommend: err == nil}, err
	}

	adjustments, err := e.tracker.CountToday(ctx, req.ProductID, e.now())
	if err != nil {
		return req, after{}, e.failToReview(ctx, req, fmt.Errorf("count adjustments: %w", err))
	}
	assessment := e.risk.Assess(risk.Input{
		ProductID:        req.ProductID,
		CurrentPrice:     req.CurrentPrice,
		RecommendedPrice: req.RecommendedPrice,
		Confidence:       req.Confidence,
		UnitCost:         rec.Context.UnitCost,
		Signals:          signals,
		AdjustmentsToday: adjustments,
		Now:              e.now(),
	})
	e.metrics.recordRisk(assessment)
	req.RiskControls = assessment.Controls()

	switch {
	case assessment.Disposition == risk.Block:
		return req, after{}, e.machine.Transition(ctx, req, pricing.StatusRejected, assessment.Reason(), "")

	case assessment.Disposition == risk.RequireApproval:
		err := e.machine.Transition(ctx, req, pricing.StatusManualReview, assessment.Reason(), "")
		return req, after{review: err == nil}, err

	case rule.Action == pricing.ActionApplyWithApproval:
		reason := fmt.Sprintf("rule %s requires approval", rule.ID)
		err := e.machine.Transition(ctx, req, pricing.StatusManualReview, reason, "")
		return req, after{review: err == nil}, err
	}

	ticket, err := e.machine.BeginApply(ctx, req, pricing.ChangeAutomatic, "")
	if err != nil {
		return req, after{}, e.failToReview(ctx, req, err)
	}
	return req, after{ticket: ticket}, nil
}

// failToReview parks req in manual review after a storage failure so the
// decision is not lost.
func (e *Engine) failToReview(ctx context.Context, req *pricing.DecisionRequest, cause error) error {
	e.logger.Error("decision parked after internal failure",
		"request_id", req.ID,
		"product_id", req.ProductID,
		"error", cause,
	)
	if err := e.machine.Transition(ctx, req, pricing.StatusManualReview, "internal failure: "+cause.Error(), ""); err != nil {
		return errors.Join(cause, err)
	}
	return nil
}

// Approve resolves a decision in manual review. See approval.Coordinator.
func (e *Engine) Approve(ctx context.Context, id string, approved bool, approver string) (bool, error) {
	return e.approvals.Approve(ctx, id, approved, approver)
}

// ExpireDue expires open decisions past their deadline.
func (e *Engine) ExpireDue(ctx context.Context) (int64, error) {
	return e.machine.ExpireDue(ctx)
}

// halt stops the engine from accepting recommendations.
func (e *Engine) halt(cause error) {
	e.haltMu.Lock()
	defer e.haltMu.Unlock()
	if e.haltErr == nil {
		e.haltErr = cause
		e.metrics.setHalted(true)
		e.logger.Error("engine halted", "error", cause)
	}
}

// Halted returns a non-nil error wrapping pricing.ErrEngineHalted while the
// engine is halted.
func (e *Engine) Halted() error {
	e.haltMu.RLock()
	defer e.haltMu.RUnlock()
	if e.haltErr != nil {
		return fmt.Errorf("%w: %w", pricing.ErrEngineHalted, e.haltErr)
	}
	return nil
}

// Resume clears a halt.
func (e *Engine) Resume() {
	e.haltMu.Lock()
	defer e.haltMu.Unlock()
	if e.haltErr != nil {
		e.haltErr = nil
		e.metrics.setHalted(false)
		e.logger.Info("engine resumed")
	}
}
