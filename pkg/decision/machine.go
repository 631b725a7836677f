package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"mercator-hq/pricegate/pkg/history"
	"mercator-hq/pricegate/pkg/pricing"
)

// Config wires a Machine.
type Config struct {
	Store   Store
	Tracker *history.Tracker

	// Sink receives applied prices. Required.
	Sink PriceSink

	// Approvals and Recommendations are optional.
	Approvals       ApprovalNotifier
	Recommendations RecommendationNotifier

	Observer Observer

	// Expiry is the lifetime of an open request. Zero means
	// pricing.DefaultExpiry.
	Expiry time.Duration

	// SettleAttempts bounds the store writes tried when settling an apply.
	// Zero means 4.
	SettleAttempts uint

	// SettleBackoff is the first wait between settle attempts. Zero means
	// 100ms.
	SettleBackoff time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Machine drives requests through their lifecycle.
type Machine struct {
	store           Store
	tracker         *history.Tracker
	sink            PriceSink
	approvals       ApprovalNotifier
	recommendations RecommendationNotifier
	observer        Observer
	expiry          time.Duration
	settleAttempts  uint
	settleBackoff   time.Duration
	now             func() time.Time
	logger          *slog.Logger

	locks *KeyedMutex

	flightMu  sync.Mutex
	inFlight  map[string]struct{}
	unsettled map[string]*unsettled
}

// unsettled is a settled state the store refused. The request stays in
// flight until Reconcile persists it.
type unsettled struct {
	target  *pricing.DecisionRequest
	from    pricing.Status
	entryID string
	notify  bool
}

// Ticket carries an apply between its two phases.
type Ticket struct {
	Request *pricing.DecisionRequest
	Entry   pricing.HistoryEntry
	Actor   string
}

// NewMachine creates a state machine.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("decision store cannot be nil")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("history tracker cannot be nil")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("price sink cannot be nil")
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = pricing.DefaultExpiry
	}
	if cfg.SettleAttempts == 0 {
		cfg.SettleAttempts = 4
	}
	if cfg.SettleBackoff <= 0 {
		cfg.SettleBackoff = 100 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Machine{
		store:           cfg.Store,
		tracker:         cfg.Tracker,
		sink:            cfg.Sink,
		approvals:       cfg.Approvals,
		recommendations: cfg.Recommendations,
		observer:        cfg.Observer,
		expiry:          cfg.Expiry,
		settleAttempts:  cfg.SettleAttempts,
		settleBackoff:   cfg.SettleBackoff,
		now:             cfg.Now,
		logger:          cfg.Logger.With("component", "decision"),
		locks:           NewKeyedMutex(),
		inFlight:        make(map[string]struct{}),
		unsettled:       make(map[string]*unsettled),
	}, nil
}

// Lock serializes work on productID and returns the unlock func.
func (m *Machine) Lock(productID string) func() {
	return m.locks.Lock(productID)
}

// Now returns the machine's clock reading.
func (m *Machine) Now() time.Time {
	return m.now()
}

// Store returns the backing store.
func (m *Machine) Store() Store {
	return m.store
}

// Get returns a copy of a request.
func (m *Machine) Get(ctx context.Context, id string) (*pricing.DecisionRequest, error) {
	return m.store.Get(ctx, id)
}

// InFlight reports whether the request is waiting on its price update.
func (m *Machine) InFlight(id string) bool {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	_, ok := m.inFlight[id]
	return ok
}

func (m *Machine) setInFlight(id string, on bool) {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	if on {
		m.inFlight[id] = struct{}{}
	} else {
		delete(m.inFlight, id)
	}
}

// Submit stores req as a new pending request, assigning ID, timestamps and
// expiry. The caller must hold the product lock.
func (m *Machine) Submit(ctx context.Context, req *pricing.DecisionRequest) error {
	now := m.now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = pricing.StatusPending
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = now.Add(m.expiry)
	}

	if err := m.store.Create(ctx, req.Clone()); err != nil {
		return err
	}
	m.observer.Transitioned("", pricing.StatusPending)
	return nil
}

// Transition moves req to a non-applied status and persists it. Every such
// status needs a reason. The caller must hold the product lock.
func (m *Machine) Transition(ctx context.Context, req *pricing.DecisionRequest, to pricing.Status, reason, actor string) error {
	if to == pricing.StatusApplied {
		return fmt.Errorf("decision %s: applied is reached through BeginApply", req.ID)
	}
	if reason == "" {
		return fmt.Errorf("decision %s: a reason is required to move to %s", req.ID, to)
	}
	if m.InFlight(req.ID) {
		return fmt.Errorf("decision %s: %w", req.ID, pricing.ErrDecisionInFlight)
	}
	if !req.Status.CanTransitionTo(to) {
		return &pricing.TransitionError{RequestID: req.ID, From: req.Status, To: to}
	}

	before := req.Clone()
	now := m.now()
	from := req.Status

	req.Status = to
	req.UpdatedAt = now
	req.ApprovalReason = reason
	if to == pricing.StatusManualReview {
		req.ApprovalRequired = true
	}
	if to.Terminal() {
		req.ResolvedAt = &now
		req.ResolvedBy = actor
	}

	if err := m.store.Update(ctx, req.Clone()); err != nil {
		*req = *before
		return err
	}

	m.observer.Transitioned(from, to)
	m.logger.Info("decision transitioned",
		"request_id", req.ID,
		"product_id", req.ProductID,
		"from", from,
		"to", to,
		"reason", reason,
	)
	return nil
}

// BeginApply records the history entry and marks req in flight. The caller
// must hold the product lock and release it before FinishApply.
func (m *Machine) BeginApply(ctx context.Context, req *pricing.DecisionRequest, changeType pricing.ChangeType, actor string) (*Ticket, error) {
	if m.InFlight(req.ID) {
		return nil, fmt.Errorf("decision %s: %w", req.ID, pricing.ErrDecisionInFlight)
	}
	if !req.Status.CanTransitionTo(pricing.StatusApplied) {
		return nil, &pricing.TransitionError{RequestID: req.ID, From: req.Status, To: pricing.StatusApplied}
	}

	entry := history.NewEntry(req, changeType, m.now())
	if err := m.tracker.Record(ctx, entry); err != nil {
		return nil, fmt.Errorf("record history for decision %s: %w", req.ID, err)
	}
	m.setInFlight(req.ID, true)

	req.ChangeType = changeType
	return &Ticket{Request: req.Clone(), Entry: entry, Actor: actor}, nil
}

// FinishApply invokes the price sink for a ticket and settles the request.
// The caller must not hold the product lock. A sink failure is not returned
// as an error: the request comes back in manual review with the failure as
// its reason.
func (m *Machine) FinishApply(ctx context.Context, t *Ticket) (*pricing.DecisionRequest, error) {
	req := t.Request
	sinkErr := m.sink.UpdatePrice(ctx, req.ProductID, req.CurrentPrice, req.RecommendedPrice)

	// Settlement must not be skipped because the caller gave up waiting.
	settleCtx := context.WithoutCancel(ctx)

	unlock := m.Lock(req.ProductID)
	current, notify, err := m.settle(settleCtx, t, sinkErr)
	unlock()
	if err != nil {
		return nil, err
	}

	if notify {
		m.NotifyReview(settleCtx, current)
	}
	return current, nil
}

// settle completes or rolls back an apply. Store access is retried; when
// the final write still fails the request stays in flight and is parked for
// Reconcile, so expiry cannot overwrite an applied price.
func (m *Machine) settle(ctx context.Context, t *Ticket, sinkErr error) (*pricing.DecisionRequest, bool, error) {
	var current *pricing.DecisionRequest
	err := m.retry(ctx, "get", t.Request.ID, func() error {
		got, err := m.store.Get(ctx, t.Request.ID)
		if err != nil {
			return err
		}
		current = got
		return nil
	})
	if err != nil {
		m.logger.Warn("settling from ticket after decision read failed",
			"request_id", t.Request.ID,
			"entry_id", t.Entry.ID,
			"error", err,
		)
		current = t.Request.Clone()
	}
	from := current.Status
	now := m.now()

	if sinkErr == nil {
		current.Status = pricing.StatusApplied
		current.AppliedAt = &now
		current.ResolvedAt = &now
		current.ResolvedBy = t.Actor
		current.UpdatedAt = now
		current.ChangeType = t.Request.ChangeType
		if current.ChangeType == pricing.ChangeManualApproval && t.Actor != "" {
			current.ApprovalReason = "approved by " + t.Actor
		}
		if err := m.persistSettled(ctx, current, from, t.Entry.ID, false); err != nil {
			return nil, false, err
		}
		m.logger.Info("price applied",
			"request_id", current.ID,
			"product_id", current.ProductID,
			"old_price", current.CurrentPrice,
			"new_price", current.RecommendedPrice,
			"change_type", current.ChangeType,
		)
		return current, false, nil
	}

	m.observer.SinkFailed("price_update")
	if err := m.tracker.Revert(ctx, t.Entry); err != nil {
		m.logger.Error("failed to revert history entry",
			"request_id", current.ID,
			"entry_id", t.Entry.ID,
			"error", err,
		)
	}

	current.Status = pricing.StatusManualReview
	current.ApprovalRequired = true
	current.ApprovalReason = (&pricing.SinkError{Sink: "price_update", RequestID: current.ID, Cause: sinkErr}).Error()
	current.ChangeType = ""
	current.Notified = false
	current.UpdatedAt = now
	if err := m.persistSettled(ctx, current, from, t.Entry.ID, true); err != nil {
		return nil, false, err
	}
	m.logger.Warn("price update failed, decision rolled back to manual review",
		"request_id", current.ID,
		"product_id", current.ProductID,
		"error", sinkErr,
	)
	return current, true, nil
}

// persistSettled writes a settled request and releases its in-flight mark.
// On failure the request keeps the mark and is queued for Reconcile.
func (m *Machine) persistSettled(ctx context.Context, target *pricing.DecisionRequest, from pricing.Status, entryID string, notify bool) error {
	err := m.retry(ctx, "update", target.ID, func() error {
		return m.store.Update(ctx, target.Clone())
	})
	if err != nil {
		m.flightMu.Lock()
		m.unsettled[target.ID] = &unsettled{target: target.Clone(), from: from, entryID: entryID, notify: notify}
		m.flightMu.Unlock()
		m.logger.Error("decision settle failed, held in flight for reconcile",
			"request_id", target.ID,
			"entry_id", entryID,
			"product_id", target.ProductID,
			"target_status", target.Status,
			"error", err,
		)
		return fmt.Errorf("settle decision %s: %w", target.ID, err)
	}
	m.setInFlight(target.ID, false)
	m.observer.Transitioned(from, target.Status)
	return nil
}

func (m *Machine) retry(ctx context.Context, op, id string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.settleBackoff
	b.MaxInterval = 10 * m.settleBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := fn(); err != nil {
			if errors.Is(err, pricing.ErrDecisionNotFound) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.settleAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			m.logger.Warn("decision store call failed, retrying",
				"op", op,
				"request_id", id,
				"wait", wait,
				"error", err,
			)
		}),
	)
	return err
}

// Unsettled returns the IDs of requests whose settled state is not yet
// persisted.
func (m *Machine) Unsettled() []string {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	ids := make([]string, 0, len(m.unsettled))
	for id := range m.unsettled {
		ids = append(ids, id)
	}
	return ids
}

// Reconcile retries the store writes of unsettled applies and returns how
// many were persisted.
func (m *Machine) Reconcile(ctx context.Context) (int, error) {
	m.flightMu.Lock()
	pending := make([]*unsettled, 0, len(m.unsettled))
	for _, u := range m.unsettled {
		pending = append(pending, u)
	}
	m.flightMu.Unlock()

	var (
		settled int
		errs    []error
	)
	for _, u := range pending {
		ok, err := m.reconcileOne(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		settled++
		if u.notify {
			m.NotifyReview(ctx, u.target.Clone())
		}
	}
	return settled, errors.Join(errs...)
}

func (m *Machine) reconcileOne(ctx context.Context, u *unsettled) (bool, error) {
	unlock := m.Lock(u.target.ProductID)
	defer unlock()

	m.flightMu.Lock()
	_, queued := m.unsettled[u.target.ID]
	m.flightMu.Unlock()
	if !queued {
		return false, nil
	}

	if err := m.store.Update(ctx, u.target.Clone()); err != nil {
		return false, fmt.Errorf("reconcile decision %s (entry %s): %w", u.target.ID, u.entryID, err)
	}

	m.flightMu.Lock()
	delete(m.unsettled, u.target.ID)
	delete(m.inFlight, u.target.ID)
	m.flightMu.Unlock()

	m.observer.Transitioned(u.from, u.target.Status)
	m.logger.Info("decision reconciled",
		"request_id", u.target.ID,
		"entry_id", u.entryID,
		"product_id", u.target.ProductID,
		"status", u.target.Status,
	)
	return true, nil
}

// NotifyReview tells the approval notifier that req awaits review and
// marks it notified. The caller must not hold the product lock.
func (m *Machine) NotifyReview(ctx context.Context, req *pricing.DecisionRequest) {
	if m.approvals == nil {
		return
	}
	if err := m.approvals.ApprovalRequired(ctx, *req.Clone()); err != nil {
		m.observer.SinkFailed("approval_required")
		m.logger.Warn("approval notification failed",
			"request_id", req.ID,
			"product_id", req.ProductID,
			"error", err,
		)
		return
	}

	unlock := m.Lock(req.ProductID)
	defer unlock()

	current, err := m.store.Get(ctx, req.ID)
	if err != nil || current.Status != pricing.StatusManualReview {
		return
	}
	current.Notified = true
	if err := m.store.Update(ctx, current); err != nil {
		m.logger.Warn("failed to mark decision notified", "request_id", req.ID, "error", err)
		return
	}
	req.Notified = true
}

// NotifyRecommendation surfaces a notify_only decision. The caller must not
// hold the product lock.
func (m *Machine) NotifyRecommendation(ctx context.Context, req *pricing.DecisionRequest) {
	if m.recommendations == nil {
		return
	}
	if err := m.recommendations.Recommended(ctx, *req.Clone()); err != nil {
		m.observer.SinkFailed("recommendation")
		m.logger.Warn("recommendation notification failed",
			"request_id", req.ID,
			"product_id", req.ProductID,
			"error", err,
		)
	}
}

// ExpireDue moves every open request past its expiry to expired. It fires no
// side effects and skips requests in flight. Unsettled applies are
// reconciled first.
func (m *Machine) ExpireDue(ctx context.Context) (int64, error) {
	if _, err := m.Reconcile(ctx); err != nil {
		m.logger.Error("reconcile before expiry failed", "error", err)
	}

	now := m.now()
	due, err := m.store.Query(ctx, Filter{Statuses: OpenStatuses, ExpiresBefore: now})
	if err != nil {
		return 0, err
	}

	var expired int64
	for _, candidate := range due {
		ok, err := m.expireOne(ctx, candidate.ProductID, candidate.ID, now)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (m *Machine) expireOne(ctx context.Context, productID, id string, now time.Time) (bool, error) {
	unlock := m.Lock(productID)
	defer unlock()

	req, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if req.Status.Terminal() || !now.After(req.ExpiresAt) || m.InFlight(id) {
		return false, nil
	}

	reason := fmt.Sprintf("expired without resolution at %s", req.ExpiresAt.UTC().Format(time.RFC3339))
	if err := m.Transition(ctx, req, pricing.StatusExpired, reason, "system"); err != nil {
		return false, err
	}
	return true, nil
}
