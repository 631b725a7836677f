package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

// Disposition is the outcome of a risk assessment, ordered from least to
// most conservative.
type Disposition int

const (
	Allow Disposition = iota
	RequireApproval
	Block
)

func (d Disposition) String() string {
	switch d {
	case Allow:
		return "allow"
	case RequireApproval:
		return "require_approval"
	case Block:
		return "block"
	}
	return fmt.Sprintf("disposition(%d)", int(d))
}

// Input is what the layer judges.
type Input struct {
	ProductID        string
	CurrentPrice     float64
	RecommendedPrice float64
	Confidence       float64
	UnitCost         float64
	Signals          pricing.MarketSignals

	// AdjustmentsToday is the number of changes already applied to the
	// product today.
	AdjustmentsToday int

	Now time.Time
}

// Trigger is one control that fired.
type Trigger struct {
	Control     pricing.RiskControlType
	Action      pricing.ControlAction
	Threshold   float64
	Observed    float64
	Disposition Disposition
	Reason      string
}

// Assessment is the layer's verdict.
type Assessment struct {
	Disposition Disposition
	Triggers    []Trigger

	// Frozen is set when a previously opened freeze window blocked the
	// assessment.
	Frozen bool
}

// Reason joins the trigger reasons of the final disposition.
func (a Assessment) Reason() string {
	var parts []string
	for _, t := range a.Triggers {
		if t.Disposition == a.Disposition {
			parts = append(parts, t.Reason)
		}
	}
	return strings.Join(parts, "; ")
}

// Controls returns the triggered control types.
func (a Assessment) Controls() []string {
	out := make([]string, 0, len(a.Triggers))
	for _, t := range a.Triggers {
		out = append(out, string(t.Control))
	}
	return out
}

// Layer evaluates the configured controls.
type Layer struct {
	mu           sync.RWMutex
	controls     map[pricing.RiskControlType]*pricing.RiskControl
	freezeWindow time.Duration
	frozenUntil  time.Time
	frozenBy     pricing.RiskControlType
	alerts       *AlertLog
	logger       *slog.Logger
}

// Config configures a Layer.
type Config struct {
	// Controls overrides the stock definitions by type. Nil means
	// DefaultControls.
	Controls []pricing.RiskControl

	// FreezeWindow is how long a freeze_all trigger blocks. Zero means
	// DefaultFreezeWindow; negative disables the window.
	FreezeWindow time.Duration

	// AlertCapacity bounds the alert log.
	AlertCapacity int
}

// NewLayer creates a layer. Controls given in cfg replace the stock control
// of the same type.
func NewLayer(cfg Config, logger *slog.Logger) (*Layer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FreezeWindow == 0 {
		cfg.FreezeWindow = DefaultFreezeWindow
	}

	l := &Layer{
		controls:     make(map[pricing.RiskControlType]*pricing.RiskControl),
		freezeWindow: cfg.FreezeWindow,
		alerts:       NewAlertLog(cfg.AlertCapacity),
		logger:       logger.With("component", "risk"),
	}
	for _, c := range DefaultControls() {
		c := c
		l.controls[c.Type] = &c
	}
	for _, c := range cfg.Controls {
		if err := ValidateControl(c); err != nil {
			return nil, err
		}
		c := c
		l.controls[c.Type] = &c
	}
	return l, nil
}

// SetControl updates the threshold and enabled flag of a control type.
func (l *Layer) SetControl(t pricing.RiskControlType, threshold float64, enabled bool) error {
	if !KnownType(t) {
		return fmt.Errorf("unknown risk control type %q", t)
	}
	if threshold < 0 {
		return fmt.Errorf("risk control %s: threshold must not be negative", t)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.controls[t]
	if !ok {
		def, _ := defaultFor(t)
		c = &def
		l.controls[t] = c
	}
	c.Threshold = threshold
	c.Enabled = enabled

	l.logger.Info("risk control updated",
		"control", t,
		"threshold", threshold,
		"enabled", enabled,
	)
	return nil
}

// Controls returns copies of the current controls, ordered by type.
func (l *Layer) Controls() []pricing.RiskControl {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]pricing.RiskControl, 0, len(l.controls))
	for _, c := range l.controls {
		cp := *c
		if c.LastTriggeredAt != nil {
			t := *c.LastTriggeredAt
			cp.LastTriggeredAt = &t
		}
		out = append(out, cp)
	}
	sortControls(out)
	return out
}

// Alerts returns the alert log.
func (l *Layer) Alerts() *AlertLog {
	return l.alerts
}

// FrozenUntil returns the end of the current freeze window, or the zero
// time when not frozen at now.
func (l *Layer) FrozenUntil(now time.Time) time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if now.Before(l.frozenUntil) {
		return l.frozenUntil
	}
	return time.Time{}
}

// Unfreeze closes an open freeze window.
func (l *Layer) Unfreeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozenUntil = time.Time{}
	l.logger.Info("freeze window cleared")
}

// Assess evaluates every enabled control against in.
func (l *Layer) Assess(in Input) Assessment {
	l.mu.Lock()
	defer l.mu.Unlock()

	var a Assessment
	if in.Now.Before(l.frozenUntil) {
		a.Frozen = true
		a.Disposition = Block
		a.Triggers = append(a.Triggers, Trigger{
			Control:     l.frozenBy,
			Action:      pricing.ControlFreezeAll,
			Disposition: Block,
			Reason: fmt.Sprintf("pricing frozen by %s until %s",
				l.frozenBy, l.frozenUntil.UTC().Format(time.RFC3339)),
		})
	}

	pct := pricing.ChangePct(in.CurrentPrice, in.RecommendedPrice)
	for _, t := range []pricing.RiskControlType{
		pricing.ControlMaxAdjustment,
		pricing.ControlVolatility,
		pricing.ControlConfidence,
		pricing.ControlMargin,
		pricing.ControlDailyAdjustments,
	} {
		c, ok := l.controls[t]
		if !ok || !c.Enabled {
			continue
		}

		observed, fired, detail := l.check(c, in, pct)
		if !fired {
			continue
		}

		trigger := Trigger{
			Control:     c.Type,
			Action:      c.Action,
			Threshold:   c.Threshold,
			Observed:    observed,
			Disposition: dispositionFor(c.Action, pct),
			Reason:      fmt.Sprintf("risk control %s (threshold %g): %s", c.Type, c.Threshold, detail),
		}
		a.Triggers = append(a.Triggers, trigger)
		if trigger.Disposition > a.Disposition {
			a.Disposition = trigger.Disposition
		}

		at := in.Now
		c.LastTriggeredAt = &at
		if c.Action == pricing.ControlFreezeAll && l.freezeWindow > 0 {
			l.frozenUntil = in.Now.Add(l.freezeWindow)
			l.frozenBy = c.Type
		}

		l.alerts.Add(Alert{
			Control:   c.Type,
			Action:    c.Action,
			Threshold: c.Threshold,
			Observed:  observed,
			ProductID: in.ProductID,
			Reason:    trigger.Reason,
			At:        in.Now,
		})
		l.logger.Warn("risk control triggered",
			"control", c.Type,
			"threshold", c.Threshold,
			"observed", observed,
			"action", c.Action,
			"product_id", in.ProductID,
		)
	}
	return a
}

// check returns the observed metric and whether the control fired.
func (l *Layer) check(c *pricing.RiskControl, in Input, pct float64) (float64, bool, string) {
	switch c.Type {
	case pricing.ControlMaxAdjustment:
		if pricing.ExceedsFraction(pct, c.Threshold) {
			return pct, true, fmt.Sprintf("adjustment %.2f%% exceeds %.2f%%", pct*100, c.Threshold*100)
		}

	case pricing.ControlVolatility:
		if in.Signals.Volatility != nil && *in.Signals.Volatility > c.Threshold {
			v := *in.Signals.Volatility
			return v, true, fmt.Sprintf("volatility %.4f above %.4f", v, c.Threshold)
		}

	case pricing.ControlConfidence:
		if in.Confidence < c.Threshold {
			return in.Confidence, true, fmt.Sprintf("confidence %.2f below %.2f", in.Confidence, c.Threshold)
		}

	case pricing.ControlMargin:
		margin, ok := pricing.ProfitMargin(in.RecommendedPrice, in.UnitCost)
		if ok && margin < c.Threshold {
			return margin, true, fmt.Sprintf("margin %.2f%% below %.2f%%", margin*100, c.Threshold*100)
		}

	case pricing.ControlDailyAdjustments:
		n := float64(in.AdjustmentsToday)
		if n >= c.Threshold {
			return n, true, fmt.Sprintf("%d adjustments today, limit %g", in.AdjustmentsToday, c.Threshold)
		}
	}
	return 0, false, ""
}

// dispositionFor maps a control action to a disposition. limit_decrease
// only blocks price decreases; increases are routed to approval.
func dispositionFor(action pricing.ControlAction, pct float64) Disposition {
	switch action {
	case pricing.ControlBlock, pricing.ControlFreezeAll:
		return Block
	case pricing.ControlLimitDecrease:
		if pct < 0 {
			return Block
		}
		return RequireApproval
	case pricing.ControlRequireApproval:
		return RequireApproval
	}
	return RequireApproval
}
