package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// RuleAction is what a matched rule does with a recommendation.
type RuleAction string

const (
	// ActionApplyImmediately applies the new price without human involvement.
	ActionApplyImmediately RuleAction = "apply_immediately"

	// ActionApplyWithApproval parks the decision in manual review.
	ActionApplyWithApproval RuleAction = "apply_with_approval"

	// ActionNotifyOnly rejects the change but surfaces it as a notification.
	ActionNotifyOnly RuleAction = "notify_only"

	// ActionIgnore rejects the change silently.
	ActionIgnore RuleAction = "ignore"
)

// Valid reports whether the action is one of the known actions.
func (a RuleAction) Valid() bool {
	switch a {
	case ActionApplyImmediately, ActionApplyWithApproval, ActionNotifyOnly, ActionIgnore:
		return true
	}
	return false
}

// Rule is a pricing policy. Rules are immutable once matched to a decision;
// decisions only keep the rule ID.
type Rule struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Priority orders evaluation. Lower values are evaluated first.
	Priority int `yaml:"priority" json:"priority"`

	// MinConfidence and MaxConfidence are inclusive bounds.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	MaxConfidence float64 `yaml:"max_confidence" json:"max_confidence"`

	// Categories restricts the rule to these product categories. Empty means all.
	Categories []string `yaml:"categories,omitempty" json:"categories,omitempty"`

	// ExcludedProducts never match this rule.
	ExcludedProducts []string `yaml:"excluded_products,omitempty" json:"excluded_products,omitempty"`

	// MaxPriceIncreasePct and MaxPriceDecreasePct are fractions (0.10 == 10%).
	MaxPriceIncreasePct float64 `yaml:"max_price_increase_pct" json:"max_price_increase_pct"`
	MaxPriceDecreasePct float64 `yaml:"max_price_decrease_pct" json:"max_price_decrease_pct"`

	// MinPrice and MaxPrice are absolute bounds on the new price.
	MinPrice *float64 `yaml:"min_price,omitempty" json:"min_price,omitempty"`
	MaxPrice *float64 `yaml:"max_price,omitempty" json:"max_price,omitempty"`

	// MaxChangesPerDay caps applied changes per product per calendar day.
	// Zero or negative disables the cap.
	MaxChangesPerDay int `yaml:"max_changes_per_day" json:"max_changes_per_day"`

	// CooldownHours is the minimum gap between two changes applied by this
	// rule for the same product.
	CooldownHours float64 `yaml:"cooldown_hours" json:"cooldown_hours"`

	// ActiveHours lists the hours of day (0-23) the rule may fire in.
	// Empty means every hour.
	ActiveHours []int `yaml:"active_hours,omitempty" json:"active_hours,omitempty"`

	Action RuleAction `yaml:"action" json:"action"`

	RequireMarginCheck bool    `yaml:"require_margin_check" json:"require_margin_check"`
	MinProfitMargin    float64 `yaml:"min_profit_margin" json:"min_profit_margin"`

	// Condition is an optional JSONLogic expression evaluated against the
	// recommendation. The rule only matches when it yields true.
	Condition map[string]any `yaml:"condition,omitempty" json:"condition,omitempty"`

	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	out.Categories = append([]string(nil), r.Categories...)
	out.ExcludedProducts = append([]string(nil), r.ExcludedProducts...)
	out.ActiveHours = append([]int(nil), r.ActiveHours...)
	if r.MinPrice != nil {
		v := *r.MinPrice
		out.MinPrice = &v
	}
	if r.MaxPrice != nil {
		v := *r.MaxPrice
		out.MaxPrice = &v
	}
	if r.Condition != nil {
		out.Condition = copyCondition(r.Condition).(map[string]any)
	}
	return out
}

// copyCondition deep-copies a decoded JSONLogic tree. Leaves are scalars.
func copyCondition(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = copyCondition(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = copyCondition(e)
		}
		return s
	default:
		return v
	}
}

// Cooldown returns CooldownHours as a duration.
func (r Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownHours * float64(time.Hour))
}

// ActiveAt reports whether hour falls in the rule's active hours.
func (r Rule) ActiveAt(hour int) bool {
	if len(r.ActiveHours) == 0 {
		return true
	}
	for _, h := range r.ActiveHours {
		if h == hour {
			return true
		}
	}
	return false
}

// Validate checks the rule for structural errors.
func (r Rule) Validate() error {
	var problems []string
	if strings.TrimSpace(r.ID) == "" {
		problems = append(problems, "id is required")
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		problems = append(problems, "min_confidence must be within [0,1]")
	}
	if r.MaxConfidence < 0 || r.MaxConfidence > 1 {
		problems = append(problems, "max_confidence must be within [0,1]")
	}
	if r.MinConfidence > r.MaxConfidence {
		problems = append(problems, "min_confidence must not exceed max_confidence")
	}
	if r.MaxPriceIncreasePct < 0 || r.MaxPriceDecreasePct < 0 {
		problems = append(problems, "price change limits must not be negative")
	}
	if r.MinPrice != nil && r.MaxPrice != nil && *r.MinPrice > *r.MaxPrice {
		problems = append(problems, "min_price must not exceed max_price")
	}
	if r.CooldownHours < 0 {
		problems = append(problems, "cooldown_hours must not be negative")
	}
	for _, h := range r.ActiveHours {
		if h < 0 || h > 23 {
			problems = append(problems, fmt.Sprintf("active hour %d out of range 0-23", h))
		}
	}
	if !r.Action.Valid() {
		problems = append(problems, fmt.Sprintf("unknown action %q", r.Action))
	}
	if r.RequireMarginCheck && (r.MinProfitMargin < 0 || r.MinProfitMargin >= 1) {
		problems = append(problems, "min_profit_margin must be within [0,1)")
	}
	if len(problems) > 0 {
		return &RuleError{RuleID: r.ID, Problems: problems}
	}
	return nil
}

// SortRules orders rules by priority, then ID.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// BusinessContext carries the product facts a recommendation is judged against.
type BusinessContext struct {
	Category       string         `json:"category"`
	UnitCost       float64        `json:"unit_cost"`
	InventoryLevel int            `json:"inventory_level"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// Recommendation is an externally computed price suggestion.
type Recommendation struct {
	ProductID        string          `json:"product_id"`
	CurrentPrice     float64         `json:"current_price"`
	RecommendedPrice float64         `json:"recommended_price"`
	Confidence       float64         `json:"confidence"`
	Context          BusinessContext `json:"context"`
}

// Validate rejects malformed recommendations.
func (r Recommendation) Validate() error {
	switch {
	case strings.TrimSpace(r.ProductID) == "":
		return NewValidationError("product_id", "must not be empty")
	case !finite(r.CurrentPrice) || r.CurrentPrice <= 0:
		return NewValidationError("current_price", "must be a positive number")
	case !finite(r.RecommendedPrice) || r.RecommendedPrice <= 0:
		return NewValidationError("recommended_price", "must be a positive number")
	case !finite(r.Confidence) || r.Confidence < 0 || r.Confidence > 1:
		return NewValidationError("confidence", "must be within [0,1]")
	case !finite(r.Context.UnitCost):
		return NewValidationError("context.unit_cost", "must be a finite number")
	}
	return nil
}

// Data flattens the recommendation into the document JSONLogic conditions
// are evaluated against.
func (r Recommendation) Data() map[string]any {
	return map[string]any{
		"product_id":        r.ProductID,
		"current_price":     r.CurrentPrice,
		"recommended_price": r.RecommendedPrice,
		"confidence":        r.Confidence,
		"change_pct":        ChangePct(r.CurrentPrice, r.RecommendedPrice),
		"category":          r.Context.Category,
		"unit_cost":         r.Context.UnitCost,
		"inventory_level":   r.Context.InventoryLevel,
		"attributes":        r.Context.Attributes,
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MarketSignals are externally computed risk inputs.
type MarketSignals struct {
	// Volatility is a market volatility index. Nil means not supplied.
	Volatility *float64 `json:"volatility,omitempty"`
}

// Status is the lifecycle state of a DecisionRequest.
type Status string

const (
	StatusPending      Status = "pending"
	StatusApplied      Status = "applied"
	StatusRejected     Status = "rejected"
	StatusManualReview Status = "manual_review"
	StatusExpired      Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusApplied || s == StatusRejected || s == StatusExpired
}

// CanTransitionTo reports whether s → next is a legal edge.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApplied || next == StatusRejected ||
			next == StatusManualReview || next == StatusExpired
	case StatusManualReview:
		return next == StatusApplied || next == StatusRejected || next == StatusExpired
	}
	return false
}

// ChangeType records how an applied change came about.
type ChangeType string

const (
	ChangeAutomatic      ChangeType = "automatic"
	ChangeManualApproval ChangeType = "manual_approval"
)

// DefaultExpiry is how long a decision may wait before the sweep expires it.
const DefaultExpiry = 24 * time.Hour

// DecisionRequest is the engine's verdict on one recommendation.
type DecisionRequest struct {
	ID               string     `json:"id"`
	ProductID        string     `json:"product_id"`
	CurrentPrice     float64    `json:"current_price"`
	RecommendedPrice float64    `json:"recommended_price"`
	Confidence       float64    `json:"confidence"`
	MatchedRuleID    string     `json:"matched_rule_id,omitempty"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	AppliedAt        *time.Time `json:"applied_at,omitempty"`
	ApprovalRequired bool       `json:"approval_required"`
	ApprovalReason   string     `json:"approval_reason,omitempty"`
	ChangeType       ChangeType `json:"change_type,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	NoOp             bool       `json:"no_op,omitempty"`
	Notified         bool       `json:"notified,omitempty"`
	RiskControls     []string   `json:"risk_controls,omitempty"`
}

// Clone returns a deep copy of the request.
func (d *DecisionRequest) Clone() *DecisionRequest {
	if d == nil {
		return nil
	}
	out := *d
	if d.AppliedAt != nil {
		t := *d.AppliedAt
		out.AppliedAt = &t
	}
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		out.ResolvedAt = &t
	}
	out.RiskControls = append([]string(nil), d.RiskControls...)
	return &out
}

// ChangePct is the signed fractional price change of the request.
func (d *DecisionRequest) ChangePct() float64 {
	return ChangePct(d.CurrentPrice, d.RecommendedPrice)
}

// HistoryEntry is one applied price change.
type HistoryEntry struct {
	ID         string     `json:"id"`
	ProductID  string     `json:"product_id"`
	RequestID  string     `json:"request_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	OldPrice   float64    `json:"old_price"`
	NewPrice   float64    `json:"new_price"`
	RuleID     string     `json:"rule_id,omitempty"`
	ChangeType ChangeType `json:"change_type"`
	ChangePct  float64    `json:"change_pct"`
}

// RiskControlType names a global risk control.
type RiskControlType string

const (
	ControlMaxAdjustment    RiskControlType = "max_adjustment_limit"
	ControlVolatility       RiskControlType = "volatility_circuit_breaker"
	ControlConfidence       RiskControlType = "confidence_threshold"
	ControlMargin           RiskControlType = "margin_protection"
	ControlDailyAdjustments RiskControlType = "daily_adjustment_limit"
)

// ControlAction is what a triggered risk control does.
type ControlAction string

const (
	ControlBlock           ControlAction = "block"
	ControlRequireApproval ControlAction = "require_manual_approval"
	ControlFreezeAll       ControlAction = "freeze_all"
	ControlLimitDecrease   ControlAction = "limit_decrease"
)

// Valid reports whether the action is known.
func (a ControlAction) Valid() bool {
	switch a {
	case ControlBlock, ControlRequireApproval, ControlFreezeAll, ControlLimitDecrease:
		return true
	}
	return false
}

// RiskControl is a global circuit breaker.
type RiskControl struct {
	Type             RiskControlType `yaml:"type" json:"type"`
	Threshold        float64         `yaml:"threshold" json:"threshold"`
	Action           ControlAction   `yaml:"action" json:"action"`
	MonitoringMetric string          `yaml:"monitoring_metric,omitempty" json:"monitoring_metric,omitempty"`
	Enabled          bool            `yaml:"enabled" json:"enabled"`
	LastTriggeredAt  *time.Time      `yaml:"-" json:"last_triggered_at,omitempty"`
}
