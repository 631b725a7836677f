package risk

import (
	"sync"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

// DefaultAlertCapacity bounds the in-memory alert log.
const DefaultAlertCapacity = 1000

// Alert records one control trigger.
type Alert struct {
	Control   pricing.RiskControlType `json:"control"`
	Action    pricing.ControlAction   `json:"action"`
	Threshold float64                 `json:"threshold"`
	Observed  float64                 `json:"observed"`
	ProductID string                  `json:"product_id"`
	Reason    string                  `json:"reason"`
	At        time.Time               `json:"at"`
}

// AlertSummary aggregates alerts over a window.
type AlertSummary struct {
	Since     time.Time                       `json:"since"`
	Total     int                             `json:"total"`
	ByControl map[pricing.RiskControlType]int `json:"by_control"`
	ByAction  map[pricing.ControlAction]int   `json:"by_action"`
	Products  int                             `json:"products"`
	Latest    *Alert                          `json:"latest,omitempty"`
}

// AlertLog is a bounded ring of recent alerts.
type AlertLog struct {
	mu       sync.RWMutex
	alerts   []Alert
	next     int
	full     bool
	capacity int
}

// NewAlertLog creates a log holding at most capacity alerts. capacity <= 0
// uses DefaultAlertCapacity.
func NewAlertLog(capacity int) *AlertLog {
	if capacity <= 0 {
		capacity = DefaultAlertCapacity
	}
	return &AlertLog{
		alerts:   make([]Alert, capacity),
		capacity: capacity,
	}
}

// Add appends an alert, evicting the oldest when full.
func (l *AlertLog) Add(a Alert) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.alerts[l.next] = a
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
}

// Since returns alerts at or after t, oldest first.
func (l *AlertLog) Since(t time.Time) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Alert
	l.each(func(a Alert) {
		if !a.At.Before(t) {
			out = append(out, a)
		}
	})
	return out
}

// Len returns the number of retained alerts.
func (l *AlertLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return l.capacity
	}
	return l.next
}

func (l *AlertLog) each(fn func(Alert)) {
	if l.full {
		for _, a := range l.alerts[l.next:] {
			fn(a)
		}
	}
	for _, a := range l.alerts[:l.next] {
		fn(a)
	}
}

// Summary aggregates the alerts of the last hours before now.
func (l *AlertLog) Summary(hours int, now time.Time) AlertSummary {
	since := now.Add(-time.Duration(hours) * time.Hour)
	summary := AlertSummary{
		Since:     since,
		ByControl: make(map[pricing.RiskControlType]int),
		ByAction:  make(map[pricing.ControlAction]int),
	}

	products := make(map[string]struct{})
	for _, a := range l.Since(since) {
		summary.Total++
		summary.ByControl[a.Control]++
		summary.ByAction[a.Action]++
		products[a.ProductID] = struct{}{}
		latest := a
		summary.Latest = &latest
	}
	summary.Products = len(products)
	return summary
}
