package risk

import (
	"fmt"
	"sort"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

// DefaultFreezeWindow is how long a freeze_all trigger keeps blocking.
const DefaultFreezeWindow = 30 * time.Minute

// DefaultControls returns the stock control set.
func DefaultControls() []pricing.RiskControl {
	return []pricing.RiskControl{
		{
			Type:             pricing.ControlMaxAdjustment,
			Threshold:        0.25,
			Action:           pricing.ControlBlock,
			MonitoringMetric: "price_change_pct",
			Enabled:          true,
		},
		{
			Type:             pricing.ControlVolatility,
			Threshold:        0.5,
			Action:           pricing.ControlFreezeAll,
			MonitoringMetric: "volatility_index",
			Enabled:          true,
		},
		{
			Type:             pricing.ControlConfidence,
			Threshold:        0.6,
			Action:           pricing.ControlRequireApproval,
			MonitoringMetric: "confidence",
			Enabled:          true,
		},
		{
			Type:             pricing.ControlMargin,
			Threshold:        0.05,
			Action:           pricing.ControlBlock,
			MonitoringMetric: "profit_margin",
			Enabled:          true,
		},
		{
			Type:             pricing.ControlDailyAdjustments,
			Threshold:        3,
			Action:           pricing.ControlRequireApproval,
			MonitoringMetric: "daily_adjustments",
			Enabled:          true,
		},
	}
}

// defaultFor returns the stock definition of a control type.
func defaultFor(t pricing.RiskControlType) (pricing.RiskControl, bool) {
	for _, c := range DefaultControls() {
		if c.Type == t {
			return c, true
		}
	}
	return pricing.RiskControl{}, false
}

// KnownType reports whether t is a control type the layer can evaluate.
func KnownType(t pricing.RiskControlType) bool {
	_, ok := defaultFor(t)
	return ok
}

// ValidateControl checks a control definition.
func ValidateControl(c pricing.RiskControl) error {
	if !KnownType(c.Type) {
		return fmt.Errorf("unknown risk control type %q", c.Type)
	}
	if !c.Action.Valid() {
		return fmt.Errorf("risk control %s: unknown action %q", c.Type, c.Action)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("risk control %s: threshold must not be negative", c.Type)
	}
	return nil
}

func sortControls(controls []pricing.RiskControl) {
	sort.Slice(controls, func(i, j int) bool {
		return controls[i].Type < controls[j].Type
	})
}
