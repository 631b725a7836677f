package risk

import (
	"strings"
	"testing"
	"time"

	"mercator-hq/pricegate/pkg/pricing"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func vol(v float64) pricing.MarketSignals { return pricing.MarketSignals{Volatility: &v} }

func input(current, recommended, confidence float64) Input {
	return Input{
		ProductID:        "sku-1",
		CurrentPrice:     current,
		RecommendedPrice: recommended,
		Confidence:       confidence,
		UnitCost:         50,
		Now:              t0,
	}
}

func newTestLayer(t *testing.T, cfg Config) *Layer {
	t.Helper()
	l, err := NewLayer(cfg, nil)
	if err != nil {
		t.Fatalf("NewLayer() error = %v", err)
	}
	return l
}

func TestLayer_Assess(t *testing.T) {
	tests := []struct {
		name        string
		in          func() Input
		want        Disposition
		wantControl pricing.RiskControlType
	}{
		{
			name: "nothing triggers",
			in:   func() Input { return input(100, 95, 0.9) },
			want: Allow,
		},
		{
			name:        "adjustment too large",
			in:          func() Input { return input(100, 130, 0.9) },
			want:        Block,
			wantControl: pricing.ControlMaxAdjustment,
		},
		{
			name: "adjustment exactly at threshold",
			in:   func() Input { return input(100, 125, 0.9) },
			want: Allow,
		},
		{
			name: "volatility breaker",
			in: func() Input {
				in := input(100, 95, 0.9)
				in.Signals = vol(0.7)
				return in
			},
			want:        Block,
			wantControl: pricing.ControlVolatility,
		},
		{
			name:        "low confidence",
			in:          func() Input { return input(100, 95, 0.5) },
			want:        RequireApproval,
			wantControl: pricing.ControlConfidence,
		},
		{
			name: "thin margin",
			in: func() Input {
				in := input(100, 95, 0.9)
				in.UnitCost = 92
				return in
			},
			want:        Block,
			wantControl: pricing.ControlMargin,
		},
		{
			name: "margin skipped without cost",
			in: func() Input {
				in := input(100, 95, 0.9)
				in.UnitCost = 0
				return in
			},
			want: Allow,
		},
		{
			name: "daily adjustments",
			in: func() Input {
				in := input(100, 95, 0.9)
				in.AdjustmentsToday = 3
				return in
			},
			want:        RequireApproval,
			wantControl: pricing.ControlDailyAdjustments,
		},
		{
			name: "daily adjustments below threshold",
			in: func() Input {
				in := input(100, 95, 0.9)
				in.AdjustmentsToday = 2
				return in
			},
			want: Allow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLayer(t, Config{})
			got := l.Assess(tt.in())

			if got.Disposition != tt.want {
				t.Fatalf("Disposition = %s, want %s (triggers %+v)", got.Disposition, tt.want, got.Triggers)
			}
			if tt.wantControl == "" {
				if len(got.Triggers) != 0 {
					t.Errorf("unexpected triggers %+v", got.Triggers)
				}
				return
			}
			if len(got.Triggers) != 1 || got.Triggers[0].Control != tt.wantControl {
				t.Fatalf("Triggers = %+v, want single %s", got.Triggers, tt.wantControl)
			}
			if !strings.Contains(got.Reason(), string(tt.wantControl)) {
				t.Errorf("Reason() = %q, want control name", got.Reason())
			}
		})
	}
}

func TestLayer_MostConservativeWins(t *testing.T) {
	l := newTestLayer(t, Config{})
	got := l.Assess(input(100, 130, 0.5))

	if got.Disposition != Block {
		t.Fatalf("Disposition = %s, want block", got.Disposition)
	}
	if len(got.Triggers) != 2 {
		t.Fatalf("Triggers = %d, want 2", len(got.Triggers))
	}
	if reason := got.Reason(); !strings.Contains(reason, string(pricing.ControlMaxAdjustment)) ||
		strings.Contains(reason, string(pricing.ControlConfidence)) {
		t.Errorf("Reason() = %q, want only the blocking control", reason)
	}
	if controls := got.Controls(); len(controls) != 2 {
		t.Errorf("Controls() = %v", controls)
	}
}

func TestLayer_FreezeWindow(t *testing.T) {
	l := newTestLayer(t, Config{FreezeWindow: 30 * time.Minute})

	in := input(100, 95, 0.9)
	in.Signals = vol(0.9)
	if got := l.Assess(in); got.Disposition != Block {
		t.Fatalf("breaker did not block: %s", got.Disposition)
	}

	var volatility pricing.RiskControl
	for _, c := range l.Controls() {
		if c.Type == pricing.ControlVolatility {
			volatility = c
		}
	}
	if volatility.LastTriggeredAt == nil || !volatility.LastTriggeredAt.Equal(t0) {
		t.Errorf("LastTriggeredAt = %v, want %v", volatility.LastTriggeredAt, t0)
	}

	calm := input(100, 95, 0.9)
	calm.Now = t0.Add(10 * time.Minute)
	got := l.Assess(calm)
	if got.Disposition != Block || !got.Frozen {
		t.Fatalf("inside window: Disposition = %s Frozen = %v, want frozen block", got.Disposition, got.Frozen)
	}
	if !strings.Contains(got.Reason(), "frozen") {
		t.Errorf("Reason() = %q", got.Reason())
	}
	if until := l.FrozenUntil(calm.Now); !until.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("FrozenUntil() = %v", until)
	}

	calm.Now = t0.Add(31 * time.Minute)
	if got := l.Assess(calm); got.Disposition != Allow {
		t.Errorf("after window: Disposition = %s, want allow", got.Disposition)
	}
}

func TestLayer_Unfreeze(t *testing.T) {
	l := newTestLayer(t, Config{})
	in := input(100, 95, 0.9)
	in.Signals = vol(0.9)
	l.Assess(in)

	l.Unfreeze()
	if got := l.Assess(input(100, 95, 0.9)); got.Disposition != Allow {
		t.Errorf("Disposition after Unfreeze = %s", got.Disposition)
	}
}

func TestLayer_NegativeFreezeWindowDisablesFreeze(t *testing.T) {
	l := newTestLayer(t, Config{FreezeWindow: -1})
	in := input(100, 95, 0.9)
	in.Signals = vol(0.9)
	l.Assess(in)

	if got := l.Assess(input(100, 95, 0.9)); got.Disposition != Allow {
		t.Errorf("Disposition = %s, want allow without freeze window", got.Disposition)
	}
}

func TestLayer_LimitDecrease(t *testing.T) {
	l := newTestLayer(t, Config{Controls: []pricing.RiskControl{{
		Type:      pricing.ControlMaxAdjustment,
		Threshold: 0.10,
		Action:    pricing.ControlLimitDecrease,
		Enabled:   true,
	}}})

	if got := l.Assess(input(100, 85, 0.9)); got.Disposition != Block {
		t.Errorf("decrease: Disposition = %s, want block", got.Disposition)
	}
	if got := l.Assess(input(100, 115, 0.9)); got.Disposition != RequireApproval {
		t.Errorf("increase: Disposition = %s, want require_approval", got.Disposition)
	}
}

func TestLayer_SetControl(t *testing.T) {
	l := newTestLayer(t, Config{})

	if err := l.SetControl(pricing.ControlMaxAdjustment, 0.5, false); err != nil {
		t.Fatalf("SetControl() error = %v", err)
	}
	if got := l.Assess(input(100, 130, 0.9)); got.Disposition != Allow {
		t.Errorf("disabled control still fired: %+v", got.Triggers)
	}

	if err := l.SetControl(pricing.ControlMaxAdjustment, 0.2, true); err != nil {
		t.Fatalf("SetControl() error = %v", err)
	}
	if got := l.Assess(input(100, 125, 0.9)); got.Disposition != Block {
		t.Errorf("lowered threshold not applied: %s", got.Disposition)
	}

	if err := l.SetControl("made_up", 1, true); err == nil {
		t.Error("SetControl(unknown) should fail")
	}
	if err := l.SetControl(pricing.ControlMargin, -1, true); err == nil {
		t.Error("SetControl(negative) should fail")
	}
}

func TestNewLayer_InvalidControl(t *testing.T) {
	_, err := NewLayer(Config{Controls: []pricing.RiskControl{{
		Type:   pricing.ControlMargin,
		Action: "explode",
	}}}, nil)
	if err == nil {
		t.Error("NewLayer() with bad action should fail")
	}
}

func TestLayer_Controls(t *testing.T) {
	l := newTestLayer(t, Config{})
	controls := l.Controls()
	if len(controls) != len(DefaultControls()) {
		t.Fatalf("Controls() = %d, want %d", len(controls), len(DefaultControls()))
	}
	for i := 1; i < len(controls); i++ {
		if controls[i-1].Type > controls[i].Type {
			t.Errorf("controls not sorted: %s before %s", controls[i-1].Type, controls[i].Type)
		}
	}
}
