package pricing

import "testing"

func TestChangePct(t *testing.T) {
	tests := []struct {
		name     string
		oldPrice float64
		newPrice float64
		want     float64
	}{
		{"ten percent decrease", 100.0, 90.0, -0.10},
		{"twenty percent decrease", 100.0, 80.0, -0.20},
		{"increase", 19.99, 21.99, 0.100050},
		{"no change", 42.0, 42.0, 0},
		{"zero old price", 0, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChangePct(tt.oldPrice, tt.newPrice)
			if got != tt.want {
				t.Errorf("ChangePct(%v, %v) = %v, want %v", tt.oldPrice, tt.newPrice, got, tt.want)
			}
		})
	}
}

func TestProfitMargin(t *testing.T) {
	margin, ok := ProfitMargin(100, 75)
	if !ok || margin != 0.25 {
		t.Errorf("ProfitMargin(100, 75) = %v, %v; want 0.25, true", margin, ok)
	}

	if _, ok := ProfitMargin(100, 0); ok {
		t.Error("expected unknown cost to be reported as not computable")
	}
	if _, ok := ProfitMargin(100, -3); ok {
		t.Error("expected negative cost to be reported as not computable")
	}

	margin, ok = ProfitMargin(50, 60)
	if !ok || margin >= 0 {
		t.Errorf("expected negative margin when selling below cost, got %v", margin)
	}
}

func TestSamePrice(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want bool
	}{
		{"equal", 10.0, 10.0, true},
		{"decimal literal", 19.99, 19.990, true},
		{"sub-cent change", 100.004, 100.0, false},
		{"one cent", 10.01, 10.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SamePrice(tt.a, tt.b); got != tt.want {
				t.Errorf("SamePrice(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestExceedsFraction(t *testing.T) {
	if ExceedsFraction(-0.20, 0.20) {
		t.Error("exactly at the limit must not exceed it")
	}
	if !ExceedsFraction(-0.2001, 0.20) {
		t.Error("expected 20.01% to exceed a 20% limit")
	}
	if ExceedsFraction(ChangePct(100, 80), 0.20) {
		t.Error("100 -> 80 must be within a 20% decrease limit")
	}
}
