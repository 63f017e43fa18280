package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewTickDerivesMid(t *testing.T) {
	tests := []struct {
		name string
		bid  string
		ask  string
		mid  string
	}{
		{"centered", "0.48", "0.52", "0.5"},
		{"uneven", "0.40", "0.50", "0.45"},
		{"tight", "0.49", "0.50", "0.495"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tick := NewTick(
				decimal.RequireFromString(tt.bid),
				decimal.RequireFromString(tt.ask),
				time.Now(),
			)
			if !tick.Mid.Equal(decimal.RequireFromString(tt.mid)) {
				t.Errorf("mid = %s, want %s", tick.Mid, tt.mid)
			}
			if err := tick.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestTickValidateRejectsCrossed(t *testing.T) {
	tick := Tick{
		Bid:       decimal.RequireFromString("0.60"),
		Ask:       decimal.RequireFromString("0.40"),
		Mid:       decimal.RequireFromString("0.50"),
		Timestamp: time.Now(),
	}
	if err := tick.Validate(); err == nil {
		t.Error("crossed tick passed validation")
	}

	tick.Timestamp = time.Time{}
	if err := tick.Validate(); err == nil {
		t.Error("zero-timestamp tick passed validation")
	}
}

func TestTickAgeAndSpread(t *testing.T) {
	now := time.Now()
	tick := NewTick(
		decimal.RequireFromString("0.48"),
		decimal.RequireFromString("0.52"),
		now.Add(-3*time.Second),
	)

	if got := tick.Age(now); got != 3*time.Second {
		t.Errorf("Age = %v, want 3s", got)
	}
	if !tick.Spread().Equal(decimal.RequireFromString("0.04")) {
		t.Errorf("Spread = %s, want 0.04", tick.Spread())
	}
}
