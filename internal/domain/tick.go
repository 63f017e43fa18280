package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one normalized price observation from the streaming feed.
type Tick struct {
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Mid       decimal.Decimal `json:"mid"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTick builds a tick with the mid derived from best bid/ask.
func NewTick(bid, ask decimal.Decimal, ts time.Time) Tick {
	return Tick{
		Bid:       bid,
		Ask:       ask,
		Mid:       bid.Add(ask).Div(decimal.NewFromInt(2)),
		Timestamp: ts,
	}
}

// Age returns how old the tick is relative to now.
func (t Tick) Age(now time.Time) time.Duration {
	return now.Sub(t.Timestamp)
}

// Spread returns the absolute bid/ask spread.
func (t Tick) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// Validate checks the bid <= mid <= ask invariant.
func (t Tick) Validate() error {
	if t.Timestamp.IsZero() {
		return fmt.Errorf("tick has no timestamp")
	}
	if t.Bid.GreaterThan(t.Mid) || t.Mid.GreaterThan(t.Ask) {
		return fmt.Errorf("tick violates bid<=mid<=ask: bid=%s mid=%s ask=%s",
			t.Bid, t.Mid, t.Ask)
	}
	return nil
}
