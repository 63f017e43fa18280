// Package policy computes the desired quote set from market and balance
// state. Evaluate is a pure function of its inputs so it can be unit tested
// without any network collaborator.
package policy

import (
	"time"

	"quoter_go/internal/domain"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Evaluate produces the desired bid/ask quote targets for the current tick,
// or declines to quote a side (nil target).
//
// Rules, in order:
//  1. A stale tick (older than twice the refresh interval) quotes nothing.
//  2. Quotes are centered on mid with a half-band of cfg.MinSpread, so the
//     quoted spread is 2x the configured minimum and never narrower than it,
//     even when the venue's own spread is. The bid rounds down and the ask
//     rounds up to the venue tick, which can only widen the band.
//  3. Size is cfg.OrderSize, reduced to what the relevant balance affords
//     after reserving cfg.BalanceFloor. A side whose affordable size rounds
//     to zero is not quoted.
func Evaluate(tick domain.Tick, bal domain.Balances, cfg domain.BandConfig, now time.Time) domain.DesiredQuotes {
	if tick.Timestamp.IsZero() || tick.Age(now) > 2*cfg.QuoteRefreshInterval {
		return domain.DesiredQuotes{}
	}
	if !tick.Mid.IsPositive() {
		return domain.DesiredQuotes{}
	}

	bidPx := roundDownToTick(tick.Mid.Mul(one.Sub(cfg.MinSpread)), cfg.TickSize)
	askPx := roundUpToTick(tick.Mid.Mul(one.Add(cfg.MinSpread)), cfg.TickSize)

	// Never emit a crossed or touching market: widen rather than cross.
	if bidPx.GreaterThanOrEqual(askPx) {
		bidPx = askPx.Sub(cfg.TickSize)
	}

	var desired domain.DesiredQuotes

	if inPriceRange(bidPx, cfg.TickSize) {
		if size := affordableSize(cfg.OrderSize, bal.QuoteAvailable.Sub(cfg.BalanceFloor), bidPx); size.IsPositive() {
			desired.Bid = &domain.QuoteTarget{Side: domain.SideBid, Price: bidPx, Size: size}
		}
	}
	if inPriceRange(askPx, cfg.TickSize) {
		if size := affordableSize(cfg.OrderSize, bal.BaseAvailable.Sub(cfg.BalanceFloor), one); size.IsPositive() {
			desired.Ask = &domain.QuoteTarget{Side: domain.SideAsk, Price: askPx, Size: size}
		}
	}

	return desired
}

// affordableSize caps want at what avail buys at the given unit cost,
// floor-rounded to two decimals so the venue never sees dust sizes.
func affordableSize(want, avail, unitCost decimal.Decimal) decimal.Decimal {
	if !avail.IsPositive() {
		return decimal.Zero
	}
	max := avail.Div(unitCost).RoundFloor(2)
	if want.GreaterThan(max) {
		return max
	}
	return want
}

// inPriceRange keeps quotes inside the venue's open interval (0, 1):
// outcome-token prices at or beyond the bounds are unfillable.
func inPriceRange(px, tick decimal.Decimal) bool {
	return px.GreaterThanOrEqual(tick) && px.LessThanOrEqual(one.Sub(tick))
}

func roundDownToTick(px, tick decimal.Decimal) decimal.Decimal {
	return px.Div(tick).Floor().Mul(tick)
}

func roundUpToTick(px, tick decimal.Decimal) decimal.Decimal {
	return px.Div(tick).Ceil().Mul(tick)
}
