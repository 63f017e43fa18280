package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BandConfig is the immutable quoting policy for one engine instance.
// MinSpread is the fractional half-band applied around mid; TickSize is the
// venue price increment quotes are rounded to.
type BandConfig struct {
	AssetID              string
	MarketAddress        string
	MinSpread            decimal.Decimal
	TickSize             decimal.Decimal
	OrderSize            decimal.Decimal
	BalanceFloor         decimal.Decimal
	QuoteRefreshInterval time.Duration
	MaxOrderAge          time.Duration
	PriceEpsilon         decimal.Decimal
	SizeEpsilon          decimal.Decimal
}

// Validate checks the band parameters for internal consistency.
func (c BandConfig) Validate() error {
	if c.AssetID == "" {
		return fmt.Errorf("band config: asset id is required")
	}
	if !c.MinSpread.IsPositive() {
		return fmt.Errorf("band config: min spread must be positive, got %s", c.MinSpread)
	}
	if !c.TickSize.IsPositive() {
		return fmt.Errorf("band config: tick size must be positive, got %s", c.TickSize)
	}
	if !c.OrderSize.IsPositive() {
		return fmt.Errorf("band config: order size must be positive, got %s", c.OrderSize)
	}
	if c.BalanceFloor.IsNegative() {
		return fmt.Errorf("band config: balance floor must not be negative, got %s", c.BalanceFloor)
	}
	if c.QuoteRefreshInterval <= 0 {
		return fmt.Errorf("band config: quote refresh interval must be positive")
	}
	if c.MaxOrderAge <= 0 {
		return fmt.Errorf("band config: max order age must be positive")
	}
	return nil
}
