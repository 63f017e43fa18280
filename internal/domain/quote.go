package domain

import "github.com/shopspring/decimal"

// QuoteTarget is one side of the quote set the policy wants resting.
type QuoteTarget struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// DesiredQuotes is the policy's decision for one evaluation.
// A nil side means no-quote: the policy declined to quote that side.
type DesiredQuotes struct {
	Bid *QuoteTarget
	Ask *QuoteTarget
}

// Target returns the desired quote for the given side, nil for no-quote.
func (d DesiredQuotes) Target(side Side) *QuoteTarget {
	if side == SideBid {
		return d.Bid
	}
	return d.Ask
}
