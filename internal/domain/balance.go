package domain

import "github.com/shopspring/decimal"

// Balances is a point-in-time snapshot of the account, copy-on-read.
// BaseAvailable is the outcome token balance, QuoteAvailable the collateral.
type Balances struct {
	BaseAvailable  decimal.Decimal `json:"base_available"`
	QuoteAvailable decimal.Decimal `json:"quote_available"`
}
