package orderbook

import "github.com/shopspring/decimal"

// Ledger custodies the assets of a market. The book calls it for every
// transfer and never holds funds itself. Implementations must fail with
// ErrInsufficientBalance rather than overdraw a pool.
type Ledger interface {
	Deposit(asset string, amount decimal.Decimal) error
	Withdraw(asset string, amount decimal.Decimal) (Bucket, error)
	Balance(asset string) decimal.Decimal
}
