package ledger

import (
	"github.com/shopspring/decimal"

	"chainbook/domain/orderbook"
)

var _ orderbook.Ledger = Discard{}

// Discard accepts every transfer without keeping balances.
type Discard struct{}

func (Discard) Deposit(string, decimal.Decimal) error { return nil }

func (Discard) Withdraw(asset string, amount decimal.Decimal) (orderbook.Bucket, error) {
	return orderbook.Bucket{Asset: asset, Amount: amount}, nil
}

func (Discard) Balance(string) decimal.Decimal { return decimal.Zero }
