package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"chainbook/domain/orderbook"
)

var _ orderbook.Ledger = (*Memory)(nil)

// Memory is an in-process ledger. Besides balances it keeps running
// deposit and withdrawal totals per asset for audits.
type Memory struct {
	mtx       sync.Mutex
	balances  map[string]decimal.Decimal
	deposited map[string]decimal.Decimal
	withdrawn map[string]decimal.Decimal
}

func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[string]decimal.Decimal),
		deposited: make(map[string]decimal.Decimal),
		withdrawn: make(map[string]decimal.Decimal),
	}
}

func (m *Memory) Deposit(asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: deposit %s %s", orderbook.ErrInvalidAmount, amount, asset)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.balances[asset] = m.balances[asset].Add(amount)
	m.deposited[asset] = m.deposited[asset].Add(amount)
	return nil
}

func (m *Memory) Withdraw(asset string, amount decimal.Decimal) (orderbook.Bucket, error) {
	if amount.IsNegative() {
		return orderbook.Bucket{}, fmt.Errorf("%w: withdraw %s %s", orderbook.ErrInvalidAmount, amount, asset)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()

	bal := m.balances[asset]
	if bal.LessThan(amount) {
		return orderbook.Bucket{}, fmt.Errorf("%w: %s pool holds %s, withdraw %s",
			orderbook.ErrInsufficientBalance, asset, bal, amount)
	}
	m.balances[asset] = bal.Sub(amount)
	m.withdrawn[asset] = m.withdrawn[asset].Add(amount)
	return orderbook.Bucket{Asset: asset, Amount: amount}, nil
}

func (m *Memory) Balance(asset string) decimal.Decimal {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.balances[asset]
}

// Totals returns everything ever deposited into and withdrawn from the
// asset's pool.
func (m *Memory) Totals(asset string) (deposited, withdrawn decimal.Decimal) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.deposited[asset], m.withdrawn[asset]
}

// Balances returns a copy of all pool balances.
func (m *Memory) Balances() map[string]decimal.Decimal {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return copyBalances(m.balances)
}

// Restore replaces the balances, e.g. from a snapshot. Totals restart at
// the restored balances.
func (m *Memory) Restore(balances map[string]decimal.Decimal) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.balances = copyBalances(balances)
	m.deposited = copyBalances(balances)
	m.withdrawn = make(map[string]decimal.Decimal)
}

func copyBalances(src map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
