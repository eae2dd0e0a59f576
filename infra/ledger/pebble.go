package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	"chainbook/domain/orderbook"
)

// -------------------- Store --------------------

// PebbleStore is a pebble database holding the pools of any number of
// markets under ledger/<market>/.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the ledger database in dir. opts may be
// nil.
func OpenPebble(dir string, opts *pebble.Options) (*PebbleStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// Market loads the committed pools of one market.
func (s *PebbleStore) Market(name string) (*Pebble, error) {
	l := &Pebble{
		db:        s.db,
		market:    name,
		committed: make(map[string]decimal.Decimal),
		staged:    make(map[string]decimal.Decimal),
	}
	if err := l.load(); err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", name, err)
	}
	return l, nil
}

// -------------------- Market ledger --------------------

var _ orderbook.Ledger = (*Pebble)(nil)

// Pebble is the durable ledger of one market. Deposits and withdrawals
// are staged in memory until Commit writes them, together with the
// journal sequence of the step, in a single synced batch.
type Pebble struct {
	db     *pebble.DB
	market string

	mtx       sync.Mutex
	committed map[string]decimal.Decimal
	staged    map[string]decimal.Decimal
	applied   uint64
}

func (l *Pebble) Deposit(asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: deposit %s %s", orderbook.ErrInvalidAmount, amount, asset)
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()

	l.staged[asset] = l.balance(asset).Add(amount)
	return nil
}

func (l *Pebble) Withdraw(asset string, amount decimal.Decimal) (orderbook.Bucket, error) {
	if amount.IsNegative() {
		return orderbook.Bucket{}, fmt.Errorf("%w: withdraw %s %s", orderbook.ErrInvalidAmount, amount, asset)
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()

	bal := l.balance(asset)
	if bal.LessThan(amount) {
		return orderbook.Bucket{}, fmt.Errorf("%w: %s pool holds %s, withdraw %s",
			orderbook.ErrInsufficientBalance, asset, bal, amount)
	}
	l.staged[asset] = bal.Sub(amount)
	return orderbook.Bucket{Asset: asset, Amount: amount}, nil
}

func (l *Pebble) Balance(asset string) decimal.Decimal {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.balance(asset)
}

func (l *Pebble) balance(asset string) decimal.Decimal {
	if v, ok := l.staged[asset]; ok {
		return v
	}
	return l.committed[asset]
}

// Balances returns the committed balances.
func (l *Pebble) Balances() map[string]decimal.Decimal {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return copyBalances(l.committed)
}

// AppliedSeq is the journal sequence of the last committed step.
func (l *Pebble) AppliedSeq() uint64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.applied
}

// Commit makes the staged step durable and records seq as applied.
func (l *Pebble) Commit(seq uint64) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	for asset, bal := range l.staged {
		if err := b.Set(l.balanceKey(asset), []byte(bal.String()), nil); err != nil {
			return err
		}
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	if err := b.Set(l.appliedKey(), seqBuf[:], nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit ledger %s step %d: %w", l.market, seq, err)
	}

	for asset, bal := range l.staged {
		l.committed[asset] = bal
	}
	l.staged = make(map[string]decimal.Decimal)
	l.applied = seq
	return nil
}

// Discard drops the staged step.
func (l *Pebble) Discard() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.staged = make(map[string]decimal.Decimal)
}

func (l *Pebble) load() error {
	prefix := l.balancePrefix()
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixEnd([]byte(prefix)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		asset := strings.TrimPrefix(string(iter.Key()), prefix)
		bal, err := decimal.NewFromString(string(iter.Value()))
		if err != nil {
			return fmt.Errorf("balance of %s: %w", asset, err)
		}
		l.committed[asset] = bal
	}
	if err := iter.Error(); err != nil {
		return err
	}

	val, closer, err := l.db.Get(l.appliedKey())
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	defer closer.Close()
	if len(val) != 8 {
		return fmt.Errorf("applied seq: bad length %d", len(val))
	}
	l.applied = binary.BigEndian.Uint64(val)
	return nil
}

// -------------------- Helpers --------------------

func (l *Pebble) balancePrefix() string {
	return "ledger/" + l.market + "/balance/"
}

func (l *Pebble) balanceKey(asset string) []byte {
	return []byte(l.balancePrefix() + asset)
}

func (l *Pebble) appliedKey() []byte {
	return []byte("ledger/" + l.market + "/applied")
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
