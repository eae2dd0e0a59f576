package snapshot

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"chainbook/domain/orderbook"
)

const Version = 1

type Snapshot struct {
	Version int
	Seq     uint64
	Created time.Time
	Market  string
	LastID  uint64
	// Bids and Asks are in chain order.
	Bids []OrderEntry
	Asks []OrderEntry
	// Parked orders are fully matched and wait for a claim.
	Parked []OrderEntry
	// Balances of the in-memory ledger; empty when balances are durable.
	Balances map[string]decimal.Decimal
}

type OrderEntry struct {
	ID      uint64
	Side    uint8
	Price   decimal.Decimal
	Amount  decimal.Decimal
	Filled  decimal.Decimal
	Owner   string
	Created time.Time
}

// Capture copies the book at seq.
func Capture(seq uint64, book *orderbook.Book, balances map[string]decimal.Decimal) *Snapshot {
	st := book.Export()
	return &Snapshot{
		Version:  Version,
		Seq:      seq,
		Created:  time.Now(),
		Market:   book.Market().Name,
		LastID:   uint64(st.LastID),
		Bids:     entries(st.Bids),
		Asks:     entries(st.Asks),
		Parked:   entries(st.Parked),
		Balances: balances,
	}
}

// Restore loads the snapshot into an empty book.
func (s *Snapshot) Restore(book *orderbook.Book) error {
	if s.Version != Version {
		return fmt.Errorf("snapshot version %d, want %d", s.Version, Version)
	}
	if name := book.Market().Name; s.Market != name {
		return fmt.Errorf("snapshot of market %q loaded into %q", s.Market, name)
	}
	return book.Restore(orderbook.State{
		LastID: orderbook.OrderID(s.LastID),
		Bids:   orders(s.Bids),
		Asks:   orders(s.Asks),
		Parked: orders(s.Parked),
	})
}

// Len returns the number of orders in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Bids) + len(s.Asks) + len(s.Parked)
}

func entries(src []orderbook.Order) []OrderEntry {
	out := make([]OrderEntry, 0, len(src))
	for _, o := range src {
		out = append(out, OrderEntry{
			ID: uint64(o.ID), Side: uint8(o.Side),
			Price: o.Price, Amount: o.Amount, Filled: o.Filled,
			Owner: o.Owner, Created: o.Created,
		})
	}
	return out
}

func orders(src []OrderEntry) []orderbook.Order {
	out := make([]orderbook.Order, 0, len(src))
	for _, e := range src {
		out = append(out, orderbook.Order{
			ID: orderbook.OrderID(e.ID), Side: orderbook.Side(e.Side),
			Price: e.Price, Amount: e.Amount, Filled: e.Filled,
			Owner: e.Owner, Created: e.Created,
		})
	}
	return out
}
