package orderbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderID identifies a resting order. Zero means "no order".
type OrderID uint64

// Side of an order. Buy offers the quote asset for the base asset,
// Sell offers the base asset for the quote asset.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts "buy"/"bid" and "sell"/"ask", case-insensitively.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "buy", "bid":
		return Buy, nil
	case "sell", "ask":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// DefaultScale is the number of decimal places quantities are truncated
// to when dividing.
const DefaultScale int32 = 18

// MaxIntegerDigits bounds prices and amounts: values of 10^MaxIntegerDigits
// or more are rejected before matching.
const MaxIntegerDigits = 30

// Market describes the pair a book trades.
type Market struct {
	Name  string
	Base  string
	Quote string
	Scale int32
}

// Validate checks the market definition.
func (m Market) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("market name is empty")
	}
	if m.Base == "" || m.Quote == "" {
		return fmt.Errorf("market %s: base and quote assets must be set", m.Name)
	}
	if m.Base == m.Quote {
		return fmt.Errorf("market %s: base and quote must differ", m.Name)
	}
	if m.Scale < 0 || m.Scale > 36 {
		return fmt.Errorf("market %s: scale %d out of range [0, 36]", m.Name, m.Scale)
	}
	return nil
}

// Bucket is an amount of one named asset.
type Bucket struct {
	Asset  string
	Amount decimal.Decimal
}

// IsEmpty reports whether the bucket holds nothing.
func (b Bucket) IsEmpty() bool {
	return !b.Amount.IsPositive()
}

func (b Bucket) String() string {
	return b.Amount.String() + " " + b.Asset
}

// Order is a resting order record. Price and Side are fixed at creation;
// Amount and Filled change as the order is matched and claimed.
type Order struct {
	ID    OrderID
	Side  Side
	Price decimal.Decimal
	// Amount is the unfilled base quantity still resting.
	Amount decimal.Decimal
	// Filled is the base quantity matched but not yet claimed.
	Filled  decimal.Decimal
	Owner   string
	Created time.Time

	next OrderID
}

// OrderView is a read-only copy of an order.
type OrderView struct {
	ID     OrderID
	Side   Side
	Price  decimal.Decimal
	Amount decimal.Decimal
	Filled decimal.Decimal
	// Proceeds is what claiming now would pay out: Filled base for a buy,
	// Filled*Price quote for a sell.
	Proceeds Bucket
	Owner    string
	Created  time.Time
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (v OrderView) MarshalZerologObject(e *zerolog.Event) {
	e.Uint64("id", uint64(v.ID))
	e.Str("side", v.Side.String())
	e.Str("price", v.Price.String())
	e.Str("amount", v.Amount.String())
	e.Str("filled", v.Filled.String())
	e.Str("owner", v.Owner)
}

// Fill is one match between an incoming order and a resting one.
// Quantity is in base units; Quote = Quantity * Price.
type Fill struct {
	Maker      OrderID
	MakerOwner string
	TakerSide  Side
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Quote      decimal.Decimal
	// MakerDone is set when the fill consumed the resting order.
	MakerDone bool
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (f Fill) MarshalZerologObject(e *zerolog.Event) {
	e.Uint64("maker", uint64(f.Maker))
	e.Str("taker_side", f.TakerSide.String())
	e.Str("price", f.Price.String())
	e.Str("qty", f.Quantity.String())
	e.Bool("maker_done", f.MakerDone)
}

// Placement is the outcome of CreateOrder.
type Placement struct {
	// Proceeds is what the incoming order received from fills.
	Proceeds Bucket
	// Change is offered funds neither spent nor locked in a resting order.
	Change Bucket
	// OrderID is the resting remainder, zero if nothing rested.
	OrderID OrderID
	Fills   []Fill
}

// Rested reports whether a remainder was left on the book.
func (p Placement) Rested() bool {
	return p.OrderID != 0
}

// Settlement is the outcome of ClaimTokens and CancelOrder.
type Settlement struct {
	Proceeds  Bucket
	Principal Bucket
	// Order is the state after the call (before the record was burned).
	Order  OrderView
	Burned bool
}
