package orderbook

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"chainbook/infra/memory"
	"chainbook/infra/sequence"
)

// Book is the order book of one market: the order arena, the two chains
// and the id counter. It is single-writer.
type Book struct {
	market Market
	ledger Ledger

	orders map[OrderID]*Order
	bids   *OrderChain
	asks   *OrderChain

	ids  *sequence.Sequencer
	pool *memory.Pool[Order]
	now  func() time.Time
}

// NewBook creates an empty book settling through ledger.
func NewBook(market Market, ledger Ledger) *Book {
	orders := make(map[OrderID]*Order)
	return &Book{
		market: market,
		ledger: ledger,
		orders: orders,
		bids:   newOrderChain(Buy, orders),
		asks:   newOrderChain(Sell, orders),
		ids:    sequence.New(0),
		pool:   memory.NewPool(func() *Order { return &Order{} }),
		now:    time.Now,
	}
}

// SetClock replaces the clock used to stamp new orders.
func (b *Book) SetClock(now func() time.Time) {
	b.now = now
}

func (b *Book) Market() Market { return b.market }

// Bids returns the bid chain (best = highest price).
func (b *Book) Bids() *OrderChain { return b.bids }

// Asks returns the ask chain (best = lowest price).
func (b *Book) Asks() *OrderChain { return b.asks }

// Len returns the number of order records, resting or awaiting a claim.
func (b *Book) Len() int { return len(b.orders) }

// LastID returns the last order id assigned.
func (b *Book) LastID() OrderID { return OrderID(b.ids.Current()) }

// ---- validation ----

// CheckCreate validates a CreateOrder call without touching any state.
func (b *Book) CheckCreate(side Side, funds Bucket, limit decimal.Decimal) error {
	if side != Buy && side != Sell {
		return fmt.Errorf("unknown side %d", side)
	}
	if want := b.payAsset(side); funds.Asset != want {
		return fmt.Errorf("%w: %s orders pay in %s, got %s", ErrWrongAsset, side, want, funds.Asset)
	}
	if !limit.IsPositive() || !b.representable(limit) {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, compact(limit))
	}
	if funds.Amount.IsNegative() || !b.representable(funds.Amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, compact(funds.Amount))
	}
	return nil
}

// ---- commands ----

// CreateOrder matches funds against the opposite chain up to limit and
// rests any remainder. Buy orders pay quote and receive base; sell orders
// pay base and receive quote. Zero funds is a no-op.
//
// Validation failures leave the book untouched. A ledger error during
// settlement leaves the book partially applied and must be treated as
// fatal by the caller.
func (b *Book) CreateOrder(owner string, side Side, funds Bucket, limit decimal.Decimal) (Placement, error) {
	if err := b.CheckCreate(side, funds, limit); err != nil {
		return Placement{}, err
	}

	p := Placement{
		Proceeds: Bucket{Asset: b.receiveAsset(side), Amount: decimal.Zero},
		Change:   Bucket{Asset: funds.Asset, Amount: decimal.Zero},
	}
	if funds.Amount.IsZero() {
		return p, nil
	}

	var (
		remaining decimal.Decimal
		err       error
	)
	if side == Buy {
		remaining, err = b.matchBuy(&p, funds.Amount, limit)
	} else {
		remaining, err = b.matchSell(&p, funds.Amount, limit)
	}
	if err != nil {
		return p, err
	}
	if !remaining.IsPositive() {
		return p, nil
	}
	return p, b.rest(&p, owner, side, remaining, limit)
}

// matchBuy spends quote funds against the ask chain and returns the
// unspent quote.
func (b *Book) matchBuy(p *Placement, funds, limit decimal.Decimal) (decimal.Decimal, error) {
	remaining := funds
	for remaining.IsPositive() {
		head := b.asks.Marketable(limit)
		if head == nil {
			break
		}

		qty := decimal.Min(b.quo(remaining, head.Price), head.Amount)
		if !qty.IsPositive() {
			// cannot afford one increment at the best ask
			break
		}
		cost := qty.Mul(head.Price)

		if err := b.ledger.Deposit(b.market.Quote, cost); err != nil {
			return remaining, fmt.Errorf("settle fill against order %d: %w", head.ID, err)
		}
		out, err := b.ledger.Withdraw(b.market.Base, qty)
		if err != nil {
			return remaining, fmt.Errorf("settle fill against order %d: %w", head.ID, err)
		}

		p.Proceeds.Amount = p.Proceeds.Amount.Add(out.Amount)
		remaining = remaining.Sub(cost)
		p.Fills = append(p.Fills, b.applyFill(b.asks, head, Buy, qty))
	}
	return remaining, nil
}

// matchSell sells base funds into the bid chain and returns the unsold
// base.
func (b *Book) matchSell(p *Placement, funds, limit decimal.Decimal) (decimal.Decimal, error) {
	remaining := funds
	for remaining.IsPositive() {
		head := b.bids.Marketable(limit)
		if head == nil {
			break
		}

		qty := decimal.Min(remaining, head.Amount)
		quote := qty.Mul(head.Price)

		if err := b.ledger.Deposit(b.market.Base, qty); err != nil {
			return remaining, fmt.Errorf("settle fill against order %d: %w", head.ID, err)
		}
		out, err := b.ledger.Withdraw(b.market.Quote, quote)
		if err != nil {
			return remaining, fmt.Errorf("settle fill against order %d: %w", head.ID, err)
		}

		p.Proceeds.Amount = p.Proceeds.Amount.Add(out.Amount)
		remaining = remaining.Sub(qty)
		p.Fills = append(p.Fills, b.applyFill(b.bids, head, Sell, qty))
	}
	return remaining, nil
}

// applyFill books qty against the resting maker and evicts it from the
// chain once exhausted. The record stays in the arena until claimed.
func (b *Book) applyFill(chain *OrderChain, maker *Order, taker Side, qty decimal.Decimal) Fill {
	maker.Amount = maker.Amount.Sub(qty)
	maker.Filled = maker.Filled.Add(qty)

	done := !maker.Amount.IsPositive()
	if done {
		chain.Pop()
	}
	return Fill{
		Maker:      maker.ID,
		MakerOwner: maker.Owner,
		TakerSide:  taker,
		Price:      maker.Price,
		Quantity:   qty,
		Quote:      qty.Mul(maker.Price),
		MakerDone:  done,
	}
}

// rest turns what is left of an incoming order into a resting order.
// A buy remainder rests as trunc(remaining/limit) base; quote that does
// not buy a whole increment comes back as change.
func (b *Book) rest(p *Placement, owner string, side Side, remaining, limit decimal.Decimal) error {
	size, locked := remaining, remaining
	if side == Buy {
		size = b.quo(remaining, limit)
		locked = size.Mul(limit)
	}
	if !size.IsPositive() {
		p.Change.Amount = remaining
		return nil
	}

	if err := b.ledger.Deposit(b.payAsset(side), locked); err != nil {
		return fmt.Errorf("lock %s principal: %w", side, err)
	}
	p.Change.Amount = remaining.Sub(locked)

	o := b.pool.Get()
	*o = Order{
		ID:      OrderID(b.ids.Next()),
		Side:    side,
		Price:   limit,
		Amount:  size,
		Filled:  decimal.Zero,
		Owner:   owner,
		Created: b.now(),
	}
	b.orders[o.ID] = o
	b.chain(side).Insert(o)

	p.OrderID = o.ID
	return nil
}

// ClaimTokens pays out an order's filled-but-unclaimed proceeds. With
// nothing filled it returns an empty bucket and changes nothing. A fully
// matched order is burned once claimed.
func (b *Book) ClaimTokens(id OrderID) (Settlement, error) {
	o, err := b.lookup(id)
	if err != nil {
		return Settlement{}, err
	}

	st := b.emptySettlement(o)
	if err := b.claim(o, &st); err != nil {
		return st, err
	}

	st.Order = b.view(o)
	if !o.Amount.IsPositive() {
		b.burn(o)
		st.Burned = true
	}
	return st, nil
}

// CancelOrder claims any fills, pulls the order out of its chain,
// returns the locked principal and burns the record.
func (b *Book) CancelOrder(id OrderID) (Settlement, error) {
	o, err := b.lookup(id)
	if err != nil {
		return Settlement{}, err
	}

	st := b.emptySettlement(o)
	if err := b.claim(o, &st); err != nil {
		return st, err
	}

	if o.Amount.IsPositive() {
		if err := b.chain(o.Side).Remove(o.ID); err != nil {
			panic(fmt.Sprintf("orderbook %s: live order missing from chain: %v", b.market.Name, err))
		}
		owed := b.principal(o)
		out, err := b.ledger.Withdraw(owed.Asset, owed.Amount)
		if err != nil {
			return st, fmt.Errorf("release principal of order %d: %w", o.ID, err)
		}
		st.Principal = out
		o.Amount = decimal.Zero
	}

	st.Order = b.view(o)
	b.burn(o)
	st.Burned = true
	return st, nil
}

func (b *Book) claim(o *Order, st *Settlement) error {
	if !o.Filled.IsPositive() {
		return nil
	}
	owed := b.proceeds(o)
	out, err := b.ledger.Withdraw(owed.Asset, owed.Amount)
	if err != nil {
		return fmt.Errorf("claim order %d: %w", o.ID, err)
	}
	st.Proceeds = out
	o.Filled = decimal.Zero
	return nil
}

func (b *Book) burn(o *Order) {
	delete(b.orders, o.ID)
	b.pool.Put(o)
}

// ---- queries ----

// GetOrder returns a copy of the order.
func (b *Book) GetOrder(id OrderID) (OrderView, error) {
	o, err := b.lookup(id)
	if err != nil {
		return OrderView{}, err
	}
	return b.view(o), nil
}

// Orders returns the resting orders of a side, best first.
func (b *Book) Orders(side Side) []OrderView {
	chain := b.chain(side)
	out := make([]OrderView, 0, chain.Len())
	chain.Walk(func(o *Order) bool {
		out = append(out, b.view(o))
		return true
	})
	return out
}

// BestBid returns the highest resting bid price.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	return headPrice(b.bids)
}

// BestAsk returns the lowest resting ask price.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	return headPrice(b.asks)
}

func headPrice(c *OrderChain) (decimal.Decimal, bool) {
	head := c.Head()
	if head == nil {
		return decimal.Zero, false
	}
	return head.Price, true
}

// Validate checks the book invariants. It walks the whole book and is
// meant for tests, snapshot restore and diagnostics.
func (b *Book) Validate() error {
	if err := b.bids.Validate(); err != nil {
		return err
	}
	if err := b.asks.Validate(); err != nil {
		return err
	}

	live := 0
	for id, o := range b.orders {
		if id != o.ID {
			return fmt.Errorf("order %d stored under id %d", o.ID, id)
		}
		switch {
		case o.Amount.IsPositive():
			live++
		case !o.Filled.IsPositive():
			return fmt.Errorf("order %d is settled but not burned", id)
		}
	}
	if n := b.bids.Len() + b.asks.Len(); n != live {
		return fmt.Errorf("%d live orders, %d linked", live, n)
	}

	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if okBid && okAsk && !bid.LessThan(ask) {
		return fmt.Errorf("book crossed: bid %s >= ask %s", bid, ask)
	}
	return nil
}

// ---- state export ----

// State is a copy of the book contents in chain order.
type State struct {
	LastID OrderID
	Bids   []Order
	Asks   []Order
	// Parked orders are fully matched but hold unclaimed fills.
	Parked []Order
}

// Export copies the book contents.
func (b *Book) Export() State {
	s := State{LastID: b.LastID()}
	b.bids.Walk(func(o *Order) bool {
		s.Bids = append(s.Bids, *o)
		return true
	})
	b.asks.Walk(func(o *Order) bool {
		s.Asks = append(s.Asks, *o)
		return true
	})
	for _, o := range b.orders {
		if !o.Amount.IsPositive() {
			s.Parked = append(s.Parked, *o)
		}
	}
	slices.SortFunc(s.Parked, func(x, y Order) int {
		switch {
		case x.ID < y.ID:
			return -1
		case x.ID > y.ID:
			return 1
		}
		return 0
	})
	return s
}

// Restore loads s into an empty book. Chain order is taken as given.
func (b *Book) Restore(s State) error {
	if len(b.orders) != 0 {
		return fmt.Errorf("restore into non-empty book (%d orders)", len(b.orders))
	}
	if err := b.restore(s); err != nil {
		b.reset()
		return fmt.Errorf("restore %s: %w", b.market.Name, err)
	}
	return nil
}

func (b *Book) restore(s State) error {
	bids, err := b.load(s.Bids, s.LastID)
	if err != nil {
		return err
	}
	asks, err := b.load(s.Asks, s.LastID)
	if err != nil {
		return err
	}
	if _, err := b.load(s.Parked, s.LastID); err != nil {
		return err
	}
	if err := b.bids.link(bids); err != nil {
		return err
	}
	if err := b.asks.link(asks); err != nil {
		return err
	}
	b.ids.Reset(uint64(s.LastID))
	return b.Validate()
}

func (b *Book) load(src []Order, lastID OrderID) ([]*Order, error) {
	out := make([]*Order, 0, len(src))
	for i := range src {
		if src[i].ID == 0 || src[i].ID > lastID {
			return nil, fmt.Errorf("order id %d outside (0, %d]", src[i].ID, lastID)
		}
		if _, dup := b.orders[src[i].ID]; dup {
			return nil, fmt.Errorf("duplicate order id %d", src[i].ID)
		}
		o := b.pool.Get()
		*o = src[i]
		o.next = 0
		b.orders[o.ID] = o
		out = append(out, o)
	}
	return out, nil
}

func (b *Book) reset() {
	for id := range b.orders {
		delete(b.orders, id)
	}
	b.bids.head, b.bids.length = 0, 0
	b.asks.head, b.asks.length = 0, 0
	b.ids.Reset(0)
}

// ---- helpers ----

func (b *Book) lookup(id OrderID) (*Order, error) {
	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return o, nil
}

func (b *Book) chain(side Side) *OrderChain {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// payAsset is the asset an order of side pays with and locks while resting.
func (b *Book) payAsset(side Side) string {
	if side == Buy {
		return b.market.Quote
	}
	return b.market.Base
}

// receiveAsset is the asset an order of side is paid in.
func (b *Book) receiveAsset(side Side) string {
	if side == Buy {
		return b.market.Base
	}
	return b.market.Quote
}

// proceeds is what the owner of o is owed for its unclaimed fills.
func (b *Book) proceeds(o *Order) Bucket {
	if o.Side == Buy {
		return Bucket{Asset: b.market.Base, Amount: o.Filled}
	}
	return Bucket{Asset: b.market.Quote, Amount: o.Filled.Mul(o.Price)}
}

// principal is what o still has locked in the ledger.
func (b *Book) principal(o *Order) Bucket {
	if o.Side == Buy {
		return Bucket{Asset: b.market.Quote, Amount: o.Amount.Mul(o.Price)}
	}
	return Bucket{Asset: b.market.Base, Amount: o.Amount}
}

func (b *Book) emptySettlement(o *Order) Settlement {
	return Settlement{
		Proceeds:  Bucket{Asset: b.receiveAsset(o.Side), Amount: decimal.Zero},
		Principal: Bucket{Asset: b.payAsset(o.Side), Amount: decimal.Zero},
	}
}

func (b *Book) view(o *Order) OrderView {
	return OrderView{
		ID:       o.ID,
		Side:     o.Side,
		Price:    o.Price,
		Amount:   o.Amount,
		Filled:   o.Filled,
		Proceeds: b.proceeds(o),
		Owner:    o.Owner,
		Created:  o.Created,
	}
}

// quo divides truncating toward zero at the market scale.
func (b *Book) quo(x, y decimal.Decimal) decimal.Decimal {
	q, _ := x.QuoRem(y, b.market.Scale)
	return q
}

// compact formats d without expanding its exponent.
func compact(d decimal.Decimal) string {
	if exp := d.Exponent(); exp > MaxIntegerDigits || exp < -MaxIntegerDigits {
		return fmt.Sprintf("%se%d", d.Coefficient(), exp)
	}
	return d.String()
}

// representable reports whether d fits the market: below
// 10^MaxIntegerDigits and no finer than its scale. The exponent is checked
// first so oversized inputs are refused without rescaling them.
func (b *Book) representable(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	if exp > MaxIntegerDigits || exp < -int64(b.market.Scale)-MaxIntegerDigits {
		return false
	}
	if int64(d.NumDigits())+exp > MaxIntegerDigits {
		return false
	}
	return d.Equal(d.Truncate(b.market.Scale))
}
