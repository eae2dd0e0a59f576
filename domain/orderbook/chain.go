package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderChain is one side's resting orders as a singly-linked list through
// the book's order arena. The head is the best-priced order; equal prices
// keep arrival order.
type OrderChain struct {
	side   Side
	orders map[OrderID]*Order

	head   OrderID
	length int
}

func newOrderChain(side Side, orders map[OrderID]*Order) *OrderChain {
	return &OrderChain{side: side, orders: orders}
}

// Side returns the side of the orders in the chain.
func (c *OrderChain) Side() Side { return c.side }

// Len returns the number of resting orders.
func (c *OrderChain) Len() int { return c.length }

// Head returns the best order, or nil if the chain is empty.
func (c *OrderChain) Head() *Order {
	if c.head == 0 {
		return nil
	}
	return c.orders[c.head]
}

// better reports whether price a has strictly higher priority than b on
// this side: higher for bids, lower for asks.
func (c *OrderChain) better(a, b decimal.Decimal) bool {
	if c.side == Buy {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// Insert links o at its priority position. An order that beats the head
// becomes the head without a scan; otherwise it goes after the last order
// whose price beats or ties its own.
func (c *OrderChain) Insert(o *Order) {
	head := c.Head()
	if head == nil || c.better(o.Price, head.Price) {
		o.next = c.head
		c.head = o.ID
		c.length++
		return
	}

	cur := head
	for cur.next != 0 {
		next := c.orders[cur.next]
		if c.better(o.Price, next.Price) {
			break
		}
		cur = next
	}
	o.next = cur.next
	cur.next = o.ID
	c.length++
}

// Marketable returns the head if an incoming order limited at limit can
// trade with it: for the bid chain head.Price >= limit, for the ask chain
// head.Price <= limit.
func (c *OrderChain) Marketable(limit decimal.Decimal) *Order {
	head := c.Head()
	if head == nil || c.better(limit, head.Price) {
		return nil
	}
	return head
}

// Pop unlinks and returns the head.
func (c *OrderChain) Pop() *Order {
	head := c.Head()
	if head == nil {
		return nil
	}
	c.head = head.next
	head.next = 0
	c.length--
	return head
}

// Remove splices the order with the given id out of the chain.
func (c *OrderChain) Remove(id OrderID) error {
	var prev *Order
	for cur := c.head; cur != 0; {
		o := c.orders[cur]
		if o.ID == id {
			if prev == nil {
				c.head = o.next
			} else {
				prev.next = o.next
			}
			o.next = 0
			c.length--
			return nil
		}
		prev = o
		cur = o.next
	}
	return fmt.Errorf("%w: %s order %d", ErrNotInChain, c.side, id)
}

// Walk visits orders best first until fn returns false.
func (c *OrderChain) Walk(fn func(*Order) bool) {
	for cur := c.head; cur != 0; {
		o := c.orders[cur]
		if !fn(o) {
			return
		}
		cur = o.next
	}
}

// link rebuilds the chain from orders already in priority order.
func (c *OrderChain) link(orders []*Order) error {
	c.head, c.length = 0, 0

	var prev *Order
	for _, o := range orders {
		if prev != nil && c.better(o.Price, prev.Price) {
			return fmt.Errorf("%s chain out of order at order %d", c.side, o.ID)
		}
		o.next = 0
		if prev == nil {
			c.head = o.ID
		} else {
			prev.next = o.ID
		}
		prev = o
		c.length++
	}
	return nil
}

// Validate checks the chain invariants: every link resolves to a live
// order of this side, prices follow priority, there are no cycles, and
// the cached length matches.
func (c *OrderChain) Validate() error {
	seen := make(map[OrderID]struct{}, c.length)
	var prev *Order
	for cur := c.head; cur != 0; {
		o, ok := c.orders[cur]
		if !ok {
			return fmt.Errorf("%s chain links to missing order %d", c.side, cur)
		}
		if _, dup := seen[cur]; dup {
			return fmt.Errorf("%s chain has a cycle at order %d", c.side, cur)
		}
		seen[cur] = struct{}{}
		if o.Side != c.side {
			return fmt.Errorf("%s chain holds %s order %d", c.side, o.Side, cur)
		}
		if !o.Amount.IsPositive() {
			return fmt.Errorf("%s chain holds exhausted order %d", c.side, cur)
		}
		if prev != nil && c.better(o.Price, prev.Price) {
			return fmt.Errorf("%s chain out of order at order %d", c.side, cur)
		}
		prev = o
		cur = o.next
	}
	if len(seen) != c.length {
		return fmt.Errorf("%s chain length %d, walked %d", c.side, c.length, len(seen))
	}
	return nil
}
