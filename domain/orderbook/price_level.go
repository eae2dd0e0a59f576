package orderbook

import "github.com/shopspring/decimal"

// PriceLevel aggregates the resting orders at one price.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	Count  int
}

// Depth is the aggregated view of both sides, best levels first.
type Depth struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// Depth aggregates up to levels price levels per side. levels <= 0 means
// all of them.
func (b *Book) Depth(levels int) Depth {
	return Depth{
		Bids: aggregate(b.bids, levels),
		Asks: aggregate(b.asks, levels),
	}
}

// aggregate folds consecutive equal prices; the chain keeps them adjacent.
func aggregate(c *OrderChain, levels int) []PriceLevel {
	var out []PriceLevel
	c.Walk(func(o *Order) bool {
		if n := len(out); n > 0 && out[n-1].Price.Equal(o.Price) {
			out[n-1].Amount = out[n-1].Amount.Add(o.Amount)
			out[n-1].Count++
			return true
		}
		if levels > 0 && len(out) == levels {
			return false
		}
		out = append(out, PriceLevel{Price: o.Price, Amount: o.Amount, Count: 1})
		return true
	})
	return out
}
