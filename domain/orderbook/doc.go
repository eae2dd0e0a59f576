// Package orderbook implements the limit order book matching engine for a
// single two-asset market.
//
// Resting orders live in an arena keyed by OrderID. Each side keeps a
// singly-linked OrderChain through that arena, ordered by price priority
// (bids descending, asks ascending) and by arrival inside a price. Incoming
// orders walk the opposing chain from its head, fill at the resting price,
// and any remainder rests on its own side.
//
// The book never holds assets. Every transfer is a call into a Ledger that
// custodies the base and quote pools. A Book is not safe for concurrent
// use; callers serialize access per market.
package orderbook
