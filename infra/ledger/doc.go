// Package ledger holds the settlement pools the order book settles
// through. Memory keeps balances in process; Pebble stages each engine
// step and commits it atomically to a pebble database; Discard accepts
// everything and is used when replaying steps that are already durable.
package ledger
