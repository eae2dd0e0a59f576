// Package snapshot persists the contents of an order book at a journal
// sequence so that startup only replays the journal tail. Snapshots are
// gob-encoded and replaced atomically.
package snapshot
