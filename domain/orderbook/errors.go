package orderbook

import "errors"

var (
	// ErrWrongAsset is returned when the offered funds are not denominated
	// in the asset the declared side pays with.
	ErrWrongAsset = errors.New("funds denominated in the wrong asset")
	// ErrOrderNotFound is returned for ids absent from the order table.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInsufficientBalance is returned by a Ledger when a pool cannot
	// cover a withdrawal. For the engine it means bookkeeping has drifted
	// from custody and the market must stop.
	ErrInsufficientBalance = errors.New("insufficient pool balance")
	// ErrInvalidPrice is returned for non-positive prices or prices finer
	// than the market scale.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidAmount is returned for negative amounts or amounts finer
	// than the market scale.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNotInChain is returned by OrderChain.Remove when the id is not
	// linked into the chain.
	ErrNotInChain = errors.New("order not in chain")
)
