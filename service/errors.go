package service

import "errors"

var (
	// ErrNotOwner is returned when a caller cancels or claims an order it
	// did not create.
	ErrNotOwner = errors.New("caller does not own the order")
	// ErrHalted is returned by every call to a market that hit a fatal
	// settlement or persistence error.
	ErrHalted = errors.New("market halted")
	// ErrUnknownMarket is returned for market names the exchange does not
	// trade.
	ErrUnknownMarket = errors.New("unknown market")
)
