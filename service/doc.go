// Package service runs order books as markets: every mutating call is
// validated, journaled, applied to the book, settled against the ledger
// and published to the event outbox, one market step at a time.
//
// It is decoupled from network transports like gRPC.
package service
