// Package memory provides object reuse for hot-path records.
//
// The order book allocates an Order record for every resting order and
// releases it when the order is burned (fully settled or cancelled).
// Pool recycles those records.
package memory
