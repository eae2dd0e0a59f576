// Package node assembles a chainbook process from its configuration: one
// journaled market per configured pair, the settlement ledger, the event
// outbox and its broadcaster, the snapshot job and the gRPC and metrics
// servers.
package node
