// Package grpcserver exposes an Exchange over gRPC as the service
// chainbook.v1.Engine. Messages are plain Go structs written in protobuf
// wire format by a codec registered under the content-subtype
// "protowire"; the service descriptor is declared by hand.
package grpcserver
