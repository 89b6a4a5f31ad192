// SPDX-License-Identifier: MIT
/*
Package transport holds the outbound telemetry sinks. Each transport
receives published snapshots through Send and encodes them in its own
wire format. Send must not block the publisher for long; transports
that talk to slow peers queue or drop.
*/
package transport

import "errors"

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport is a telemetry sink. Implementations are safe for concurrent
// use.
type Transport interface {
	Send(data any) error
	Close() error
}
