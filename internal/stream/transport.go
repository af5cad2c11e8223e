package stream

import "context"

// Transport carries raw frames between the client and the telemetry
// producer. Implementations own reconnect/backoff policy; the channel's
// job is purely to interpret frames once connected.
type Transport interface {
	// Connect establishes the underlying connection.
	Connect(ctx context.Context) error

	// Send transmits a raw payload to the producer (subscriptions, route
	// requests). Only valid while connected.
	Send(ctx context.Context, payload []byte) error

	// Frames returns the channel on which received payloads are
	// delivered, in arrival order. The channel is closed when the
	// transport disconnects.
	Frames() <-chan []byte

	// Close tears the connection down. Must be idempotent.
	Close() error
}
