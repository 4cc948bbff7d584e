package cache

import (
	"context"
	"time"
)

// ConnectionEvents receives connection lifecycle notifications from a
// Transport. Implementations must not block.
type ConnectionEvents interface {
	// OnConnect is called once a connection is established and usable.
	OnConnect()
	// OnError is called when an established connection fails.
	OnError(err error)
	// OnReconnecting is called before the transport waits to retry a failed
	// connection attempt.
	OnReconnecting(attempt int, delay time.Duration)
}

// Transport is the wire-level client used by Remote. Values are opaque
// bytes; encoding is handled by Remote's Codec.
type Transport interface {
	// Connect establishes a connection, retrying internally according to the
	// configured schedule. A nil return means OnConnect has been delivered.
	Connect(ctx context.Context, events ConnectionEvents) error
	// Get returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
