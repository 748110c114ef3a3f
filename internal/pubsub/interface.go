package pubsub

import "context"

// Message is a raw bus message. Decoding (topic parse, envelope parse)
// happens at the consumer so each failure mode is handled in isolation.
type Message struct {
	Topic string
	Data  []byte
}

// Bus is the publish/subscribe transport decoupling producers from
// per-instance local delivery. Implementations must be safe for concurrent
// use from multiple goroutines.
type Bus interface {
	// Publish sends data to a topic. Per-topic publish order from a single
	// caller is preserved by the underlying transport.
	Publish(ctx context.Context, topic string, data []byte) error

	// SubscribePattern subscribes to all topics matching a glob pattern.
	// The returned channel is closed when the subscription ends.
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Message, error)

	Close() error
}
