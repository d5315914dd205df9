package events

import "context"

// Message is one event read back from the bus. Topic is the concrete
// subject it was published on, even when it arrived through a wildcard.
type Message struct {
	Topic string
	Data  []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers events matching any of patterns until ctx is done,
	// then closes the channel. No patterns means every stock topic.
	Subscribe(ctx context.Context, patterns ...string) (<-chan Message, error)
	Close() error
}
