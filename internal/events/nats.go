package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Connect dials NATS with automatic reconnection. Extra options (e.g.
// disconnect/reconnect handlers) are appended to the defaults.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name("stockscan"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON-encoded events to NATS subjects named after
// the topic (STOCKSCAN_NATS_URL).
type NATSPublisher struct {
	conn  *nats.Conn
	owned bool
}

// NewNATSPublisher connects to url and publishes on its own connection.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := Connect(url)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc, owned: true}, nil
}

// NewNATSPublisherConn publishes on an existing connection. Close leaves the
// connection open.
func NewNATSPublisherConn(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: nc}
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(topic, data)
}

func (p *NATSPublisher) Close() error {
	if p.owned {
		p.conn.Close()
	}
	return nil
}

// subscriberBuffer is how many undelivered messages a subscription holds
// before new ones are dropped.
const subscriberBuffer = 64

// NATSSubscriber reads events back from NATS. Topic patterns map directly
// onto NATS subject wildcards.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe opens one NATS subscription per pattern. A message matching
// several overlapping patterns is delivered once per pattern.
func (s *NATSSubscriber) Subscribe(ctx context.Context, patterns ...string) (<-chan Message, error) {
	if len(patterns) == 0 {
		patterns = []string{AllTopics}
	}

	out := make(chan Message, subscriberBuffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	deliver := func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- Message{Topic: msg.Subject, Data: msg.Data}:
		default:
		}
	}

	subs := make([]*nats.Subscription, 0, len(patterns))
	unsubscribe := func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}
	for _, p := range patterns {
		sub, err := s.conn.Subscribe(p, deliver)
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("subscribing to %s: %w", p, err)
		}
		subs = append(subs, sub)
	}
	// Subscriptions must reach the server before the caller relies on them.
	if err := s.conn.Flush(); err != nil {
		unsubscribe()
		return nil, fmt.Errorf("flushing subscriptions: %w", err)
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
