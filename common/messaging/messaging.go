// Package messaging provides broker-agnostic publish/subscribe abstractions
// used to announce alerts to other services.
package messaging

import (
	"context"
	"time"
)

// Message is a payload received from or sent to a broker.
type Message struct {
	Subject string
	Data    []byte
	// Reply is set for request/reply exchanges.
	Reply    string
	Metadata map[string]string
	// Timestamp is the local receive time; NATS core does not carry one.
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber receives messages on subjects.
type Subscriber interface {
	// Subscribe delivers every message to handler (fan-out).
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	// QueueSubscribe load-balances messages across members of queue.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber
	Drain() error
	IsConnected() bool
}
