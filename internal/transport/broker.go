package transport

import "context"

// Handler consumes one inbound message. Errors are the handler's to log;
// the broker never redelivers (at-most-once transport).
type Handler func(ctx context.Context, subject string, data []byte)

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// Broker is the minimal publish/subscribe surface the controller needs.
// Publish is fire-and-forget: a nil error means the message was handed to
// the transport, not that any device received it.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	Close() error
}
