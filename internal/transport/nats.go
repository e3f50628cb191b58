package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBroker implements Broker on a core NATS connection. Core publish is
// at-most-once by design; delivery tracking lives in the command ledger,
// not here.
type NATSBroker struct {
	nc *nats.Conn
}

// ConnectNATS dials the broker and returns a NATSBroker. name shows up in
// NATS monitoring. Reconnects forever; a controller outage must not require
// a restart once the broker comes back.
func ConnectNATS(url, name string) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.PingInterval(5*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSBroker{nc: nc}, nil
}

// Publish sends data to the subject.
func (b *NATSBroker) Publish(_ context.Context, subject string, data []byte) error {
	if b == nil || b.nc == nil {
		return fmt.Errorf("nats broker: not connected")
	}
	return b.nc.Publish(subject, data)
}

// Subscribe registers handler for a subject (wildcards allowed).
func (b *NATSBroker) Subscribe(subject string, handler Handler) (Subscription, error) {
	if b == nil || b.nc == nil {
		return nil, fmt.Errorf("nats broker: not connected")
	}
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(context.Background(), msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains the connection.
func (b *NATSBroker) Close() error {
	if b == nil || b.nc == nil {
		return nil
	}
	b.nc.Close()
	return nil
}
