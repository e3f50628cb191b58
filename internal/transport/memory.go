package transport

import (
	"context"
	"strings"
	"sync"
)

// MemoryBroker is an in-process Broker used by tests and local runs. It
// supports the single-token "*" wildcard the controller subscribes with.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs []*memorySub
}

type memorySub struct {
	broker  *MemoryBroker
	subject string
	handler Handler
	closed  bool
}

// NewMemoryBroker constructs an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

// Publish delivers data synchronously to every matching subscription.
func (b *MemoryBroker) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.RLock()
	subs := append([]*memorySub(nil), b.subs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed || !subjectMatches(sub.subject, subject) {
			continue
		}
		sub.handler(ctx, subject, data)
	}
	return nil
}

// Subscribe registers handler for a subject pattern.
func (b *MemoryBroker) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub := &memorySub{broker: b, subject: subject, handler: handler}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// Close drops all subscriptions.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		sub.closed = true
	}
	b.subs = nil
	b.mu.Unlock()
	return nil
}

func (s *memorySub) Unsubscribe() error {
	s.broker.mu.Lock()
	s.closed = true
	s.broker.mu.Unlock()
	return nil
}

func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pp := strings.Split(pattern, ".")
	sp := strings.Split(subject, ".")
	if len(pp) != len(sp) {
		return false
	}
	for i, token := range pp {
		if token != "*" && token != sp[i] {
			return false
		}
	}
	return true
}
