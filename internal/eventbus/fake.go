package eventbus

import (
	"context"
	"sync"
)

// FakePublisher is an in-memory Publisher used by reservation/order
// engine tests so they can assert on emitted events without a live
// broker.
type FakePublisher struct {
	mu        sync.Mutex
	Published []PublishedEvent
}

type PublishedEvent struct {
	RoutingKey string
	OrderID    string
	EventType  string
	Payload    interface{}
}

func (f *FakePublisher) Publish(ctx context.Context, routingKey string, orderID string, eventType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, PublishedEvent{RoutingKey: routingKey, OrderID: orderID, EventType: eventType, Payload: payload})
	return nil
}

func (f *FakePublisher) Last() (PublishedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Published) == 0 {
		return PublishedEvent{}, false
	}
	return f.Published[len(f.Published)-1], true
}

// InMemoryDedup is a map-backed Dedup for tests.
type InMemoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewInMemoryDedup() *InMemoryDedup {
	return &InMemoryDedup{seen: make(map[string]bool)}
}

func (d *InMemoryDedup) SeenBefore(ctx context.Context, messageID, orderID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[messageID+":"+orderID], nil
}

// MarkSeen records (messageID, orderID) as processed; called only
// after the handler has returned nil.
func (d *InMemoryDedup) MarkSeen(ctx context.Context, messageID, orderID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[messageID+":"+orderID] = true
	return nil
}
