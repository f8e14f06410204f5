package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

// fakeAcknowledger lets dispatch's Ack/Nack calls be observed without a
// live broker connection.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acked    int
	nacked   int
	requeued []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked++
	f.requeued = append(f.requeued, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return nil
}

func newTestDelivery(t *testing.T, envelope Envelope, ack *fakeAcknowledger) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return amqp.Delivery{Acknowledger: ack, Body: body, RoutingKey: "order.test"}
}

// TestDispatchRedeliversAfterHandlerFailure guards against the dedup
// store recording a message as seen before its handler has actually
// succeeded: a Nack must still reach the handler again on redelivery,
// and only once the handler returns nil may a further (true) duplicate
// be short-circuited.
func TestDispatchRedeliversAfterHandlerFailure(t *testing.T) {
	bus := &Bus{dedup: NewInMemoryDedup(), log: logger.NewZapLogger()}
	envelope := Envelope{
		EventID:   "evt-1",
		EventType: "test.event",
		OrderID:   "order-1",
		Timestamp: time.Now(),
		Payload:   map[string]string{"k": "v"},
	}

	var calls int
	failOnce := func(ctx context.Context, msg Delivery) error {
		calls++
		if calls == 1 {
			return errors.New("transient failure")
		}
		return nil
	}

	ack1 := &fakeAcknowledger{}
	bus.dispatch(context.Background(), newTestDelivery(t, envelope, ack1), failOnce)
	if ack1.acked != 0 || ack1.nacked != 1 {
		t.Fatalf("expected nack with no ack on handler failure, got acked=%d nacked=%d", ack1.acked, ack1.nacked)
	}
	if calls != 1 {
		t.Fatalf("expected handler invoked once, got %d", calls)
	}

	// Redelivery of the exact same message must still reach the
	// handler — the first (failed) attempt must not have been recorded
	// as seen.
	ack2 := &fakeAcknowledger{}
	bus.dispatch(context.Background(), newTestDelivery(t, envelope, ack2), failOnce)
	if ack2.acked != 1 || ack2.nacked != 0 {
		t.Fatalf("expected ack with no nack on successful redelivery, got acked=%d nacked=%d", ack2.acked, ack2.nacked)
	}
	if calls != 2 {
		t.Fatalf("expected handler invoked again on redelivery, got %d calls", calls)
	}

	// A further delivery of the same message, now that the handler has
	// actually succeeded, is recognized as a duplicate and
	// short-circuited without invoking the handler.
	ack3 := &fakeAcknowledger{}
	bus.dispatch(context.Background(), newTestDelivery(t, envelope, ack3), failOnce)
	if ack3.acked != 1 || ack3.nacked != 0 {
		t.Fatalf("expected duplicate delivery to be acked, got acked=%d nacked=%d", ack3.acked, ack3.nacked)
	}
	if calls != 2 {
		t.Fatalf("expected handler NOT invoked for a delivery already recorded as seen, got %d calls", calls)
	}
}
