// Package eventbus implements the Event Bus Adapter (spec.md §4.E): a
// topic-exchange abstraction over a durable broker, configured by
// host/port/username/password/virtual host/exchange name. Grounded on
// github.com/rabbitmq/amqp091-go usage in the retrieval pack
// (Tim275-oms broker/rabbitmq.go, stock/amqp_consumer.go), generalized
// from a single direct exchange per event into one topic exchange
// routed by dotted keys.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hydr0g3nz/tcg_order_core/internal/metrics"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/idgen"
	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

// Config is the mandatory broker configuration from spec.md §6
// (BROKER_HOST, BROKER_PORT, BROKER_USERNAME, BROKER_PASSWORD,
// BROKER_VHOST, BROKER_EXCHANGE).
type Config struct {
	Host           string
	Port           string
	Username       string
	Password       string
	VHost          string
	Exchange       string
	PublishTimeout time.Duration // default 10s, spec.md §5
}

func (c Config) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s", c.Username, c.Password, c.Host, c.Port, c.VHost)
}

// Publisher is the narrow dependency the Reservation Engine and Order
// Orchestrator take on the bus, so they can be tested against a fake
// without pulling in amqp091-go.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, orderID string, eventType string, payload interface{}) error
}

// Handler processes one delivered message. Returning nil acks;
// returning an error nacks, causing the broker to redeliver (spec.md
// §4.E). Handlers must be idempotent — the Bus only protects against
// redelivery of the exact same message id within the dedup window, not
// against a handler being re-invoked after a crash mid-processing.
type Handler func(ctx context.Context, msg Delivery) error

// Delivery is what a Handler sees: the envelope fields plus the raw
// payload bytes to unmarshal into the expected event-specific struct.
type Delivery struct {
	MessageID string
	OrderID   string
	EventType string
	Timestamp time.Time
	Payload   json.RawMessage
}

// Dedup records (message_id, order_id) pairs for the configured window
// and reports whether a delivery has already been processed (spec.md
// §4.E). SeenBefore and MarkSeen are split so a handler only counts as
// "processed" after it actually succeeds: a redelivery following a
// Nack must still reach the handler, not be swallowed as a duplicate.
type Dedup interface {
	// SeenBefore reports whether (messageID, orderID) was already
	// recorded within the window. Read-only — does not record anything.
	SeenBefore(ctx context.Context, messageID, orderID string) (bool, error)
	// MarkSeen records (messageID, orderID) as processed. Called only
	// once the handler has returned nil.
	MarkSeen(ctx context.Context, messageID, orderID string) error
}

// Bus is the production Publisher+Subscriber backed by a single AMQP
// channel over a topic exchange.
type Bus struct {
	cfg     Config
	conn    *amqp.Connection
	channel *amqp.Channel
	dedup   Dedup
	ids     idgen.Generator
	log     logger.Logger
	metrics *metrics.Metrics
}

// Dial connects to the broker and declares the topic exchange
// (durable, matching spec.md §4.E "messages are persistent").
func Dial(cfg Config, dedup Dedup, ids idgen.Generator, log logger.Logger) (*Bus, error) {
	conn, err := amqp.Dial(cfg.url())
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "dial broker", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errkind.Wrap(errkind.Transient, "open channel", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errkind.Wrap(errkind.Transient, "declare exchange", err)
	}

	return &Bus{cfg: cfg, conn: conn, channel: ch, dedup: dedup, ids: ids, log: log}, nil
}

// WithMetrics attaches a metrics collector used to record publish and
// consume outcomes. Optional — a Bus with no metrics attached behaves
// identically, just without the Prometheus counters.
func (b *Bus) WithMetrics(m *metrics.Metrics) *Bus {
	b.metrics = m
	return b
}

func (b *Bus) Close() error {
	if err := b.channel.Close(); err != nil {
		b.log.Warn("error closing amqp channel", "error", err)
	}
	return b.conn.Close()
}

// Publish sends a persistent, JSON-encoded message carrying a UUID
// message id, a UTC timestamp, content-type application/json, and an
// EventType header (spec.md §4.E). Publish returns once the channel
// accepts the message or reports an error within PublishTimeout; the
// channel is not put in confirm mode, so broker acknowledgement is not
// awaited. A returned error means the event was not published.
func (b *Bus) Publish(ctx context.Context, routingKey string, orderID string, eventType string, payload interface{}) error {
	envelope := Envelope{
		EventID:   b.ids.NewID(),
		EventType: eventType,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return errkind.Wrap(errkind.Validation, "marshal event payload", err)
	}

	timeout := b.cfg.PublishTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	pubCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = b.channel.PublishWithContext(pubCtx, b.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		MessageId:    envelope.EventID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    envelope.Timestamp,
		Headers:      amqp.Table{"EventType": eventType},
		Body:         body,
	})
	if err != nil {
		b.log.Error("failed to publish event", "routing_key", routingKey, "event_type", eventType, "error", err)
		return errkind.Wrap(errkind.Transient, "publish event", err)
	}

	if b.metrics != nil {
		b.metrics.ObserveEventPublished(routingKey)
	}
	b.log.Debug("published event", "routing_key", routingKey, "event_type", eventType, "order_id", orderID, "message_id", envelope.EventID)
	return nil
}

// Subscribe binds an exclusive queue to the topic exchange with the
// given routing-key pattern (wildcard segments allowed, e.g.
// "inventory.*") and dispatches deliveries to handler serially per
// routing key (spec.md §4.E).
func (b *Bus) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	q, err := b.channel.QueueDeclare("", true, false, true, false, nil)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "declare queue", err)
	}
	if err := b.channel.QueueBind(q.Name, pattern, b.cfg.Exchange, false, nil); err != nil {
		return errkind.Wrap(errkind.Transient, "bind queue", err)
	}

	msgs, err := b.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "consume queue", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				b.dispatch(ctx, d, handler)
			}
		}
	}()

	return nil
}

func (b *Bus) dispatch(ctx context.Context, d amqp.Delivery, handler Handler) {
	start := time.Now()
	var envelope Envelope
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		b.log.Error("failed to unmarshal event envelope, dropping", "error", err)
		d.Nack(false, false)
		return
	}

	rawPayload, err := json.Marshal(envelope.Payload)
	if err != nil {
		b.log.Error("failed to re-marshal event payload", "error", err)
		d.Nack(false, false)
		return
	}

	if b.dedup != nil {
		seen, err := b.dedup.SeenBefore(ctx, envelope.EventID, envelope.OrderID)
		if err != nil {
			b.log.Error("dedup check failed, nacking for redelivery", "error", err)
			d.Nack(false, true)
			return
		}
		if seen {
			b.log.Debug("duplicate delivery short-circuited", "message_id", envelope.EventID, "order_id", envelope.OrderID)
			if b.metrics != nil {
				b.metrics.ObserveDedupHit(d.RoutingKey)
			}
			d.Ack(false)
			return
		}
	}

	msg := Delivery{
		MessageID: envelope.EventID,
		OrderID:   envelope.OrderID,
		EventType: envelope.EventType,
		Timestamp: envelope.Timestamp,
		Payload:   rawPayload,
	}

	if err := handler(ctx, msg); err != nil {
		b.log.Error("handler failed, nacking for redelivery", "event_type", envelope.EventType, "order_id", envelope.OrderID, "error", err)
		if b.metrics != nil {
			b.metrics.ObserveEventConsumed(d.RoutingKey, "nack", time.Since(start))
		}
		d.Nack(false, true)
		return
	}

	if b.dedup != nil {
		// The handler already succeeded; a failure to record the dedup
		// key is logged, not fatal, the same way
		// commitQuantityReservation treats a failed PutIdempotency.
		if err := b.dedup.MarkSeen(ctx, envelope.EventID, envelope.OrderID); err != nil {
			b.log.Warn("failed to record dedup key after successful handling", "message_id", envelope.EventID, "order_id", envelope.OrderID, "error", err)
		}
	}

	if b.metrics != nil {
		b.metrics.ObserveEventConsumed(d.RoutingKey, "ack", time.Since(start))
	}
	d.Ack(false)
}
