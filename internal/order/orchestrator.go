// Package order implements the Order Orchestrator (spec.md §4.D): the
// order state machine, its synchronous commands, and the idempotent
// asynchronous event handlers that advance orders in response to
// payment, inventory, and shipping collaborator events.
package order

import (
	"context"
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/eventbus"
	"github.com/hydr0g3nz/tcg_order_core/internal/metrics"
	"github.com/hydr0g3nz/tcg_order_core/internal/order/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/order/repository"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/clock"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/idgen"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

const DefaultTaxRateBasisPoints int64 = 825 // 8.25%, spec.md §4.D

// Line is one requested order line at create time.
type Line struct {
	ItemID         string
	Quantity       int
	UnitPriceCents money.Cents
	Condition      string
	DiscountCents  money.Cents
}

// Orchestrator owns the order aggregate's lifecycle. It depends only
// on repository.OrderRepository and eventbus.Publisher so it can be
// unit tested against fakes.
type Orchestrator struct {
	orders        repository.OrderRepository
	publisher     eventbus.Publisher
	clock         clock.Provider
	ids           idgen.Generator
	log           logger.Logger
	taxRateBps    int64
	metrics       *metrics.Metrics
}

func NewOrchestrator(orders repository.OrderRepository, publisher eventbus.Publisher, c clock.Provider, ids idgen.Generator, log logger.Logger, taxRateBps int64) *Orchestrator {
	if taxRateBps <= 0 {
		taxRateBps = DefaultTaxRateBasisPoints
	}
	return &Orchestrator{orders: orders, publisher: publisher, clock: c, ids: ids, log: log, taxRateBps: taxRateBps}
}

// WithMetrics attaches a metrics collector recording order creation and
// transition counts. Optional.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// CreateOrder validates and persists a new Pending order (spec.md
// §4.D).
func (o *Orchestrator) CreateOrder(ctx context.Context, customerID, shippingAddress, billingAddress string, lines []Line) (*entity.Order, error) {
	if customerID == "" {
		return nil, errkind.Validationf("customer id is required")
	}
	if len(lines) == 0 {
		return nil, errkind.Validationf("order must have at least one line")
	}

	var subtotal money.Cents
	items := make([]entity.OrderItem, len(lines))
	for i, l := range lines {
		if l.ItemID == "" {
			return nil, errkind.Validationf("line item id is required")
		}
		if l.Quantity < 1 {
			return nil, errkind.Validationf("line quantity must be >= 1, got %d for item %s", l.Quantity, l.ItemID)
		}
		if l.UnitPriceCents < 0 {
			return nil, errkind.Validationf("unit price must be >= 0, got %d for item %s", l.UnitPriceCents, l.ItemID)
		}
		items[i] = entity.OrderItem{
			ItemID:         l.ItemID,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			Condition:      l.Condition,
			DiscountCents:  l.DiscountCents,
		}
		subtotal += money.Cents(l.Quantity) * l.UnitPriceCents
	}

	tax := subtotal.ApplyBasisPoints(o.taxRateBps)
	now := o.clock.Now()

	ord := &entity.Order{
		ID:              o.ids.NewID(),
		CustomerID:      customerID,
		ShippingAddress: shippingAddress,
		BillingAddress:  billingAddress,
		Items:           items,
		SubtotalCents:   subtotal,
		TaxCents:        tax,
		ShippingCents:   0,
		TotalCents:      subtotal + tax,
		Status:          entity.StatusPending,
		PaymentStatus:   entity.PaymentPending,
		InventoryStatus: entity.InventoryPending,
		CreatedAt:       now,
		LastUpdated:     now,
	}

	if err := o.orders.Insert(ctx, ord); err != nil {
		return nil, err
	}
	if err := o.orders.AppendHistory(ctx, entity.HistoryEntry{
		OrderID:   ord.ID,
		Status:    entity.StatusPending,
		Timestamp: now,
		Actor:     customerID,
		Comment:   "Order created",
	}); err != nil {
		o.log.Error("failed to append order history", "order_id", ord.ID, "error", err)
	}

	payloadLines := make([]eventbus.OrderLinePayload, len(lines))
	for i, l := range lines {
		payloadLines[i] = eventbus.OrderLinePayload{ItemID: l.ItemID, Quantity: l.Quantity, UnitPriceCents: int64(l.UnitPriceCents)}
	}
	if err := o.publisher.Publish(ctx, eventbus.RoutingOrderCreated, ord.ID, eventbus.RoutingOrderCreated, eventbus.OrderCreatedPayload{
		OrderID:    ord.ID,
		CustomerID: customerID,
		Lines:      payloadLines,
	}); err != nil {
		o.log.Error("failed to publish order.created", "order_id", ord.ID, "error", err)
	}

	if o.metrics != nil {
		o.metrics.OrderCreatedTotal.Inc()
		o.metrics.ObserveOrderTransition(string(entity.StatusPending))
	}

	return ord, nil
}

func (o *Orchestrator) GetOrder(ctx context.Context, id string) (*entity.Order, []entity.HistoryEntry, error) {
	ord, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	hist, err := o.orders.History(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return ord, hist, nil
}

func (o *Orchestrator) ListOrdersForCustomer(ctx context.Context, customerID string, page, pageSize int) ([]*entity.Order, int64, error) {
	if page < 1 {
		return nil, 0, errkind.Validationf("page must be >= 1, got %d", page)
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, 0, errkind.Validationf("page_size must be between 1 and 100, got %d", pageSize)
	}
	return o.orders.ListForCustomer(ctx, customerID, page, pageSize)
}

// UpdateStatus performs an explicit, synchronous status transition
// (spec.md §4.D). Concurrent callers racing on the same order resolve
// via the store's compare-and-set: the loser gets back an
// errkind.Conflict and must re-read.
func (o *Orchestrator) UpdateStatus(ctx context.Context, id string, newStatus entity.Status, comment, actor string) (*entity.Order, error) {
	ord, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransition(ord.Status, newStatus) {
		return nil, errkind.Validationf("invalid transition from %s to %s", ord.Status, newStatus)
	}

	from := ord.Status
	now := o.clock.Now()
	applyDerivedTimestamps(ord, newStatus, now)
	ord.Status = newStatus
	ord.LastUpdated = now

	if err := o.orders.UpdateCAS(ctx, ord, from); err != nil {
		return nil, err
	}
	if err := o.orders.AppendHistory(ctx, entity.HistoryEntry{
		OrderID:   id,
		Status:    newStatus,
		Timestamp: now,
		Actor:     actor,
		Comment:   comment,
	}); err != nil {
		o.log.Error("failed to append order history", "order_id", id, "error", err)
	}

	if err := o.publisher.Publish(ctx, eventbus.RoutingOrderStatusChanged, id, eventbus.RoutingOrderStatusChanged, eventbus.OrderStatusChangedPayload{
		OrderID: id,
		From:    string(from),
		To:      string(newStatus),
		Actor:   actor,
		Comment: comment,
	}); err != nil {
		o.log.Error("failed to publish order.status.changed", "order_id", id, "error", err)
	}

	if o.metrics != nil {
		o.metrics.ObserveOrderTransition(string(newStatus))
	}

	return ord, nil
}

// CancelOrder blocks cancellation once an order has shipped (spec.md
// §4.D).
func (o *Orchestrator) CancelOrder(ctx context.Context, id, reason, actor string) (*entity.Order, error) {
	ord, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord.Status == entity.StatusShipped || ord.Status == entity.StatusDelivered {
		return nil, errkind.Conflictf("order %s cannot be cancelled from status %s", id, ord.Status)
	}
	if !entity.CanTransition(ord.Status, entity.StatusCancelled) {
		return nil, errkind.Validationf("invalid transition from %s to cancelled", ord.Status)
	}

	from := ord.Status
	now := o.clock.Now()
	inventoryWasHeld := ord.InventoryStatus == entity.InventoryReserved || ord.InventoryStatus == entity.InventoryConfirmed

	ord.Status = entity.StatusCancelled
	ord.CancellationReason = reason
	ord.CancellationDate = &now
	ord.LastUpdated = now

	if err := o.orders.UpdateCAS(ctx, ord, from); err != nil {
		return nil, err
	}
	if err := o.orders.AppendHistory(ctx, entity.HistoryEntry{
		OrderID:   id,
		Status:    entity.StatusCancelled,
		Timestamp: now,
		Actor:     actor,
		Comment:   reason,
	}); err != nil {
		o.log.Error("failed to append order history", "order_id", id, "error", err)
	}

	if err := o.publisher.Publish(ctx, eventbus.RoutingOrderCancelled, id, eventbus.RoutingOrderCancelled, eventbus.OrderCancelledPayload{
		OrderID:          id,
		Reason:           reason,
		InventoryWasHeld: inventoryWasHeld,
	}); err != nil {
		o.log.Error("failed to publish order.cancelled", "order_id", id, "error", err)
	}

	if o.metrics != nil {
		o.metrics.ObserveOrderTransition(string(entity.StatusCancelled))
	}

	return ord, nil
}

// applyDerivedTimestamps sets the timestamp field spec.md §4.D
// associates with entering a given status.
func applyDerivedTimestamps(ord *entity.Order, to entity.Status, now time.Time) {
	switch to {
	case entity.StatusReadyForShipment:
		ord.PackingDate = &now
	case entity.StatusShipped:
		ord.ShippingDate = &now
	case entity.StatusDelivered:
		ord.DeliveryDate = &now
	case entity.StatusCancelled:
		ord.CancellationDate = &now
	}
}
