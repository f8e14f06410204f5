package order

import (
	"context"
	"encoding/json"

	"github.com/hydr0g3nz/tcg_order_core/internal/eventbus"
	"github.com/hydr0g3nz/tcg_order_core/internal/order/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
)

// HandlePaymentProcessed implements the payment.processed event
// handler (spec.md §4.D). Idempotent: the Event Bus Adapter's dedup
// window already short-circuits a redelivered message id before this
// is invoked.
func (o *Orchestrator) HandlePaymentProcessed(ctx context.Context, msg eventbus.Delivery) error {
	var payload eventbus.PaymentProcessedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal payment.processed", err)
	}

	ord, err := o.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	from := ord.Status
	now := o.clock.Now()
	var entries []entity.HistoryEntry

	if payload.Success {
		ord.PaymentStatus = entity.PaymentPaid
		ord.PaymentTransactionRef = payload.TransactionReference
		ord.PaymentMethod = payload.Method

		if ord.Status == entity.StatusPending && entity.CanTransition(ord.Status, entity.StatusProcessing) {
			ord.Status = entity.StatusProcessing
			ord.LastUpdated = now
			entries = append(entries, entity.HistoryEntry{OrderID: ord.ID, Status: ord.Status, Timestamp: now, Actor: "payment-processor", Comment: "Payment processed"})
		}
		if ord.Status == entity.StatusProcessing && ord.InventoryStatus == entity.InventoryReserved && entity.CanTransition(ord.Status, entity.StatusReadyForShipment) {
			ord.Status = entity.StatusReadyForShipment
			ord.PackingDate = &now
			ord.LastUpdated = now
			entries = append(entries, entity.HistoryEntry{OrderID: ord.ID, Status: ord.Status, Timestamp: now, Actor: "payment-processor", Comment: "Inventory already reserved"})
		}
	} else {
		ord.PaymentStatus = entity.PaymentFailed
		ord.AddNote("payment failed: "+payload.FailureReason, now)
	}
	ord.LastUpdated = now

	if err := o.orders.UpdateCAS(ctx, ord, from); err != nil {
		return err
	}
	return o.persistTransitions(ctx, entries)
}

// HandleInventoryReserved implements the inventory.reserved event
// handler (spec.md §4.D).
func (o *Orchestrator) HandleInventoryReserved(ctx context.Context, msg eventbus.Delivery) error {
	var payload eventbus.InventoryReservedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal inventory.reserved", err)
	}

	ord, err := o.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	from := ord.Status
	now := o.clock.Now()
	var entries []entity.HistoryEntry

	ord.InventoryStatus = entity.InventoryReserved
	expiresAt := payload.ExpiresAt
	ord.ReservationExpiry = &expiresAt

	if ord.PaymentStatus == entity.PaymentPaid && ord.Status == entity.StatusProcessing && entity.CanTransition(ord.Status, entity.StatusReadyForShipment) {
		ord.Status = entity.StatusReadyForShipment
		ord.PackingDate = &now
		entries = append(entries, entity.HistoryEntry{OrderID: ord.ID, Status: ord.Status, Timestamp: now, Actor: "inventory-engine", Comment: "Inventory reserved"})
	}
	ord.LastUpdated = now

	if err := o.orders.UpdateCAS(ctx, ord, from); err != nil {
		return err
	}
	return o.persistTransitions(ctx, entries)
}

// HandleInventoryReservationFailed implements the
// inventory.reservation.failed event handler (spec.md §4.D).
func (o *Orchestrator) HandleInventoryReservationFailed(ctx context.Context, msg eventbus.Delivery) error {
	var payload eventbus.InventoryReservationFailedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal inventory.reservation.failed", err)
	}

	ord, err := o.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	from := ord.Status
	now := o.clock.Now()
	var entries []entity.HistoryEntry

	ord.InventoryStatus = entity.InventoryFailed
	ord.AddNote(unavailableNote(payload), now)

	if entity.CanTransition(ord.Status, entity.StatusOnHold) {
		ord.Status = entity.StatusOnHold
		entries = append(entries, entity.HistoryEntry{OrderID: ord.ID, Status: ord.Status, Timestamp: now, Actor: "inventory-engine", Comment: "Reservation failed: " + payload.Reason})
	}
	ord.LastUpdated = now

	if err := o.orders.UpdateCAS(ctx, ord, from); err != nil {
		return err
	}
	return o.persistTransitions(ctx, entries)
}

// HandleShippingRateCalculated implements the
// shipping.rate.calculated event handler (spec.md §4.D).
func (o *Orchestrator) HandleShippingRateCalculated(ctx context.Context, msg eventbus.Delivery) error {
	var payload eventbus.ShippingRateCalculatedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal shipping.rate.calculated", err)
	}

	ord, err := o.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	from := ord.Status
	now := o.clock.Now()
	var entries []entity.HistoryEntry

	ord.Shipping = &entity.ShippingBlock{
		Carrier:               payload.Carrier,
		TrackingNumber:        payload.TrackingNumber,
		Method:                payload.ShippingMethod,
		CostCents:             money.Cents(payload.ShippingCostCents),
		EstimatedDeliveryDate: payload.EstimatedDeliveryDate,
	}
	ord.ShippingCents = money.Cents(payload.ShippingCostCents)
	ord.TotalCents = ord.SubtotalCents + ord.TaxCents + ord.ShippingCents

	canShip := ord.Status == entity.StatusReadyForShipment || ord.Status == entity.StatusProcessing
	if payload.TrackingNumber != "" && canShip && entity.CanTransition(ord.Status, entity.StatusShipped) {
		ord.Status = entity.StatusShipped
		ord.ShippingDate = &now
		entries = append(entries, entity.HistoryEntry{OrderID: ord.ID, Status: ord.Status, Timestamp: now, Actor: "shipping-calculator", Comment: "Shipped via " + payload.Carrier})
	}
	ord.LastUpdated = now

	if err := o.orders.UpdateCAS(ctx, ord, from); err != nil {
		return err
	}
	if err := o.persistTransitions(ctx, entries); err != nil {
		return err
	}
	if ord.Status == entity.StatusShipped {
		if err := o.publisher.Publish(ctx, eventbus.RoutingOrderShipped, ord.ID, eventbus.RoutingOrderShipped, eventbus.OrderShippedPayload{
			OrderID:        ord.ID,
			Carrier:        payload.Carrier,
			TrackingNumber: payload.TrackingNumber,
		}); err != nil {
			o.log.Error("failed to publish order.shipped", "order_id", ord.ID, "error", err)
		}
	}
	return nil
}

// HandleDeliveryConfirmed advances a Shipped order to Delivered and
// emits order.delivered, which the Reservation Engine consumes to run
// confirm() (spec.md §8 scenario 1's final transition).
func (o *Orchestrator) HandleDeliveryConfirmed(ctx context.Context, msg eventbus.Delivery) error {
	var payload eventbus.DeliveryConfirmedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal delivery.confirmed", err)
	}

	ord, err := o.orders.Get(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if ord.Status != entity.StatusShipped {
		o.log.Debug("ignoring delivery.confirmed for order not in shipped state", "order_id", ord.ID, "status", ord.Status)
		return nil
	}

	from := ord.Status
	now := o.clock.Now()
	ord.Status = entity.StatusDelivered
	ord.DeliveryDate = &now
	ord.LastUpdated = now

	if err := o.orders.UpdateCAS(ctx, ord, from); err != nil {
		return err
	}
	if err := o.orders.AppendHistory(ctx, entity.HistoryEntry{OrderID: ord.ID, Status: ord.Status, Timestamp: now, Actor: "shipping-carrier", Comment: "Delivered"}); err != nil {
		o.log.Error("failed to append order history", "order_id", ord.ID, "error", err)
	}

	if err := o.publisher.Publish(ctx, eventbus.RoutingOrderDelivered, ord.ID, eventbus.RoutingOrderDelivered, eventbus.OrderDeliveredPayload{OrderID: ord.ID}); err != nil {
		o.log.Error("failed to publish order.delivered", "order_id", ord.ID, "error", err)
	}
	return nil
}

func (o *Orchestrator) persistTransitions(ctx context.Context, entries []entity.HistoryEntry) error {
	for _, e := range entries {
		if err := o.orders.AppendHistory(ctx, e); err != nil {
			o.log.Error("failed to append order history", "order_id", e.OrderID, "error", err)
		}
	}
	for _, e := range entries {
		if err := o.publisher.Publish(ctx, eventbus.RoutingOrderStatusChanged, e.OrderID, eventbus.RoutingOrderStatusChanged, eventbus.OrderStatusChangedPayload{
			OrderID: e.OrderID,
			To:      string(e.Status),
			Actor:   e.Actor,
			Comment: e.Comment,
		}); err != nil {
			o.log.Error("failed to publish order.status.changed", "order_id", e.OrderID, "error", err)
		}
	}
	return nil
}

func unavailableNote(payload eventbus.InventoryReservationFailedPayload) string {
	note := "inventory reservation failed: " + payload.Reason
	for _, u := range payload.Unavailable {
		note += "; item=" + u.ItemID
	}
	return note
}
