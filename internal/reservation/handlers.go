package reservation

import (
	"context"
	"encoding/json"

	"github.com/hydr0g3nz/tcg_order_core/internal/eventbus"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
)

// HandleOrderCancelled releases a reservation when its order is
// cancelled (spec.md §2: "triggering compensating release on (C)").
// Release is idempotent, so redelivery or a reservation that was
// already released/expired is a no-op success.
func (e *Engine) HandleOrderCancelled(ctx context.Context, msg eventbus.Delivery) error {
	var payload eventbus.OrderCancelledPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal order.cancelled", err)
	}
	err := e.Release(ctx, payload.OrderID)
	if errkind.KindOf(err) == errkind.NotFound {
		return nil
	}
	return err
}

// HandleOrderDelivered confirms a reservation's stock consumption once
// its order has been delivered, permanently decrementing AvailableQty
// (spec.md §8 scenario 1: "reservation Confirmed" follows the delivery
// event).
func (e *Engine) HandleOrderDelivered(ctx context.Context, msg eventbus.Delivery) error {
	var payload eventbus.OrderDeliveredPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errkind.Wrap(errkind.Validation, "unmarshal order.delivered", err)
	}
	err := e.Confirm(ctx, payload.OrderID)
	if errkind.KindOf(err) == errkind.Conflict {
		// The reservation is no longer Active (already confirmed by a
		// prior delivery, or released/expired) or an item quantity
		// check failed; treated as a no-op.
		return nil
	}
	return err
}
