package eventbus

// Routing keys used by the core (spec.md §4.E). Dotted segments allow
// wildcard subscription patterns ("order.*", "inventory.#").
const (
	RoutingOrderCreated            = "order.created"
	RoutingOrderStatusChanged      = "order.status.changed"
	RoutingOrderCancelled          = "order.cancelled"
	RoutingOrderShipped            = "order.shipped"
	RoutingOrderDelivered          = "order.delivered"
	RoutingOrderReservationExpired = "order.reservation.expired"

	RoutingInventoryReserved           = "inventory.reserved"
	RoutingInventoryReservationFailed  = "inventory.reservation.failed"
	RoutingInventoryQuantityChanged    = "inventory.quantity.changed"
	RoutingInventoryQuantityLow        = "inventory.quantity.low"

	RoutingPaymentProcessed        = "payment.processed"
	RoutingShippingRateCalculated  = "shipping.rate.calculated"

	// RoutingDeliveryConfirmed is the carrier-side delivery confirmation
	// that drives Shipped -> Delivered and the corresponding reservation
	// confirm() (spec.md §8 scenario 1's final transition; not itemized
	// among the named event handlers in §4.D, but required for that
	// scenario and for the Reservation Engine's confirm() to ever run).
	RoutingDeliveryConfirmed = "delivery.confirmed"
)
