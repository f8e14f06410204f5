package eventbus

import "time"

// Envelope wraps every published message with the fields spec.md §6
// mandates on the wire: {event_id, order_id?, timestamp} plus the
// event-specific payload. Field names are fixed per event type at
// first publication and never renamed (spec.md §6).
type Envelope struct {
	EventID   string      `json:"eventId"`
	EventType string      `json:"eventType"`
	OrderID   string      `json:"orderId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// --- order.* payloads ---

type OrderCreatedPayload struct {
	OrderID    string            `json:"orderId"`
	CustomerID string            `json:"customerId"`
	Lines      []OrderLinePayload `json:"lines"`
}

type OrderLinePayload struct {
	ItemID         string `json:"itemId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type OrderStatusChangedPayload struct {
	OrderID   string `json:"orderId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Actor     string `json:"actor"`
	Comment   string `json:"comment,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID          string `json:"orderId"`
	Reason           string `json:"reason"`
	InventoryWasHeld bool   `json:"inventoryWasHeld"`
}

type OrderShippedPayload struct {
	OrderID        string `json:"orderId"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"trackingNumber"`
}

type OrderDeliveredPayload struct {
	OrderID string `json:"orderId"`
}

type OrderReservationExpiredPayload struct {
	OrderID       string `json:"orderId"`
	ReservationID string `json:"reservationId"`
}

// --- inventory.* payloads ---

type InventoryReservedPayload struct {
	OrderID   string             `json:"orderId"`
	ExpiresAt time.Time          `json:"expiresAt"`
	Lines     []OrderLinePayload `json:"lines"`
}

type UnavailableLinePayload struct {
	ItemID        string `json:"itemId"`
	Requested     int    `json:"requested"`
	AvailableFree int    `json:"availableFree"`
}

type InventoryReservationFailedPayload struct {
	OrderID     string                   `json:"orderId"`
	Reason      string                   `json:"reason"`
	Unavailable []UnavailableLinePayload `json:"unavailable"`
}

type InventoryQuantityChangedPayload struct {
	ItemID       string `json:"itemId"`
	AvailableQty int    `json:"availableQty"`
	ReservedQty  int    `json:"reservedQty"`
}

type InventoryQuantityLowPayload struct {
	ItemID       string `json:"itemId"`
	FreeQty      int    `json:"freeQty"`
	ReorderLevel int    `json:"reorderLevel"`
}

// --- external collaborator payloads consumed by the core (spec.md §6) ---

type PaymentProcessedPayload struct {
	OrderID              string    `json:"orderId"`
	Success              bool      `json:"success"`
	Method               string    `json:"method"`
	TransactionReference string    `json:"transactionReference"`
	FailureReason        string    `json:"failureReason,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

type DeliveryConfirmedPayload struct {
	OrderID     string    `json:"orderId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type ShippingRateCalculatedPayload struct {
	OrderID               string     `json:"orderId"`
	ShippingCostCents     int64      `json:"shippingCostCents"`
	ShippingMethod        string     `json:"shippingMethod"`
	EstimatedDeliveryDate *time.Time `json:"estimatedDeliveryDate,omitempty"`
	TrackingNumber        string     `json:"trackingNumber,omitempty"`
	Carrier               string     `json:"carrier,omitempty"`
}
