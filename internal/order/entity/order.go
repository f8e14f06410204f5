// Package entity holds the Order Store's domain types (spec.md §3,
// §4.D): the order state machine, its line items, and its append-only
// status history.
package entity

import (
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
)

// Status is a state in the order lifecycle graph (spec.md §4.D).
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusOnHold            Status = "on_hold"
	StatusReadyForShipment  Status = "ready_for_shipment"
	StatusShipped           Status = "shipped"
	StatusDelivered         Status = "delivered"
	StatusCancelled         Status = "cancelled"
)

// PaymentStatus tracks the payment side-channel independently of
// Status; Refunded only ever applies once Status is terminal.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// InventoryStatus mirrors the reservation engine's outcome for this
// order, as last reported by an inventory.* event.
type InventoryStatus string

const (
	InventoryPending   InventoryStatus = "pending"
	InventoryReserved  InventoryStatus = "reserved"
	InventoryConfirmed InventoryStatus = "confirmed"
	InventoryReleased  InventoryStatus = "released"
	InventoryFailed    InventoryStatus = "failed"
)

// transitions is the allowed-transition table from spec.md §4.D. A
// transition not present here fails with an invalid-transition error.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
		StatusOnHold:     true,
	},
	StatusProcessing: {
		StatusReadyForShipment: true,
		StatusOnHold:           true,
		StatusCancelled:        true,
	},
	StatusReadyForShipment: {
		StatusShipped:   true,
		StatusCancelled: true,
		StatusOnHold:    true,
	},
	StatusOnHold: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
}

// CanTransition reports whether to is reachable from from per the
// table above.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// IsTerminal reports whether status is a terminal order state
// (Delivered, Cancelled). Refunded is a payment-status-only change on
// an already-terminal order, never an order Status value itself.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// OrderItem is one purchased line, with price and condition frozen at
// order-creation time.
type OrderItem struct {
	ItemID         string      `json:"item_id" bson:"item_id"`
	Quantity       int         `json:"quantity" bson:"quantity"`
	UnitPriceCents money.Cents `json:"unit_price_cents" bson:"unit_price_cents"`
	Condition      string      `json:"condition,omitempty" bson:"condition,omitempty"`
	DiscountCents  money.Cents `json:"discount_cents,omitempty" bson:"discount_cents,omitempty"`
}

// ShippingBlock is the order's shipping information, populated by the
// shipping.rate.calculated event handler.
type ShippingBlock struct {
	Carrier               string     `json:"carrier,omitempty" bson:"carrier,omitempty"`
	TrackingNumber        string     `json:"tracking_number,omitempty" bson:"tracking_number,omitempty"`
	Method                string     `json:"method,omitempty" bson:"method,omitempty"`
	CostCents             money.Cents `json:"cost_cents" bson:"cost_cents"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty" bson:"estimated_delivery_date,omitempty"`
	ActualDeliveryDate    *time.Time `json:"actual_delivery_date,omitempty" bson:"actual_delivery_date,omitempty"`
}

// Note is one append-only free-text note (e.g. a payment failure
// reason, a structured unavailable-items summary).
type Note struct {
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Order is the Order Store's aggregate root (spec.md §3).
type Order struct {
	ID         string `json:"id" bson:"_id"`
	CustomerID string `json:"customer_id" bson:"customer_id"`

	ShippingAddress string `json:"shipping_address" bson:"shipping_address"`
	BillingAddress  string `json:"billing_address" bson:"billing_address"`

	Items []OrderItem `json:"items" bson:"items"`

	SubtotalCents money.Cents `json:"subtotal_cents" bson:"subtotal_cents"`
	TaxCents      money.Cents `json:"tax_cents" bson:"tax_cents"`
	ShippingCents money.Cents `json:"shipping_cents" bson:"shipping_cents"`
	TotalCents    money.Cents `json:"total_cents" bson:"total_cents"`

	Status          Status          `json:"status" bson:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status" bson:"payment_status"`
	InventoryStatus InventoryStatus `json:"inventory_status" bson:"inventory_status"`

	PaymentTransactionRef string `json:"payment_transaction_ref,omitempty" bson:"payment_transaction_ref,omitempty"`
	PaymentMethod         string `json:"payment_method,omitempty" bson:"payment_method,omitempty"`

	ReservationExpiry *time.Time     `json:"reservation_expiry,omitempty" bson:"reservation_expiry,omitempty"`
	Shipping          *ShippingBlock `json:"shipping,omitempty" bson:"shipping,omitempty"`

	CancellationReason string     `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	CancellationDate   *time.Time `json:"cancellation_date,omitempty" bson:"cancellation_date,omitempty"`
	PackingDate        *time.Time `json:"packing_date,omitempty" bson:"packing_date,omitempty"`
	ShippingDate       *time.Time `json:"shipping_date,omitempty" bson:"shipping_date,omitempty"`
	DeliveryDate       *time.Time `json:"delivery_date,omitempty" bson:"delivery_date,omitempty"`

	Notes []Note `json:"notes,omitempty" bson:"notes,omitempty"`

	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	LastUpdated time.Time `json:"last_updated" bson:"last_updated"`
}

// AddNote appends a free-text note timestamped at now.
func (o *Order) AddNote(text string, now time.Time) {
	o.Notes = append(o.Notes, Note{Text: text, CreatedAt: now})
}

// HistoryEntry is one append-only OrderStatusHistory row (spec.md §3).
// Invariant: timestamps are monotonically non-decreasing; the latest
// entry's status equals the order's current status.
type HistoryEntry struct {
	OrderID   string    `json:"order_id" bson:"order_id"`
	Status    Status    `json:"status" bson:"status"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Actor     string    `json:"actor" bson:"actor"`
	Comment   string    `json:"comment,omitempty" bson:"comment,omitempty"`
}
