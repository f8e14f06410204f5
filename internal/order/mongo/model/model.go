// Package model holds the bson-tagged persistence shapes for the
// Order Store, mirroring the teacher's order_service mongo model
// package but carrying the order lifecycle fields spec.md §3/§6
// requires instead of the teacher's simpler order_model.go shape.
package model

import (
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/order/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
)

type OrderItemModel struct {
	ItemID         string `bson:"item_id"`
	Quantity       int    `bson:"quantity"`
	UnitPriceCents int64  `bson:"unit_price_cents"`
	Condition      string `bson:"condition,omitempty"`
	DiscountCents  int64  `bson:"discount_cents,omitempty"`
}

type ShippingBlockModel struct {
	Carrier               string     `bson:"carrier,omitempty"`
	TrackingNumber        string     `bson:"tracking_number,omitempty"`
	Method                string     `bson:"method,omitempty"`
	CostCents             int64      `bson:"cost_cents"`
	EstimatedDeliveryDate *time.Time `bson:"estimated_delivery_date,omitempty"`
	ActualDeliveryDate    *time.Time `bson:"actual_delivery_date,omitempty"`
}

type NoteModel struct {
	Text      string    `bson:"text"`
	CreatedAt time.Time `bson:"created_at"`
}

type OrderModel struct {
	ID         string `bson:"_id"`
	CustomerID string `bson:"customer_id"`

	ShippingAddress string `bson:"shipping_address"`
	BillingAddress  string `bson:"billing_address"`

	Items []OrderItemModel `bson:"items"`

	SubtotalCents int64 `bson:"subtotal_cents"`
	TaxCents      int64 `bson:"tax_cents"`
	ShippingCents int64 `bson:"shipping_cents"`
	TotalCents    int64 `bson:"total_cents"`

	Status          string `bson:"status"`
	PaymentStatus   string `bson:"payment_status"`
	InventoryStatus string `bson:"inventory_status"`

	PaymentTransactionRef string `bson:"payment_transaction_ref,omitempty"`
	PaymentMethod         string `bson:"payment_method,omitempty"`

	ReservationExpiry *time.Time          `bson:"reservation_expiry,omitempty"`
	Shipping          *ShippingBlockModel `bson:"shipping,omitempty"`

	CancellationReason string     `bson:"cancellation_reason,omitempty"`
	CancellationDate   *time.Time `bson:"cancellation_date,omitempty"`
	PackingDate        *time.Time `bson:"packing_date,omitempty"`
	ShippingDate       *time.Time `bson:"shipping_date,omitempty"`
	DeliveryDate       *time.Time `bson:"delivery_date,omitempty"`

	Notes []NoteModel `bson:"notes,omitempty"`

	CreatedAt   time.Time `bson:"created_at"`
	LastUpdated time.Time `bson:"last_updated"`
}

func FromEntity(o *entity.Order) *OrderModel {
	items := make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemModel{
			ItemID:         it.ItemID,
			Quantity:       it.Quantity,
			UnitPriceCents: int64(it.UnitPriceCents),
			Condition:      it.Condition,
			DiscountCents:  int64(it.DiscountCents),
		}
	}
	notes := make([]NoteModel, len(o.Notes))
	for i, n := range o.Notes {
		notes[i] = NoteModel{Text: n.Text, CreatedAt: n.CreatedAt}
	}

	var shipping *ShippingBlockModel
	if o.Shipping != nil {
		shipping = &ShippingBlockModel{
			Carrier:               o.Shipping.Carrier,
			TrackingNumber:        o.Shipping.TrackingNumber,
			Method:                o.Shipping.Method,
			CostCents:             int64(o.Shipping.CostCents),
			EstimatedDeliveryDate: o.Shipping.EstimatedDeliveryDate,
			ActualDeliveryDate:    o.Shipping.ActualDeliveryDate,
		}
	}

	return &OrderModel{
		ID:                    o.ID,
		CustomerID:            o.CustomerID,
		ShippingAddress:       o.ShippingAddress,
		BillingAddress:        o.BillingAddress,
		Items:                 items,
		SubtotalCents:         int64(o.SubtotalCents),
		TaxCents:              int64(o.TaxCents),
		ShippingCents:         int64(o.ShippingCents),
		TotalCents:            int64(o.TotalCents),
		Status:                string(o.Status),
		PaymentStatus:         string(o.PaymentStatus),
		InventoryStatus:       string(o.InventoryStatus),
		PaymentTransactionRef: o.PaymentTransactionRef,
		PaymentMethod:         o.PaymentMethod,
		ReservationExpiry:     o.ReservationExpiry,
		Shipping:              shipping,
		CancellationReason:    o.CancellationReason,
		CancellationDate:      o.CancellationDate,
		PackingDate:           o.PackingDate,
		ShippingDate:          o.ShippingDate,
		DeliveryDate:          o.DeliveryDate,
		Notes:                 notes,
		CreatedAt:             o.CreatedAt,
		LastUpdated:           o.LastUpdated,
	}
}

func (m *OrderModel) ToEntity() *entity.Order {
	items := make([]entity.OrderItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = entity.OrderItem{
			ItemID:         it.ItemID,
			Quantity:       it.Quantity,
			UnitPriceCents: money.Cents(it.UnitPriceCents),
			Condition:      it.Condition,
			DiscountCents:  money.Cents(it.DiscountCents),
		}
	}
	notes := make([]entity.Note, len(m.Notes))
	for i, n := range m.Notes {
		notes[i] = entity.Note{Text: n.Text, CreatedAt: n.CreatedAt}
	}

	var shipping *entity.ShippingBlock
	if m.Shipping != nil {
		shipping = &entity.ShippingBlock{
			Carrier:               m.Shipping.Carrier,
			TrackingNumber:        m.Shipping.TrackingNumber,
			Method:                m.Shipping.Method,
			CostCents:             money.Cents(m.Shipping.CostCents),
			EstimatedDeliveryDate: m.Shipping.EstimatedDeliveryDate,
			ActualDeliveryDate:    m.Shipping.ActualDeliveryDate,
		}
	}

	return &entity.Order{
		ID:                    m.ID,
		CustomerID:            m.CustomerID,
		ShippingAddress:       m.ShippingAddress,
		BillingAddress:        m.BillingAddress,
		Items:                 items,
		SubtotalCents:         money.Cents(m.SubtotalCents),
		TaxCents:              money.Cents(m.TaxCents),
		ShippingCents:         money.Cents(m.ShippingCents),
		TotalCents:            money.Cents(m.TotalCents),
		Status:                entity.Status(m.Status),
		PaymentStatus:         entity.PaymentStatus(m.PaymentStatus),
		InventoryStatus:       entity.InventoryStatus(m.InventoryStatus),
		PaymentTransactionRef: m.PaymentTransactionRef,
		PaymentMethod:         m.PaymentMethod,
		ReservationExpiry:     m.ReservationExpiry,
		Shipping:              shipping,
		CancellationReason:    m.CancellationReason,
		CancellationDate:      m.CancellationDate,
		PackingDate:           m.PackingDate,
		ShippingDate:          m.ShippingDate,
		DeliveryDate:          m.DeliveryDate,
		Notes:                 notes,
		CreatedAt:             m.CreatedAt,
		LastUpdated:           m.LastUpdated,
	}
}

// HistoryModel persists one entity.HistoryEntry row in a dedicated
// order_status_history collection (spec.md §6).
type HistoryModel struct {
	OrderID   string    `bson:"order_id"`
	Status    string    `bson:"status"`
	Timestamp time.Time `bson:"timestamp"`
	Actor     string    `bson:"actor"`
	Comment   string    `bson:"comment,omitempty"`
}

func HistoryFromEntity(h entity.HistoryEntry) HistoryModel {
	return HistoryModel{
		OrderID:   h.OrderID,
		Status:    string(h.Status),
		Timestamp: h.Timestamp,
		Actor:     h.Actor,
		Comment:   h.Comment,
	}
}

func (m HistoryModel) ToEntity() entity.HistoryEntry {
	return entity.HistoryEntry{
		OrderID:   m.OrderID,
		Status:    entity.Status(m.Status),
		Timestamp: m.Timestamp,
		Actor:     m.Actor,
		Comment:   m.Comment,
	}
}
