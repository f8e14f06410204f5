// Package model holds the MongoDB document shapes for the Item &
// Reservation Store, translated to/from internal/catalog/entity at the
// repository boundary (teacher's mongo/model.ToEntity/FromEntity
// pattern, generalized).
package model

import (
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
)

type CardAttributes struct {
	SetCode         string `bson:"set_code"`
	SetName         string `bson:"set_name"`
	CollectorNumber string `bson:"collector_number"`
	Rarity          string `bson:"rarity"`
	Condition       string `bson:"condition"`
	Language        string `bson:"language"`
	Foil            bool   `bson:"foil"`
}

type SealedAttributes struct {
	SetCode  string `bson:"set_code"`
	SetName  string `bson:"set_name"`
	UnitType string `bson:"unit_type"`
}

// ItemModel is the `items` collection document (spec.md §6 persisted
// state layout).
type ItemModel struct {
	ID           string            `bson:"_id"`
	Kind         string            `bson:"kind"`
	Name         string            `bson:"name"`
	SellerID     string            `bson:"seller_id"`
	PriceCents   int64             `bson:"price_cents"`
	AvailableQty int               `bson:"available_quantity"`
	ReservedQty  int               `bson:"reserved_quantity"`
	ImageURL     string            `bson:"image_url,omitempty"`
	Card         *CardAttributes   `bson:"card,omitempty"`
	Sealed       *SealedAttributes `bson:"sealed,omitempty"`
	CreatedAt    time.Time         `bson:"created_at"`
	LastUpdated  time.Time         `bson:"last_updated"`
}

func ItemFromEntity(i *entity.Item) *ItemModel {
	m := &ItemModel{
		ID:           i.ID,
		Kind:         string(i.Kind),
		Name:         i.Name,
		SellerID:     i.SellerID,
		PriceCents:   int64(i.PriceCents),
		AvailableQty: i.AvailableQty,
		ReservedQty:  i.ReservedQty,
		ImageURL:     i.ImageURL,
		CreatedAt:    i.CreatedAt,
		LastUpdated:  i.LastUpdated,
	}
	if i.Card != nil {
		c := CardAttributes(*i.Card)
		m.Card = &c
	}
	if i.Sealed != nil {
		s := SealedAttributes(*i.Sealed)
		m.Sealed = &s
	}
	return m
}

func (m *ItemModel) ToEntity() *entity.Item {
	e := &entity.Item{
		ID:           m.ID,
		Kind:         entity.Kind(m.Kind),
		Name:         m.Name,
		SellerID:     m.SellerID,
		PriceCents:   money.Cents(m.PriceCents),
		AvailableQty: m.AvailableQty,
		ReservedQty:  m.ReservedQty,
		ImageURL:     m.ImageURL,
		CreatedAt:    m.CreatedAt,
		LastUpdated:  m.LastUpdated,
	}
	if m.Card != nil {
		c := entity.CardAttributes(*m.Card)
		e.Card = &c
	}
	if m.Sealed != nil {
		s := entity.SealedAttributes(*m.Sealed)
		e.Sealed = &s
	}
	return e
}

// ReservationLineModel mirrors entity.ReservationLine.
type ReservationLineModel struct {
	ItemID         string `bson:"item_id"`
	Quantity       int    `bson:"quantity"`
	UnitPriceCents int64  `bson:"unit_price_cents"`
	ItemName       string `bson:"item_name"`
}

// ReservationModel is the `reservations` collection document.
type ReservationModel struct {
	ID          string                 `bson:"_id"`
	OrderID     string                 `bson:"order_id"`
	UserID      string                 `bson:"user_id"`
	Lines       []ReservationLineModel `bson:"lines"`
	Status      string                 `bson:"status"`
	CreatedAt   time.Time              `bson:"created_at"`
	ExpiresAt   time.Time              `bson:"expires_at"`
	ConfirmedAt *time.Time             `bson:"confirmed_at,omitempty"`
	ReleasedAt  *time.Time             `bson:"released_at,omitempty"`
}

func ReservationFromEntity(r *entity.Reservation) *ReservationModel {
	lines := make([]ReservationLineModel, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = ReservationLineModel{
			ItemID:         l.ItemID,
			Quantity:       l.Quantity,
			UnitPriceCents: int64(l.UnitPriceCents),
			ItemName:       l.ItemName,
		}
	}
	return &ReservationModel{
		ID:          r.ID,
		OrderID:     r.OrderID,
		UserID:      r.UserID,
		Lines:       lines,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		ConfirmedAt: r.ConfirmedAt,
		ReleasedAt:  r.ReleasedAt,
	}
}

func (m *ReservationModel) ToEntity() *entity.Reservation {
	lines := make([]entity.ReservationLine, len(m.Lines))
	for i, l := range m.Lines {
		lines[i] = entity.ReservationLine{
			ItemID:         l.ItemID,
			Quantity:       l.Quantity,
			UnitPriceCents: money.Cents(l.UnitPriceCents),
			ItemName:       l.ItemName,
		}
	}
	return &entity.Reservation{
		ID:          m.ID,
		OrderID:     m.OrderID,
		UserID:      m.UserID,
		Lines:       lines,
		Status:      entity.ReservationStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
		ConfirmedAt: m.ConfirmedAt,
		ReleasedAt:  m.ReleasedAt,
	}
}
