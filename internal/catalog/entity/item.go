// Package entity holds the Item & Reservation Store's domain types
// (spec.md §3, §4.A). A card or sealed product is modeled as a common
// Item record with a type-specific payload, per the polymorphism note
// in spec.md §9 rather than a TradingCard/SealedProduct class
// hierarchy.
package entity

import (
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
)

// Kind distinguishes the type-specific payload carried by an Item.
type Kind string

const (
	KindTradingCard  Kind = "trading_card"
	KindSealedProduct Kind = "sealed_product"
)

// CardAttributes is the type-specific payload for KindTradingCard
// items: display attributes that do not affect reservation invariants.
type CardAttributes struct {
	SetCode         string `json:"set_code" bson:"set_code"`
	SetName         string `json:"set_name" bson:"set_name"`
	CollectorNumber string `json:"collector_number" bson:"collector_number"`
	Rarity          string `json:"rarity" bson:"rarity"`
	Condition       string `json:"condition" bson:"condition"`
	Language        string `json:"language" bson:"language"`
	Foil            bool   `json:"foil" bson:"foil"`
}

// SealedAttributes is the type-specific payload for KindSealedProduct
// items (booster boxes, bundles, etc).
type SealedAttributes struct {
	SetCode  string `json:"set_code" bson:"set_code"`
	SetName  string `json:"set_name" bson:"set_name"`
	UnitType string `json:"unit_type" bson:"unit_type"` // e.g. "booster_box", "collector_booster"
}

// Item is a unique piece of sellable inventory: a single card listing
// or a sealed-product listing. Invariant (spec.md §3): AvailableQty >=
// ReservedQty at all times outside an in-progress reservation
// transaction.
type Item struct {
	ID          string     `json:"id" bson:"_id"`
	Kind        Kind       `json:"kind" bson:"kind"`
	Name        string     `json:"name" bson:"name"`
	SellerID    string     `json:"seller_id" bson:"seller_id"`
	PriceCents  money.Cents `json:"price_cents" bson:"price_cents"`
	AvailableQty int        `json:"available_quantity" bson:"available_quantity"`
	ReservedQty  int        `json:"reserved_quantity" bson:"reserved_quantity"`
	ImageURL    string     `json:"image_url,omitempty" bson:"image_url,omitempty"`

	Card   *CardAttributes   `json:"card,omitempty" bson:"card,omitempty"`
	Sealed *SealedAttributes `json:"sealed,omitempty" bson:"sealed,omitempty"`

	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	LastUpdated time.Time `json:"last_updated" bson:"last_updated"`
}

// FreeQty is the amount a new reservation may consume: available minus
// already-reserved (spec.md Glossary "Free quantity").
func (i *Item) FreeQty() int {
	return i.AvailableQty - i.ReservedQty
}

// ItemPatch is a partial update for seller-owned descriptive fields
// plus AvailableQty, applied by the catalog admin path (spec.md §5
// shared-resource policy). ReservedQty is never patchable here — only
// the Reservation Engine mutates it.
type ItemPatch struct {
	Name         *string
	PriceCents   *money.Cents
	AvailableQty *int
	ImageURL     *string
	Card         *CardAttributes
	Sealed       *SealedAttributes
}
