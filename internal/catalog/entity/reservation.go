package entity

import (
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
)

// ReservationStatus is the lifecycle state of a Reservation (spec.md
// §3, Glossary).
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
)

// ReservationLine is one held line item: the item id, the quantity
// held, and a price/name snapshot taken at hold time so a later price
// change on the Item never retroactively changes what the customer
// was quoted.
type ReservationLine struct {
	ItemID         string      `json:"item_id" bson:"item_id"`
	Quantity       int         `json:"quantity" bson:"quantity"`
	UnitPriceCents money.Cents `json:"unit_price_cents" bson:"unit_price_cents"`
	ItemName       string      `json:"item_name" bson:"item_name"`
}

// Reservation is a time-bounded hold against one or more Items, scoped
// to exactly one order (spec.md §3). Invariant: sum over Active
// reservations of a line's quantity equals the referenced item's
// ReservedQty.
type Reservation struct {
	ID      string `json:"id" bson:"_id"`
	OrderID string `json:"order_id" bson:"order_id"`
	UserID  string `json:"user_id" bson:"user_id"`

	Lines []ReservationLine `json:"lines" bson:"lines"`

	Status ReservationStatus `json:"status" bson:"status"`

	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at" bson:"expires_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	ReleasedAt   *time.Time `json:"released_at,omitempty" bson:"released_at,omitempty"`
}

// IsExpired reports whether the reservation's TTL has passed as of now
// — used by the sweeper (spec.md §4.C sweep_expired); "now ==
// expires_at" counts as expired (spec.md §8 boundary behavior).
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && !now.Before(r.ExpiresAt)
}

// UnavailableLine describes why one requested line could not be
// reserved (spec.md §4.C "unavailable" list).
type UnavailableLine struct {
	ItemID        string `json:"item_id"`
	Requested     int    `json:"requested"`
	AvailableFree int    `json:"available_free"`
}
