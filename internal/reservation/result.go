package reservation

import "github.com/hydr0g3nz/tcg_order_core/internal/catalog/entity"

// Line is one requested hold line: an item id and a quantity >= 1
// (spec.md §4.C).
type Line struct {
	ItemID   string
	Quantity int
}

// Result is the explicit result variant spec.md §9 design notes call
// for in place of exceptions-for-control-flow: either the reservation
// succeeded, or it failed with the full per-line unavailable detail.
// It never represents a genuine error — those still return a non-nil
// error from Engine methods.
type Result struct {
	Success       bool
	ReservationID string
	Unavailable   []entity.UnavailableLine
}
