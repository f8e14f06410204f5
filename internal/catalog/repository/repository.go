// Package repository declares the Item & Reservation Store contract
// (spec.md §4.A): two logical collections with transactional
// multi-document updates scoped to a single order's reservation.
package repository

import (
	"context"
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/entity"
)

// ItemRepository is the leaf store for Item records.
type ItemRepository interface {
	// GetItem returns the item snapshot or an errkind.NotFound error.
	GetItem(ctx context.Context, id string) (*entity.Item, error)

	// GetItemsForUpdate returns item snapshots for the given ids,
	// intended to be read and mutated within the same transaction (the
	// reservation engine uses this to evaluate free quantity and then
	// write the updated ReservedQty back in the same tx).
	GetItemsForUpdate(ctx context.Context, ids []string) (map[string]*entity.Item, error)

	// UpsertItem creates or replaces an item. A newly created item
	// always starts with ReservedQty == 0 regardless of what the
	// caller supplied (spec.md §4.A).
	UpsertItem(ctx context.Context, item *entity.Item) error

	// UpdateItemFields applies a partial update for seller-owned
	// fields and bumps LastUpdated. Never mutates ReservedQty.
	UpdateItemFields(ctx context.Context, id string, patch entity.ItemPatch) (*entity.Item, error)

	// UpdateReservedQty atomically adjusts ReservedQty (and optionally
	// AvailableQty, for confirm) by delta. Must run inside the active
	// transaction attached to ctx. Returns errkind.Conflict if the
	// adjustment would make a quantity negative.
	UpdateReservedQty(ctx context.Context, id string, reservedDelta, availableDelta int) error

	// DeleteItem fails with errkind.Conflict if any Active reservation
	// references the item (spec.md §4.A).
	DeleteItem(ctx context.Context, id string) error
}

// ReservationRepository is the leaf store for Reservation documents,
// persisted alongside items so the engine can update both atomically.
type ReservationRepository interface {
	// GetByOrder returns the unique reservation in any state for that
	// order, or an errkind.NotFound error.
	GetByOrder(ctx context.Context, orderID string) (*entity.Reservation, error)

	// Insert creates a new Active reservation. Fails with
	// errkind.Conflict if an Active or Confirmed reservation already
	// exists for the order (spec.md §4.C precondition).
	Insert(ctx context.Context, r *entity.Reservation) error

	// Update persists a status/timestamp transition on an existing
	// reservation document (confirm/release/expire).
	Update(ctx context.Context, r *entity.Reservation) error

	// ListExpiring returns up to limit Active reservations whose
	// ExpiresAt is <= now (spec.md §8 boundary: "now == expires_at"
	// also expires), used by the sweeper.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]*entity.Reservation, error)
}

// UnitOfWork scopes a sequence of ItemRepository/ReservationRepository
// calls to a single atomic transaction (spec.md §4.A begin_tx/commit_tx
// /abort_tx), matching the multi-document atomicity requirement of
// §4.C: across items in one reserve, either all ReservedQty increments
// commit or none.
type UnitOfWork interface {
	// WithinTransaction runs fn with a context carrying the active
	// session; if fn returns an error the transaction is aborted and
	// that error is returned unwrapped, otherwise the transaction is
	// committed.
	WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error

	Items() ItemRepository
	Reservations() ReservationRepository
}
