// Package repository declares the Order Store contract (spec.md §4.B,
// §4.D): orders, their line items, and an append-only status history,
// with compare-and-set status updates so concurrent writers on the
// same order resolve deterministically (spec.md §5).
package repository

import (
	"context"

	"github.com/hydr0g3nz/tcg_order_core/internal/order/entity"
)

// OrderRepository is the leaf store for Order aggregates and their
// status history.
type OrderRepository interface {
	// Get returns the order or an errkind.NotFound error.
	Get(ctx context.Context, id string) (*entity.Order, error)

	// Insert creates a new order. Fails with errkind.Conflict if id
	// already exists (spec.md §4.D "duplicate create" is fatal).
	Insert(ctx context.Context, o *entity.Order) error

	// UpdateCAS persists o only if the currently stored order's Status
	// equals expectedStatus, matching spec.md §5's compare-and-set
	// concurrency policy. Fails with errkind.Conflict on mismatch; the
	// caller must re-read and decide whether to retry.
	UpdateCAS(ctx context.Context, o *entity.Order, expectedStatus entity.Status) error

	// ListForCustomer returns page (1-indexed) of size pageSize, most
	// recently created first.
	ListForCustomer(ctx context.Context, customerID string, page, pageSize int) ([]*entity.Order, int64, error)

	// AppendHistory adds one status-history entry.
	AppendHistory(ctx context.Context, entry entity.HistoryEntry) error

	// History returns every status-history entry for id, ordered by
	// timestamp ascending.
	History(ctx context.Context, orderID string) ([]entity.HistoryEntry, error)
}
