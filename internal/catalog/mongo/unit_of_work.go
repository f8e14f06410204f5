package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/repository"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
)

// UnitOfWork implements catalog/repository.UnitOfWork using a Mongo
// client session, giving the reservation engine the cross-document
// atomicity spec.md §4.A/§4.C requires: across items in one reserve,
// either all ReservedQty increments commit or none.
type UnitOfWork struct {
	client       *mongo.Client
	items        *ItemRepository
	reservations *ReservationRepository
}

func NewUnitOfWork(client *mongo.Client, db *mongo.Database) *UnitOfWork {
	return &UnitOfWork{
		client:       client,
		items:        NewItemRepository(db),
		reservations: NewReservationRepository(db),
	}
}

func (u *UnitOfWork) Items() repository.ItemRepository             { return u.items }
func (u *UnitOfWork) Reservations() repository.ReservationRepository { return u.reservations }

// EnsureIndexes creates the indexes both underlying collections need
// (spec.md §6), meant to be called once at startup.
func (u *UnitOfWork) EnsureIndexes(ctx context.Context) error {
	if err := u.items.EnsureIndexes(ctx); err != nil {
		return err
	}
	return u.reservations.EnsureIndexes(ctx)
}

func (u *UnitOfWork) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	session, err := u.client.StartSession()
	if err != nil {
		return errkind.Wrap(errkind.Transient, "start mongo session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if err != nil {
		// A validation/conflict/not-found error raised by fn aborts the
		// transaction automatically; surface it unwrapped so callers
		// can still switch on its errkind.Kind.
		return err
	}
	return nil
}
