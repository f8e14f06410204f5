package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/repository"
	"github.com/hydr0g3nz/tcg_order_core/internal/eventbus"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/clock"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/idgen"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/money"
	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

// --- in-memory fakes grounding the engine tests on the repository
// contracts rather than a live Mongo instance ---

type fakeItemStore struct {
	mu    sync.Mutex
	items map[string]*entity.Item
}

func newFakeItemStore(items ...*entity.Item) *fakeItemStore {
	m := make(map[string]*entity.Item, len(items))
	for _, it := range items {
		cp := *it
		m[it.ID] = &cp
	}
	return &fakeItemStore{items: m}
}

func (s *fakeItemStore) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, errkind.NotFoundf("item %s not found", id)
	}
	cp := *it
	return &cp, nil
}

func (s *fakeItemStore) GetItemsForUpdate(ctx context.Context, ids []string) (map[string]*entity.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*entity.Item, len(ids))
	for _, id := range ids {
		if it, ok := s.items[id]; ok {
			cp := *it
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *fakeItemStore) UpsertItem(ctx context.Context, item *entity.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	cp.ReservedQty = 0
	s.items[item.ID] = &cp
	return nil
}

func (s *fakeItemStore) UpdateItemFields(ctx context.Context, id string, patch entity.ItemPatch) (*entity.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, errkind.NotFoundf("item %s not found", id)
	}
	if patch.Name != nil {
		it.Name = *patch.Name
	}
	if patch.AvailableQty != nil {
		it.AvailableQty = *patch.AvailableQty
	}
	cp := *it
	return &cp, nil
}

func (s *fakeItemStore) UpdateReservedQty(ctx context.Context, id string, reservedDelta, availableDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return errkind.NotFoundf("item %s not found", id)
	}
	newReserved := it.ReservedQty + reservedDelta
	newAvailable := it.AvailableQty + availableDelta
	if newReserved < 0 || newAvailable < 0 || newReserved > newAvailable {
		return errkind.Conflictf("quantity invariant violated for item %s", id)
	}
	it.ReservedQty = newReserved
	it.AvailableQty = newAvailable
	return nil
}

func (s *fakeItemStore) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return errkind.NotFoundf("item %s not found", id)
	}
	if it.ReservedQty > 0 {
		return errkind.Conflictf("item %s has active reservations", id)
	}
	delete(s.items, id)
	return nil
}

type fakeReservationStore struct {
	mu      sync.Mutex
	byID    map[string]*entity.Reservation
	byOrder map[string]string
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{byID: make(map[string]*entity.Reservation), byOrder: make(map[string]string)}
}

func (s *fakeReservationStore) GetByOrder(ctx context.Context, orderID string) (*entity.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, errkind.NotFoundf("reservation for order %s not found", orderID)
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *fakeReservationStore) Insert(ctx context.Context, r *entity.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byOrder[r.OrderID]; ok {
		existing := s.byID[existingID]
		if existing.Status == entity.ReservationActive || existing.Status == entity.ReservationConfirmed {
			return errkind.Conflictf("reservation already exists for order %s", r.OrderID)
		}
	}
	cp := *r
	s.byID[r.ID] = &cp
	s.byOrder[r.OrderID] = r.ID
	return nil
}

func (s *fakeReservationStore) Update(ctx context.Context, r *entity.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; !ok {
		return errkind.NotFoundf("reservation %s not found", r.ID)
	}
	cp := *r
	s.byID[r.ID] = &cp
	return nil
}

func (s *fakeReservationStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]*entity.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Reservation
	for _, r := range s.byID {
		if r.IsExpired(now) {
			cp := *r
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// fakeUoW runs fn directly with no real isolation — sufficient for
// exercising the engine's transaction boundaries without a live Mongo
// replica set.
type fakeUoW struct {
	items        *fakeItemStore
	reservations *fakeReservationStore
}

func (u *fakeUoW) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

func (u *fakeUoW) Items() repository.ItemRepository               { return u.items }
func (u *fakeUoW) Reservations() repository.ReservationRepository { return u.reservations }

// noopLogger discards everything; engine tests assert on return values
// and published events, not log output.
type noopLogger struct{}

func (noopLogger) Debug(msg string, kv ...interface{}) {}
func (noopLogger) Info(msg string, kv ...interface{})  {}
func (noopLogger) Warn(msg string, kv ...interface{})  {}
func (noopLogger) Error(msg string, kv ...interface{}) {}
func (noopLogger) Fatal(msg string, kv ...interface{}) {}
func (l noopLogger) With(kv ...interface{}) logger.Logger {
	return l
}
func (l noopLogger) WithCorrelationID(id string) logger.Logger {
	return l
}

func newItem(id string, available, reserved int) *entity.Item {
	return &entity.Item{
		ID:           id,
		Kind:         entity.KindTradingCard,
		Name:         "Test Card " + id,
		SellerID:     "seller-1",
		PriceCents:   money.Cents(500),
		AvailableQty: available,
		ReservedQty:  reserved,
		CreatedAt:    time.Now(),
		LastUpdated:  time.Now(),
	}
}

func newTestEngine(now time.Time, items ...*entity.Item) (*Engine, *fakeUoW, *eventbus.FakePublisher) {
	uow := &fakeUoW{items: newFakeItemStore(items...), reservations: newFakeReservationStore()}
	pub := &eventbus.FakePublisher{}
	eng := NewEngine(uow, clock.FixedClock{At: now}, &idgen.Sequential{Prefix: "res"}, pub, noopLogger{}, DefaultTTL)
	return eng, uow, pub
}

func TestReserveHappyPath(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, uow, pub := newTestEngine(now, newItem("item-1", 10, 0))

	result, err := eng.Reserve(context.Background(), "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 4}}, 0)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got unavailable: %+v", result.Unavailable)
	}

	item, _ := uow.items.GetItem(context.Background(), "item-1")
	if item.ReservedQty != 4 {
		t.Fatalf("expected ReservedQty=4, got %d", item.ReservedQty)
	}
	if item.AvailableQty != 10 {
		t.Fatalf("expected AvailableQty unchanged at 10, got %d", item.AvailableQty)
	}

	last, ok := pub.Last()
	if !ok || last.RoutingKey != eventbus.RoutingInventoryReserved {
		t.Fatalf("expected inventory.reserved event, got %+v", last)
	}
}

func TestReserveExactFreeQuantitySucceeds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, _, _ := newTestEngine(now, newItem("item-1", 5, 2)) // free == 3

	result, err := eng.Reserve(context.Background(), "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 3}}, 0)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected reserving exactly the free quantity to succeed, got %+v", result.Unavailable)
	}
}

func TestReserveOneMoreThanFreeFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, _, pub := newTestEngine(now, newItem("item-1", 5, 2)) // free == 3

	result, err := eng.Reserve(context.Background(), "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 4}}, 0)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected requesting free+1 to fail")
	}
	if len(result.Unavailable) != 1 || result.Unavailable[0].AvailableFree != 3 {
		t.Fatalf("unexpected unavailable detail: %+v", result.Unavailable)
	}

	last, ok := pub.Last()
	if !ok || last.RoutingKey != eventbus.RoutingInventoryReservationFailed {
		t.Fatalf("expected inventory.reservation.failed event, got %+v", last)
	}
}

func TestReserveRejectsDuplicateItemLines(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, _, _ := newTestEngine(now, newItem("item-1", 10, 0))

	_, err := eng.Reserve(context.Background(), "order-1", "user-1", []Line{
		{ItemID: "item-1", Quantity: 1},
		{ItemID: "item-1", Quantity: 1},
	}, 0)
	if errkind.KindOf(err) != errkind.Validation {
		t.Fatalf("expected Validation error for duplicate lines, got %v", err)
	}
}

func TestReserveRejectsSecondActiveReservationForSameOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, _, _ := newTestEngine(now, newItem("item-1", 10, 0))
	ctx := context.Background()

	if _, err := eng.Reserve(ctx, "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 1}}, 0); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	_, err := eng.Reserve(ctx, "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 1}}, 0)
	if errkind.KindOf(err) != errkind.Conflict {
		t.Fatalf("expected Conflict on duplicate active reservation, got %v", err)
	}
}

func TestConfirmDecrementsAvailableAndReserved(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, uow, _ := newTestEngine(now, newItem("item-1", 10, 0))
	ctx := context.Background()

	if _, err := eng.Reserve(ctx, "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 4}}, 0); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := eng.Confirm(ctx, "order-1"); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	item, _ := uow.items.GetItem(ctx, "item-1")
	if item.AvailableQty != 6 || item.ReservedQty != 0 {
		t.Fatalf("expected available=6 reserved=0 after confirm, got available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}

	res, _ := uow.reservations.GetByOrder(ctx, "order-1")
	if res.Status != entity.ReservationConfirmed {
		t.Fatalf("expected status confirmed, got %s", res.Status)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, uow, _ := newTestEngine(now, newItem("item-1", 10, 0))
	ctx := context.Background()

	if _, err := eng.Reserve(ctx, "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 4}}, 0); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := eng.Release(ctx, "order-1"); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if err := eng.Release(ctx, "order-1"); err != nil {
		t.Fatalf("second release should be a no-op success, got: %v", err)
	}

	item, _ := uow.items.GetItem(ctx, "item-1")
	if item.ReservedQty != 0 || item.AvailableQty != 10 {
		t.Fatalf("expected quantities restored, got available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}
}

func TestConfirmAfterReleaseIsConflict(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, _, _ := newTestEngine(now, newItem("item-1", 10, 0))
	ctx := context.Background()

	if _, err := eng.Reserve(ctx, "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 4}}, 0); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := eng.Release(ctx, "order-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	err := eng.Confirm(ctx, "order-1")
	if errkind.KindOf(err) != errkind.Conflict {
		t.Fatalf("expected Conflict confirming a released reservation, got %v", err)
	}
}

func TestSweepExpiredAtExactBoundaryExpiresAndRestoresQuantity(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, uow, pub := newTestEngine(start, newItem("item-1", 10, 0))
	ctx := context.Background()

	ttl := 10 * time.Minute
	if _, err := eng.Reserve(ctx, "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 4}}, ttl); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	expiresAt := start.Add(ttl)
	count, err := eng.SweepExpired(ctx, expiresAt)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 reservation expired at the boundary instant, got %d", count)
	}

	item, _ := uow.items.GetItem(ctx, "item-1")
	if item.ReservedQty != 0 || item.AvailableQty != 10 {
		t.Fatalf("expected quantities restored after expiry, got available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}

	res, _ := uow.reservations.GetByOrder(ctx, "order-1")
	if res.Status != entity.ReservationExpired {
		t.Fatalf("expected status expired, got %s", res.Status)
	}

	found := false
	for _, e := range pub.Published {
		if e.RoutingKey == eventbus.RoutingOrderReservationExpired {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an order.reservation.expired event to be published")
	}
}

func TestSweepExpiredSkipsReservationsNotYetExpired(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	eng, _, _ := newTestEngine(start, newItem("item-1", 10, 0))
	ctx := context.Background()

	ttl := 10 * time.Minute
	if _, err := eng.Reserve(ctx, "order-1", "user-1", []Line{{ItemID: "item-1", Quantity: 4}}, ttl); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	count, err := eng.SweepExpired(ctx, start.Add(ttl-time.Second))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 reservations expired before the boundary, got %d", count)
	}
}
