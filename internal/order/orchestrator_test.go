package order

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/eventbus"
	"github.com/hydr0g3nz/tcg_order_core/internal/order/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/clock"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/idgen"
	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

type fakeOrderStore struct {
	mu      sync.Mutex
	orders  map[string]*entity.Order
	history map[string][]entity.HistoryEntry
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*entity.Order), history: make(map[string][]entity.HistoryEntry)}
}

func (s *fakeOrderStore) Get(ctx context.Context, id string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, errkind.NotFoundf("order %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (s *fakeOrderStore) Insert(ctx context.Context, o *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return errkind.Conflictf("order %s already exists", o.ID)
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *fakeOrderStore) UpdateCAS(ctx context.Context, o *entity.Order, expectedStatus entity.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.orders[o.ID]
	if !ok {
		return errkind.NotFoundf("order %s not found", o.ID)
	}
	if existing.Status != expectedStatus {
		return errkind.Conflictf("order %s status changed concurrently", o.ID)
	}
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *fakeOrderStore) ListForCustomer(ctx context.Context, customerID string, page, pageSize int) ([]*entity.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*entity.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			cp := *o
			matched = append(matched, &cp)
		}
	}
	return matched, int64(len(matched)), nil
}

func (s *fakeOrderStore) AppendHistory(ctx context.Context, entry entity.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entry.OrderID] = append(s.history[entry.OrderID], entry)
	return nil
}

func (s *fakeOrderStore) History(ctx context.Context, orderID string) ([]entity.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[orderID], nil
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, kv ...interface{})         {}
func (noopLogger) Info(msg string, kv ...interface{})          {}
func (noopLogger) Warn(msg string, kv ...interface{})          {}
func (noopLogger) Error(msg string, kv ...interface{})         {}
func (noopLogger) Fatal(msg string, kv ...interface{})         {}
func (l noopLogger) With(kv ...interface{}) logger.Logger      { return l }
func (l noopLogger) WithCorrelationID(id string) logger.Logger { return l }

func newTestOrchestrator(now time.Time) (*Orchestrator, *fakeOrderStore, *eventbus.FakePublisher) {
	store := newFakeOrderStore()
	pub := &eventbus.FakePublisher{}
	orch := NewOrchestrator(store, pub, clock.FixedClock{At: now}, &idgen.Sequential{Prefix: "ord"}, noopLogger{}, DefaultTaxRateBasisPoints)
	return orch, store, pub
}

func deliver(t *testing.T, orderID string, payload interface{}) eventbus.Delivery {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return eventbus.Delivery{MessageID: "msg-1", OrderID: orderID, Payload: body}
}

func TestCreateOrderComputesTotals(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orch, _, pub := newTestOrchestrator(now)

	ord, err := orch.CreateOrder(context.Background(), "cust-1", "addr", "addr", []Line{
		{ItemID: "item-1", Quantity: 2, UnitPriceCents: 1000},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if ord.SubtotalCents != 2000 {
		t.Fatalf("expected subtotal 2000, got %d", ord.SubtotalCents)
	}
	if ord.TaxCents != 165 {
		t.Fatalf("expected tax 165 (8.25%% of 2000), got %d", ord.TaxCents)
	}
	if ord.TotalCents != 2165 {
		t.Fatalf("expected total 2165, got %d", ord.TotalCents)
	}
	if ord.Status != entity.StatusPending {
		t.Fatalf("expected status pending, got %s", ord.Status)
	}

	last, ok := pub.Last()
	if !ok || last.RoutingKey != eventbus.RoutingOrderCreated {
		t.Fatalf("expected order.created event, got %+v", last)
	}
}

func TestFullHappyPathLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orch, _, _ := newTestOrchestrator(now)
	ctx := context.Background()

	ord, err := orch.CreateOrder(ctx, "cust-1", "addr", "addr", []Line{{ItemID: "item-1", Quantity: 2, UnitPriceCents: 1000}})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	expiresAt := now.Add(15 * time.Minute)
	if err := orch.HandleInventoryReserved(ctx, deliver(t, ord.ID, eventbus.InventoryReservedPayload{OrderID: ord.ID, ExpiresAt: expiresAt})); err != nil {
		t.Fatalf("handle inventory.reserved failed: %v", err)
	}
	got, _, _ := orch.GetOrder(ctx, ord.ID)
	if got.Status != entity.StatusPending || got.InventoryStatus != entity.InventoryReserved {
		t.Fatalf("expected still pending with inventory reserved, got status=%s inventory=%s", got.Status, got.InventoryStatus)
	}

	if err := orch.HandlePaymentProcessed(ctx, deliver(t, ord.ID, eventbus.PaymentProcessedPayload{OrderID: ord.ID, Success: true, Method: "card", TransactionReference: "tx-1"})); err != nil {
		t.Fatalf("handle payment.processed failed: %v", err)
	}
	got, _, _ = orch.GetOrder(ctx, ord.ID)
	if got.Status != entity.StatusReadyForShipment {
		t.Fatalf("expected ready_for_shipment after payment with inventory already reserved, got %s", got.Status)
	}

	if err := orch.HandleShippingRateCalculated(ctx, deliver(t, ord.ID, eventbus.ShippingRateCalculatedPayload{OrderID: ord.ID, ShippingCostCents: 500, TrackingNumber: "TRK1"})); err != nil {
		t.Fatalf("handle shipping.rate.calculated failed: %v", err)
	}
	got, _, _ = orch.GetOrder(ctx, ord.ID)
	if got.Status != entity.StatusShipped {
		t.Fatalf("expected shipped, got %s", got.Status)
	}
	if got.TotalCents != 2665 {
		t.Fatalf("expected total 2665 after shipping cost, got %d", got.TotalCents)
	}

	if err := orch.HandleDeliveryConfirmed(ctx, deliver(t, ord.ID, eventbus.DeliveryConfirmedPayload{OrderID: ord.ID})); err != nil {
		t.Fatalf("handle delivery.confirmed failed: %v", err)
	}
	got, _, _ = orch.GetOrder(ctx, ord.ID)
	if got.Status != entity.StatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orch, store, _ := newTestOrchestrator(now)
	ctx := context.Background()

	ord, _ := orch.CreateOrder(ctx, "cust-1", "addr", "addr", []Line{{ItemID: "item-1", Quantity: 1, UnitPriceCents: 500}})
	stored, _ := store.Get(ctx, ord.ID)
	stored.Status = entity.StatusDelivered
	store.orders[ord.ID] = stored

	_, err := orch.UpdateStatus(ctx, ord.ID, entity.StatusProcessing, "retry", "ops")
	if errkind.KindOf(err) != errkind.Validation {
		t.Fatalf("expected Validation error for Delivered -> Processing, got %v", err)
	}
}

func TestCancelBlockedAfterShipped(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orch, store, _ := newTestOrchestrator(now)
	ctx := context.Background()

	ord, _ := orch.CreateOrder(ctx, "cust-1", "addr", "addr", []Line{{ItemID: "item-1", Quantity: 1, UnitPriceCents: 500}})
	stored, _ := store.Get(ctx, ord.ID)
	stored.Status = entity.StatusShipped
	store.orders[ord.ID] = stored

	_, err := orch.CancelOrder(ctx, ord.ID, "changed mind", "cust-1")
	if errkind.KindOf(err) != errkind.Conflict {
		t.Fatalf("expected Conflict cancelling a shipped order, got %v", err)
	}
}

func TestCancelBeforeShipReleasesInventoryFlag(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orch, store, pub := newTestOrchestrator(now)
	ctx := context.Background()

	ord, _ := orch.CreateOrder(ctx, "cust-1", "addr", "addr", []Line{{ItemID: "item-1", Quantity: 1, UnitPriceCents: 500}})
	stored, _ := store.Get(ctx, ord.ID)
	stored.Status = entity.StatusProcessing
	stored.InventoryStatus = entity.InventoryReserved
	store.orders[ord.ID] = stored

	got, err := orch.CancelOrder(ctx, ord.ID, "customer requested", "cust-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got.Status != entity.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	last, ok := pub.Last()
	if !ok || last.RoutingKey != eventbus.RoutingOrderCancelled {
		t.Fatalf("expected order.cancelled event, got %+v", last)
	}
	payload, ok := last.Payload.(eventbus.OrderCancelledPayload)
	if !ok || !payload.InventoryWasHeld {
		t.Fatalf("expected inventoryWasHeld=true, got %+v", last.Payload)
	}
}

func TestInventoryReservationFailedPutsOrderOnHold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orch, store, _ := newTestOrchestrator(now)
	ctx := context.Background()

	ord, err := orch.CreateOrder(ctx, "cust-1", "addr", "addr", []Line{{ItemID: "item-1", Quantity: 5, UnitPriceCents: 1000}})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	payload := eventbus.InventoryReservationFailedPayload{
		OrderID: ord.ID,
		Reason:  "insufficient free quantity",
		Unavailable: []eventbus.UnavailableLinePayload{
			{ItemID: "item-1", Requested: 5, AvailableFree: 2},
		},
	}
	if err := orch.HandleInventoryReservationFailed(ctx, deliver(t, ord.ID, payload)); err != nil {
		t.Fatalf("handle inventory.reservation.failed failed: %v", err)
	}

	got, _, err := orch.GetOrder(ctx, ord.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if got.Status != entity.StatusOnHold {
		t.Fatalf("expected on_hold after oversell, got %s", got.Status)
	}
	if got.InventoryStatus != entity.InventoryFailed {
		t.Fatalf("expected inventory status failed, got %s", got.InventoryStatus)
	}

	if len(got.Notes) == 0 {
		t.Fatalf("expected an unavailable-lines note appended, got none")
	}
	last := got.Notes[len(got.Notes)-1]
	if !strings.Contains(last.Text, "item-1") || !strings.Contains(last.Text, payload.Reason) {
		t.Fatalf("expected note to mention the unavailable item and reason, got %q", last.Text)
	}

	hist, err := store.History(ctx, ord.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	found := false
	for _, h := range hist {
		if h.Status == entity.StatusOnHold {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an on_hold history entry, got %+v", hist)
	}
}

func TestDuplicatePaymentProcessedDeliveryIsIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orch, store, _ := newTestOrchestrator(now)
	ctx := context.Background()

	ord, _ := orch.CreateOrder(ctx, "cust-1", "addr", "addr", []Line{{ItemID: "item-1", Quantity: 1, UnitPriceCents: 500}})
	msg := deliver(t, ord.ID, eventbus.PaymentProcessedPayload{OrderID: ord.ID, Success: true, Method: "card", TransactionReference: "tx-1"})

	if err := orch.HandlePaymentProcessed(ctx, msg); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	first, _ := store.Get(ctx, ord.ID)

	// Simulating a second delivery of the SAME event after the first
	// already landed — the bus's dedup window would normally
	// short-circuit this before it reaches the handler at all; this
	// exercises the handler's own idempotence as a second line of
	// defense.
	if err := orch.HandlePaymentProcessed(ctx, msg); err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}
	second, _ := store.Get(ctx, ord.ID)

	if first.Status != second.Status || first.PaymentStatus != second.PaymentStatus {
		t.Fatalf("expected identical state after duplicate delivery, got %+v vs %+v", first, second)
	}

	hist, _ := store.History(ctx, ord.ID)
	processingCount := 0
	for _, h := range hist {
		if h.Status == entity.StatusProcessing {
			processingCount++
		}
	}
	if processingCount != 1 {
		t.Fatalf("expected exactly one Processing history entry despite duplicate delivery, got %d", processingCount)
	}
}
