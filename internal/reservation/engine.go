// Package reservation implements the Reservation Engine (spec.md
// §4.C): the hold/confirm/release/expire protocol over the Item &
// Reservation Store, enforcing the quantity invariants in spec.md §3
// and §5.
package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/entity"
	"github.com/hydr0g3nz/tcg_order_core/internal/catalog/repository"
	"github.com/hydr0g3nz/tcg_order_core/internal/eventbus"
	"github.com/hydr0g3nz/tcg_order_core/internal/metrics"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/clock"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/errkind"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/idgen"
	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

// errUnavailable is an internal sentinel used to unwind
// WithinTransaction without treating "could not reserve" as a real
// transaction failure — no mutation happened yet when it's returned,
// so aborting the (empty) transaction is free.
var errUnavailable = errors.New("reservation: lines unavailable")

const DefaultTTL = 15 * time.Minute

// Engine is the Reservation Engine. It depends only on the catalog
// repository.UnitOfWork contract and an eventbus.Publisher, never on a
// concrete Mongo or AMQP type, so it can be unit tested with fakes.
type Engine struct {
	uow       repository.UnitOfWork
	clock     clock.Provider
	ids       idgen.Generator
	publisher eventbus.Publisher
	log       logger.Logger
	defaultTTL time.Duration
	metrics    *metrics.Metrics
}

func NewEngine(uow repository.UnitOfWork, c clock.Provider, ids idgen.Generator, publisher eventbus.Publisher, log logger.Logger, defaultTTL time.Duration) *Engine {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Engine{uow: uow, clock: c, ids: ids, publisher: publisher, log: log, defaultTTL: defaultTTL}
}

// WithMetrics attaches a metrics collector recording per-operation
// outcomes and durations. Optional.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// Reserve runs the hold protocol (spec.md §4.C). lines must be
// non-empty, contain no duplicate item ids, and every quantity must be
// >= 1 — violations are rejected as errkind.Validation before any
// store access. A zero ttl uses the engine's configured default.
func (e *Engine) Reserve(ctx context.Context, orderID, userID string, lines []Line, ttl time.Duration) (*Result, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, errkind.Validationf("order id is required")
	}
	if ttl <= 0 {
		ttl = e.defaultTTL
	}

	var result *Result
	var resLines []entity.ReservationLine
	now := e.clock.Now()
	opStart := time.Now()

	txErr := e.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := e.rejectExistingActiveReservation(txCtx, orderID); err != nil {
			return err
		}

		ids := make([]string, len(lines))
		for i, l := range lines {
			ids[i] = l.ItemID
		}
		items, err := e.uow.Items().GetItemsForUpdate(txCtx, ids)
		if err != nil {
			return err
		}

		var unavailable []entity.UnavailableLine
		for _, l := range lines {
			item, ok := items[l.ItemID]
			if !ok {
				unavailable = append(unavailable, entity.UnavailableLine{ItemID: l.ItemID, Requested: l.Quantity, AvailableFree: 0})
				continue
			}
			if free := item.FreeQty(); free < l.Quantity {
				unavailable = append(unavailable, entity.UnavailableLine{ItemID: l.ItemID, Requested: l.Quantity, AvailableFree: free})
			}
		}

		if len(unavailable) > 0 {
			result = &Result{Success: false, Unavailable: unavailable}
			return errUnavailable
		}

		for _, l := range lines {
			if err := e.uow.Items().UpdateReservedQty(txCtx, l.ItemID, l.Quantity, 0); err != nil {
				return err
			}
		}

		resLines = make([]entity.ReservationLine, len(lines))
		for i, l := range lines {
			item := items[l.ItemID]
			resLines[i] = entity.ReservationLine{
				ItemID:         l.ItemID,
				Quantity:       l.Quantity,
				UnitPriceCents: item.PriceCents,
				ItemName:       item.Name,
			}
		}

		reservationID := e.ids.NewID()
		newRes := &entity.Reservation{
			ID:        reservationID,
			OrderID:   orderID,
			UserID:    userID,
			Lines:     resLines,
			Status:    entity.ReservationActive,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
		}
		if err := e.uow.Reservations().Insert(txCtx, newRes); err != nil {
			return err
		}
		result = &Result{Success: true, ReservationID: reservationID}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errUnavailable) {
			e.recordOp("reserve", "unavailable", opStart)
			e.emitReservationFailed(ctx, orderID, result.Unavailable)
			return result, nil
		}
		e.recordOp("reserve", "error", opStart)
		return nil, txErr
	}

	e.recordOp("reserve", "success", opStart)
	e.emitReserved(ctx, orderID, resLines, now.Add(ttl))
	return result, nil
}

// recordOp reports a completed operation to the attached metrics
// collector, if any.
func (e *Engine) recordOp(operation, outcome string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveReservationOp(operation, outcome, time.Since(start))
	if outcome == "unavailable" {
		e.metrics.ReservationConflicts.WithLabelValues("insufficient_free_quantity").Inc()
	}
}

// rejectExistingActiveReservation enforces the precondition shared by
// Reserve: no Active or Confirmed reservation may already exist for
// orderID (spec.md §4.C).
func (e *Engine) rejectExistingActiveReservation(ctx context.Context, orderID string) error {
	existing, err := e.uow.Reservations().GetByOrder(ctx, orderID)
	if err != nil {
		if errkind.KindOf(err) == errkind.NotFound {
			return nil
		}
		return err
	}
	if existing.Status == entity.ReservationActive || existing.Status == entity.ReservationConfirmed {
		return errkind.Conflictf("reservation already exists for order %s", orderID)
	}
	return nil
}

// Confirm converts an Active reservation into a permanent decrement of
// AvailableQty (spec.md §4.C).
func (e *Engine) Confirm(ctx context.Context, orderID string) error {
	now := e.clock.Now()
	opStart := time.Now()
	err := e.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
		res, err := e.uow.Reservations().GetByOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if res.Status != entity.ReservationActive {
			return errkind.Conflictf("reservation for order %s is not active (status=%s)", orderID, res.Status)
		}
		for _, l := range res.Lines {
			if err := e.uow.Items().UpdateReservedQty(txCtx, l.ItemID, -l.Quantity, -l.Quantity); err != nil {
				return err
			}
		}
		res.Status = entity.ReservationConfirmed
		res.ConfirmedAt = &now
		return e.uow.Reservations().Update(txCtx, res)
	})
	if err != nil {
		e.recordOp("confirm", "error", opStart)
		return err
	}
	e.recordOp("confirm", "success", opStart)
	return nil
}

// Release returns a held quantity to free state without consuming
// stock (spec.md §4.C). Idempotent: releasing an already
// Released/Expired reservation is a no-op success.
func (e *Engine) Release(ctx context.Context, orderID string) error {
	now := e.clock.Now()
	opStart := time.Now()
	err := e.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
		res, err := e.uow.Reservations().GetByOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if res.Status == entity.ReservationReleased || res.Status == entity.ReservationExpired {
			return nil
		}
		if res.Status != entity.ReservationActive {
			return errkind.Conflictf("reservation for order %s cannot be released from status %s", orderID, res.Status)
		}
		for _, l := range res.Lines {
			if err := e.uow.Items().UpdateReservedQty(txCtx, l.ItemID, -l.Quantity, 0); err != nil {
				return err
			}
		}
		res.Status = entity.ReservationReleased
		res.ReleasedAt = &now
		return e.uow.Reservations().Update(txCtx, res)
	})
	if err != nil {
		e.recordOp("release", "error", opStart)
		return err
	}
	e.recordOp("release", "success", opStart)
	return nil
}

// SweepExpired reclaims up to 500 Active reservations whose TTL has
// passed as of now (spec.md §4.C, §5); any beyond that are left for
// the next call. It applies Release semantics to items
// and emitting exactly one order.reservation.expired event per
// reservation. Returns the number of reservations expired.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	candidates, err := e.uow.Reservations().ListExpiring(ctx, now, 500)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range candidates {
		orderID := candidate.OrderID
		var expiredOne bool

		txErr := e.uow.WithinTransaction(ctx, func(txCtx context.Context) error {
			fresh, err := e.uow.Reservations().GetByOrder(txCtx, orderID)
			if err != nil {
				return err
			}
			if !fresh.IsExpired(now) {
				return nil
			}
			for _, l := range fresh.Lines {
				if err := e.uow.Items().UpdateReservedQty(txCtx, l.ItemID, -l.Quantity, 0); err != nil {
					return err
				}
			}
			fresh.Status = entity.ReservationExpired
			released := now
			fresh.ReleasedAt = &released
			if err := e.uow.Reservations().Update(txCtx, fresh); err != nil {
				return err
			}
			expiredOne = true
			return nil
		})
		if txErr != nil {
			e.log.Error("sweep failed for reservation", "order_id", orderID, "reservation_id", candidate.ID, "error", txErr)
			continue
		}
		if !expiredOne {
			continue
		}
		expired++
		e.emitExpired(ctx, orderID, candidate.ID)
	}

	return expired, nil
}

func (e *Engine) emitReserved(ctx context.Context, orderID string, lines []entity.ReservationLine, expiresAt time.Time) {
	payloadLines := make([]eventbus.OrderLinePayload, len(lines))
	for i, l := range lines {
		payloadLines[i] = eventbus.OrderLinePayload{ItemID: l.ItemID, Quantity: l.Quantity, UnitPriceCents: int64(l.UnitPriceCents)}
	}
	err := e.publisher.Publish(ctx, eventbus.RoutingInventoryReserved, orderID, eventbus.RoutingInventoryReserved, eventbus.InventoryReservedPayload{
		OrderID:   orderID,
		ExpiresAt: expiresAt,
		Lines:     payloadLines,
	})
	if err != nil {
		e.log.Error("failed to publish inventory.reserved", "order_id", orderID, "error", err)
	}
}

func (e *Engine) emitReservationFailed(ctx context.Context, orderID string, unavailable []entity.UnavailableLine) {
	payloadLines := make([]eventbus.UnavailableLinePayload, len(unavailable))
	for i, u := range unavailable {
		payloadLines[i] = eventbus.UnavailableLinePayload{ItemID: u.ItemID, Requested: u.Requested, AvailableFree: u.AvailableFree}
	}
	err := e.publisher.Publish(ctx, eventbus.RoutingInventoryReservationFailed, orderID, eventbus.RoutingInventoryReservationFailed, eventbus.InventoryReservationFailedPayload{
		OrderID:     orderID,
		Reason:      "insufficient free quantity",
		Unavailable: payloadLines,
	})
	if err != nil {
		e.log.Error("failed to publish inventory.reservation.failed", "order_id", orderID, "error", err)
	}
}

func (e *Engine) emitExpired(ctx context.Context, orderID, reservationID string) {
	err := e.publisher.Publish(ctx, eventbus.RoutingOrderReservationExpired, orderID, eventbus.RoutingOrderReservationExpired, eventbus.OrderReservationExpiredPayload{
		OrderID:       orderID,
		ReservationID: reservationID,
	})
	if err != nil {
		e.log.Error("failed to publish order.reservation.expired", "order_id", orderID, "error", err)
	}
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return errkind.Validationf("reservation must have at least one line")
	}
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.ItemID == "" {
			return errkind.Validationf("line item id is required")
		}
		if l.Quantity <= 0 {
			return errkind.Validationf("line quantity must be positive, got %d for item %s", l.Quantity, l.ItemID)
		}
		if seen[l.ItemID] {
			return errkind.Validationf("duplicate item id %s in reservation lines", l.ItemID)
		}
		seen[l.ItemID] = true
	}
	return nil
}
