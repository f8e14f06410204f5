// Package health exposes the ambient liveness/readiness HTTP surface
// (spec.md §6 "health check endpoints"), adapted from the teacher's
// pkg/health to ping the one Mongo client it is given (the Item &
// Reservation store's, in cmd/coreservice) and to check the AMQP
// broker connection, instead of the teacher's Cassandra/Kafka checks.
package health

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

// Check is one named health probe.
type Check func(ctx context.Context) error

// Health aggregates readiness probes and serves the health endpoints.
// It deliberately has no knowledge of the command/query REST
// controller surface spec.md excludes — only liveness/readiness.
type Health struct {
	logger    logger.Logger
	startTime time.Time
	mongo     *mongo.Client
	broker    *amqp.Connection
	checks    map[string]Check
}

func NewHealth(log logger.Logger, mongoClient *mongo.Client, broker *amqp.Connection) *Health {
	h := &Health{
		logger:    log,
		startTime: time.Now(),
		mongo:     mongoClient,
		broker:    broker,
		checks:    make(map[string]Check),
	}
	h.RegisterCheck("mongo", h.checkMongo)
	h.RegisterCheck("broker", h.checkBroker)
	return h
}

func (h *Health) RegisterCheck(name string, check Check) {
	h.checks[name] = check
}

func (h *Health) GetHandlers() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		"/health":       h.HealthHandler,
		"/health/ready": h.ReadinessHandler,
		"/health/live":  h.LivenessHandler,
		"/health/info":  h.InfoHandler,
	}
}

func (h *Health) checkMongo(ctx context.Context) error {
	if h.mongo == nil {
		return errors.New("mongo client not initialized")
	}
	return h.mongo.Ping(ctx, readpref.Primary())
}

func (h *Health) checkBroker(ctx context.Context) error {
	if h.broker == nil {
		return errors.New("broker connection not initialized")
	}
	if h.broker.IsClosed() {
		return errors.New("broker connection is closed")
	}
	return nil
}

func (h *Health) runChecks(ctx context.Context) map[string]error {
	results := make(map[string]error, len(h.checks))
	for name, check := range h.checks {
		results[name] = check(ctx)
	}
	return results
}

func (h *Health) HealthHandler(c *fiber.Ctx) error {
	results := h.runChecks(c.Context())
	allPassed := true
	details := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			allPassed = false
			details[name] = "down"
			continue
		}
		details[name] = "up"
	}

	status := "up"
	if !allPassed {
		status = "degraded"
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(fiber.Map{"status": status, "details": details})
}

func (h *Health) ReadinessHandler(c *fiber.Ctx) error {
	results := h.runChecks(c.Context())
	for _, err := range results {
		if err != nil {
			c.Status(fiber.StatusServiceUnavailable)
			return c.JSON(fiber.Map{"status": "not ready"})
		}
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (h *Health) LivenessHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

func (h *Health) InfoHandler(c *fiber.Ctx) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return c.JSON(fiber.Map{
		"service":     "tcg-order-core",
		"start_time":  h.startTime.Format(time.RFC3339),
		"uptime":      time.Since(h.startTime).String(),
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"heap_alloc":  memStats.Alloc,
		"heap_objects": memStats.HeapObjects,
	})
}
