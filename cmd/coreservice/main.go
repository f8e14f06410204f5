// cmd/coreservice/main.go
package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hydr0g3nz/tcg_order_core/internal/config"
	catalogmongo "github.com/hydr0g3nz/tcg_order_core/internal/catalog/mongo"
	"github.com/hydr0g3nz/tcg_order_core/internal/eventbus"
	"github.com/hydr0g3nz/tcg_order_core/internal/metrics"
	"github.com/hydr0g3nz/tcg_order_core/internal/order"
	ordermongo "github.com/hydr0g3nz/tcg_order_core/internal/order/mongo"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/clock"
	"github.com/hydr0g3nz/tcg_order_core/internal/platform/idgen"
	"github.com/hydr0g3nz/tcg_order_core/internal/reservation"
	"github.com/hydr0g3nz/tcg_order_core/pkg/health"
	applogger "github.com/hydr0g3nz/tcg_order_core/pkg/logger"
	"github.com/hydr0g3nz/tcg_order_core/pkg/middleware"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := applogger.NewZapLogger()
	log.Info("starting tcg order core")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	itemDB := mustConnectMongo(ctx, cfg.Store.ItemStoreURL, log, "item store")
	orderDB := mustConnectMongo(ctx, cfg.Store.OrderStoreURL, log, "order store")
	defer itemDB.Client().Disconnect(context.Background())
	defer orderDB.Client().Disconnect(context.Background())

	m := metrics.New()

	ids := idgen.UUIDGenerator{}
	realClock := clock.RealClock{}

	dedup := eventbus.NewMongoDedup(orderDB, cfg.EventDedupWindow)
	if err := dedup.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to ensure dedup indexes", "error", err)
	}

	bus, err := eventbus.Dial(eventbus.Config{
		Host:           cfg.Broker.Host,
		Port:           cfg.Broker.Port,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		VHost:          cfg.Broker.VHost,
		Exchange:       cfg.Broker.Exchange,
		PublishTimeout: cfg.PublishTimeout,
	}, dedup, ids, log)
	if err != nil {
		log.Fatal("failed to dial broker", "error", err)
	}
	bus.WithMetrics(m)
	defer bus.Close()

	uow := catalogmongo.NewUnitOfWork(itemDB.Client(), itemDB)
	if err := uow.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to ensure item/reservation store indexes", "error", err)
	}

	orderRepo := ordermongo.NewOrderRepository(orderDB)
	if err := orderRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("failed to ensure order store indexes", "error", err)
	}

	engine := reservation.NewEngine(uow, realClock, ids, bus, log, cfg.Reservation.DefaultTTL).WithMetrics(m)
	sweeper := reservation.NewSweeper(engine, cfg.Reservation.SweepInterval, log).WithMetrics(m)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	orchestrator := order.NewOrchestrator(orderRepo, bus, realClock, ids, log, cfg.TaxRateBasisPoints).WithMetrics(m)

	subscribeHandlers(ctx, bus, orchestrator, engine, log)

	brokerConn := dialBrokerForHealth(cfg, log)
	if brokerConn != nil {
		defer brokerConn.Close()
	}

	httpApp := newHTTPApp(health.NewHealth(log, itemDB.Client(), brokerConn), log)
	go func() {
		log.Info("starting health/metrics HTTP server", "addr", cfg.HTTPAddress)
		if err := httpApp.Listen(cfg.HTTPAddress); err != nil {
			log.Error("http server stopped", "error", err)
		}
	}()

	waitForShutdown(httpApp, log)
}

func mustConnectMongo(ctx context.Context, uri string, log applogger.Logger, name string) *mongo.Database {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatal("failed to connect to mongo", "store", name, "error", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		log.Fatal("failed to ping mongo", "store", name, "error", err)
	}
	log.Info("connected to mongo", "store", name)
	return client.Database(databaseNameFromURI(uri))
}

// databaseNameFromURI extracts the database name from the path segment
// of a mongodb:// connection string (e.g. "mongodb://host/orders" ->
// "orders").
func databaseNameFromURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Path, "/")
}

// dialBrokerForHealth opens a second lightweight connection dedicated
// to the health handler's IsClosed probe, kept independent from the
// Bus's own connection so a health check never contends with the
// publish/consume channel.
func dialBrokerForHealth(cfg *config.Config, log applogger.Logger) *amqp.Connection {
	url := "amqp://" + cfg.Broker.Username + ":" + cfg.Broker.Password + "@" + cfg.Broker.Host + ":" + cfg.Broker.Port + "/" + cfg.Broker.VHost
	conn, err := amqp.Dial(url)
	if err != nil {
		log.Warn("health broker connection failed, readiness checks will report broker down", "error", err)
		return nil
	}
	return conn
}

// subscribeHandlers wires every asynchronous collaborator event to its
// handler (spec.md §4.D order-side, §4.C reservation-side).
func subscribeHandlers(ctx context.Context, bus *eventbus.Bus, orchestrator *order.Orchestrator, engine *reservation.Engine, log applogger.Logger) {
	subscriptions := []struct {
		pattern string
		handler eventbus.Handler
	}{
		{eventbus.RoutingPaymentProcessed, orchestrator.HandlePaymentProcessed},
		{eventbus.RoutingInventoryReserved, orchestrator.HandleInventoryReserved},
		{eventbus.RoutingInventoryReservationFailed, orchestrator.HandleInventoryReservationFailed},
		{eventbus.RoutingShippingRateCalculated, orchestrator.HandleShippingRateCalculated},
		{eventbus.RoutingDeliveryConfirmed, orchestrator.HandleDeliveryConfirmed},
		{eventbus.RoutingOrderCancelled, engine.HandleOrderCancelled},
		{eventbus.RoutingOrderDelivered, engine.HandleOrderDelivered},
	}

	for _, sub := range subscriptions {
		if err := bus.Subscribe(ctx, sub.pattern, sub.handler); err != nil {
			log.Fatal("failed to subscribe", "pattern", sub.pattern, "error", err)
		}
	}
}

func newHTTPApp(h *health.Health, log applogger.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			log.Error("http error", "status", code, "error", err.Error())
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.CorrelationID(log))
	app.Use(middleware.RequestLogger(log))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, err interface{}) {
			log.Error("recovered from panic", "error", err, "stack", string(debug.Stack()))
			c.Status(fiber.StatusInternalServerError).SendString("internal server error")
		},
	}))

	for path, handler := range h.GetHandlers() {
		app.Get(path, handler)
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

func waitForShutdown(app *fiber.App, log applogger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		log.Error("error during http server shutdown", "error", err)
	}
	log.Info("shutdown complete")
}
