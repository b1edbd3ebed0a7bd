package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wovera/storefront-backend/api/routes"
	"github.com/wovera/storefront-backend/internal/catalog"
	checkoutsvc "github.com/wovera/storefront-backend/internal/checkout"
	"github.com/wovera/storefront-backend/internal/customers"
	"github.com/wovera/storefront-backend/internal/logistics"
	logisticsproviders "github.com/wovera/storefront-backend/internal/logistics/providers"
	"github.com/wovera/storefront-backend/internal/logistics/providers/swiftship"
	"github.com/wovera/storefront-backend/internal/notifications"
	"github.com/wovera/storefront-backend/internal/orders"
	"github.com/wovera/storefront-backend/internal/payments"
	paymentproviders "github.com/wovera/storefront-backend/internal/payments/providers"
	"github.com/wovera/storefront-backend/internal/payments/providers/cod"
	"github.com/wovera/storefront-backend/internal/payments/providers/paywave"
	"github.com/wovera/storefront-backend/internal/stock"
	"github.com/wovera/storefront-backend/pkg/config"
	"github.com/wovera/storefront-backend/pkg/db"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/metrics"
	"github.com/wovera/storefront-backend/pkg/migrate"
	"github.com/wovera/storefront-backend/pkg/outbox"
	"github.com/wovera/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gormDB := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	catalogSvc, err := catalog.NewService(catalog.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	ledger, err := stock.NewLedger(stock.NewRepository(gormDB), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stock ledger", err)
		os.Exit(1)
	}

	customersSvc, err := customers.NewService(customers.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create customers service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersSvc, err := orders.NewService(ordersRepo, dbClient, outboxSvc, stock.NewTxMutator())
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	paywaveAdapter, err := paywave.NewAdapter(cfg.Paywave, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create paywave adapter", err)
		os.Exit(1)
	}
	paymentsRepo := payments.NewRepository(gormDB)
	paymentEngine, err := payments.NewEngine(
		paymentsRepo,
		ordersSvc,
		[]paymentproviders.Adapter{paywaveAdapter, cod.NewAdapter()},
		redisClient,
		cfg.Eventing.WebhookIdempotencyTTL,
		dbClient,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment engine", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkoutsvc.NewService(
		catalogSvc,
		ledger,
		ordersRepo,
		customersSvc,
		paymentEngine,
		dbClient,
		outboxSvc,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	swiftshipAdapter, err := swiftship.NewAdapter(cfg.Swiftship, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create swiftship adapter", err)
		os.Exit(1)
	}
	shipmentsRepo := logistics.NewRepository(gormDB)
	tracker, err := logistics.NewTracker(
		shipmentsRepo,
		[]logisticsproviders.Adapter{swiftshipAdapter},
		paymentEngine,
		ordersSvc,
		redisClient,
		cfg.Eventing.WebhookIdempotencyTTL,
		dbClient,
		outboxSvc,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create logistics tracker", err)
		os.Exit(1)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			WebhookMetrics: metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
			Catalog:        catalogSvc,
			Stock:          ledger,
			Checkout:       checkoutSvc,
			Orders:         ordersSvc,
			PaymentEngine:  paymentEngine,
			PaymentsRepo:   paymentsRepo,
			Tracker:        tracker,
			ShipmentsRepo:  shipmentsRepo,
			Notifications:  notificationsSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
