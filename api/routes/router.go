package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wovera/storefront-backend/api/controllers"
	webhookcontrollers "github.com/wovera/storefront-backend/api/controllers/webhooks"
	"github.com/wovera/storefront-backend/api/middleware"
	"github.com/wovera/storefront-backend/internal/catalog"
	checkoutsvc "github.com/wovera/storefront-backend/internal/checkout"
	"github.com/wovera/storefront-backend/internal/logistics"
	"github.com/wovera/storefront-backend/internal/logistics/providers/swiftship"
	"github.com/wovera/storefront-backend/internal/notifications"
	"github.com/wovera/storefront-backend/internal/orders"
	"github.com/wovera/storefront-backend/internal/payments"
	"github.com/wovera/storefront-backend/internal/payments/providers/paywave"
	"github.com/wovera/storefront-backend/internal/stock"
	"github.com/wovera/storefront-backend/pkg/config"
	"github.com/wovera/storefront-backend/pkg/db"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/metrics"
	"github.com/wovera/storefront-backend/pkg/redis"
)

const (
	paywaveSignatureHeader   = "X-Paywave-Signature"
	swiftshipSignatureHeader = "X-Swiftship-Signature"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          *redis.Client
	WebhookMetrics *metrics.WebhookMetrics

	Catalog       catalog.Service
	Stock         stock.Ledger
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	PaymentEngine payments.Engine
	PaymentsRepo  payments.Repository
	Tracker       logistics.Tracker
	ShipmentsRepo logistics.Repository
	Notifications notifications.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments/paywave", webhookcontrollers.PaymentWebhook(
			deps.PaymentEngine, paywave.ProviderName, paywaveSignatureHeader, deps.WebhookMetrics, logg))
		r.Post("/shipments/swiftship", webhookcontrollers.ShipmentWebhook(
			deps.Tracker, swiftship.ProviderName, swiftshipSignatureHeader, deps.WebhookMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.StoreContext(logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(deps.Catalog, logg))
			r.Get("/{productID}", controllers.GetProduct(deps.Catalog, logg))
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/", controllers.StockAvailability(deps.Stock, logg))
			r.Put("/{productID}", controllers.Restock(deps.Stock, logg))
		})

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderID}/transition", controllers.TransitionOrder(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.Orders, logg))
			r.Post("/{orderID}/notes", controllers.AddOrderNote(deps.Orders, logg))
			r.Get("/{orderID}/shipments", controllers.ListOrderShipments(deps.ShipmentsRepo, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/{transactionID}", controllers.GetTransaction(deps.PaymentsRepo, logg))
			r.Post("/{transactionID}/verify", controllers.VerifyTransaction(deps.PaymentEngine, logg))
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Post("/", controllers.CreateShipment(deps.Tracker, logg))
			r.Post("/rates", controllers.QuoteShippingRate(deps.Tracker, logg))
			r.Get("/{shipmentID}", controllers.GetShipment(deps.Tracker, logg))
			r.Get("/{shipmentID}/tracking", controllers.ShipmentTracking(deps.Tracker, logg))
			r.Post("/{shipmentID}/cancel", controllers.CancelShipment(deps.Tracker, logg))
			r.Post("/{shipmentID}/collect-cod", controllers.CollectCOD(deps.Tracker, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
		})
	})

	return r
}
