package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/marketplace-backend/internal/checkout"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var redisPinger controllers.Pinger
	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		redisPinger = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Idempotency runs on the endpoint so the full route pattern is resolved.
	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleCustomer))
			r.Get("/", cartcontrollers.CartFetch(cartService, logg))
			r.Delete("/", cartcontrollers.CartClear(cartService, logg))
			r.Post("/items", cartcontrollers.CartAddItem(cartService, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(cartService, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(cartService, logg))
			r.Post("/coupons", cartcontrollers.CartApplyCoupon(cartService, logg))
			r.Delete("/coupons/{code}", cartcontrollers.CartRemoveCoupon(cartService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer), idempotent).
				Post("/", ordercontrollers.Create(checkoutService, logg))
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(ordersService, logg))
				r.Get("/history", ordercontrollers.History(ordersService, logg))
				r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer, enums.ActorRoleAdmin), idempotent).
					Put("/cancel", ordercontrollers.Cancel(ordersService, logg))
				r.With(middleware.RequireRole(logg, enums.ActorRoleVendor)).
					Patch("/vendor-status", ordercontrollers.VendorStatus(ordersService, logg))
				r.With(middleware.RequireRole(logg, enums.ActorRoleAdmin)).
					Put("/complete", ordercontrollers.Complete(ordersService, logg))
			})
		})
	})

	return r
}
