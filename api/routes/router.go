package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bookstore-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/bookstore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bookstore-backend/api/middleware"
	"github.com/angelmondragon/bookstore-backend/api/responses"
	"github.com/angelmondragon/bookstore-backend/internal/auth"
	"github.com/angelmondragon/bookstore-backend/internal/cart"
	"github.com/angelmondragon/bookstore-backend/internal/dashboard"
	"github.com/angelmondragon/bookstore-backend/internal/notifications"
	"github.com/angelmondragon/bookstore-backend/internal/orders"
	product "github.com/angelmondragon/bookstore-backend/internal/products"
	"github.com/angelmondragon/bookstore-backend/internal/users"
	"github.com/angelmondragon/bookstore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/metrics"
	"github.com/angelmondragon/bookstore-backend/pkg/redis"
)

// Dependencies are the services and stores the router mounts. Stripe fields
// stay nil when card payments are not configured.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	Idempotency redis.IdempotencyStore
	RateLimiter middleware.RateLimiterStore
	Readiness   map[string]controllers.Pinger
	HTTPMetrics *metrics.HTTPMetrics
	MetricsPage http.Handler

	Auth          auth.Service
	Users         users.Service
	Products      product.Service
	Cart          cart.Service
	Orders        orders.Service
	Notifications notifications.Service
	Dashboard     dashboard.Service

	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeSigner  webhookcontrollers.StripeSigner
	StripeGuard   webhookcontrollers.StripeWebhookGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(append([]string{cfg.Storefront.ClientURL, cfg.Storefront.AdminURL}, cfg.Storefront.AllowedOrigins...)...),
	)
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Middleware)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.MetricsPage != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsPage)
	}

	authenticate := middleware.Auth(cfg.JWT, cfg.Cookie.Name, logg)
	requireAdmin := middleware.RequireRole("admin", logg)
	idempotency := middleware.Idempotency(deps.Idempotency, logg)

	r.Group(func(r chi.Router) {
		for _, route := range Table(deps) {
			chain := []func(http.Handler) http.Handler{}
			if route.RateLimit != nil {
				chain = append(chain, middleware.AuthRateLimit(*route.RateLimit, deps.RateLimiter, logg))
			}
			switch route.Access {
			case AccessSession:
				chain = append(chain, authenticate)
			case AccessAdmin:
				chain = append(chain, authenticate, requireAdmin)
			}
			chain = append(chain, idempotency)
			r.With(chain...).Method(route.Method, route.Pattern, route.Handler)
		}
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responses.WriteError(req.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "Route not found"))
	})
	return r
}
