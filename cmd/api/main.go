package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bookstore-backend/api/controllers"
	"github.com/angelmondragon/bookstore-backend/api/routes"
	"github.com/angelmondragon/bookstore-backend/internal/activity"
	"github.com/angelmondragon/bookstore-backend/internal/auth"
	"github.com/angelmondragon/bookstore-backend/internal/cart"
	"github.com/angelmondragon/bookstore-backend/internal/dashboard"
	"github.com/angelmondragon/bookstore-backend/internal/notifications"
	"github.com/angelmondragon/bookstore-backend/internal/orders"
	product "github.com/angelmondragon/bookstore-backend/internal/products"
	"github.com/angelmondragon/bookstore-backend/internal/users"
	stripewebhook "github.com/angelmondragon/bookstore-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/bookstore-backend/pkg/config"
	"github.com/angelmondragon/bookstore-backend/pkg/db"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/mailer"
	"github.com/angelmondragon/bookstore-backend/pkg/metrics"
	"github.com/angelmondragon/bookstore-backend/pkg/migrate"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/redis"
	"github.com/angelmondragon/bookstore-backend/pkg/storage/gcs"
	pkgstripe "github.com/angelmondragon/bookstore-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	stripeWebhookTTL  = 72 * time.Hour
	stripeWebhookName = "stripe-webhook"
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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
		"gcs":   nil,
	}

	var images product.ImageStore
	if cfg.GCS.Enabled() {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return err
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing gcs client", err)
			}
		}()
		images = gcsClient
		readiness["gcs"] = gcsClient
	}

	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	productRepo := product.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	sender := mailer.New(cfg.Sendgrid, logg)

	activityService, err := activity.NewService(activity.NewRepository(conn), logg)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Users:          userRepo,
		Tx:             dbClient,
		Activity:       activityService,
		Outbox:         emitter,
		Mailer:         sender,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		ClientURL:      cfg.Storefront.ClientURL,
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceParams{
		Repo:           userRepo,
		Tx:             dbClient,
		Activity:       activityService,
		Outbox:         emitter,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return err
	}

	productService, err := product.NewService(productRepo, images, logg)
	if err != nil {
		return err
	}

	cartService, err := cart.NewService(userRepo, productRepo)
	if err != nil {
		return err
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		return err
	}

	deliveryFee, err := cfg.Storefront.DeliveryFeeAmount()
	if err != nil {
		return err
	}

	var (
		checkout     pkgstripe.CheckoutSessions
		stripeClient *pkgstripe.Client
	)
	if cfg.Stripe.Enabled() {
		stripeClient, err = pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return err
		}
		checkout = pkgstripe.NewCheckoutSessions(stripeClient)
	}

	orderRepo := orders.NewRepository(conn)
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:        orderRepo,
		Users:       userRepo,
		Products:    productRepo,
		Tx:          dbClient,
		Activity:    activityService,
		Outbox:      emitter,
		Checkout:    checkout,
		DeliveryFee: deliveryFee,
		ClientURL:   cfg.Storefront.ClientURL,
		Logger:      logg,
	})
	if err != nil {
		return err
	}

	dashboardService, err := dashboard.NewService(orderRepo, userRepo, activityService)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := routes.Dependencies{
		Config:        cfg,
		Logger:        logg,
		Idempotency:   redisClient,
		RateLimiter:   redisClient,
		Readiness:     readiness,
		HTTPMetrics:   metrics.NewHTTPMetrics(registry),
		MetricsPage:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Auth:          authService,
		Users:         userService,
		Products:      productService,
		Cart:          cartService,
		Orders:        orderService,
		Notifications: notificationService,
		Dashboard:     dashboardService,
	}
	if err := wireStripeWebhook(&deps, stripeClient, orderService, redisClient, cfg, logg); err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"stripe": stripeClient.Environment(),
	})
	logg.Info(serverCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(serverCtx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// wireStripeWebhook leaves the webhook dependencies as untyped nils when card
// payments are disabled so the controller reports 503.
func wireStripeWebhook(deps *routes.Dependencies, client *pkgstripe.Client, orderService orders.Service, store redis.IdempotencyStore, cfg *config.Config, logg *logger.Logger) error {
	if client == nil {
		return nil
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders: orderService,
		Logger: logg,
	})
	if err != nil {
		return err
	}
	ttl := cfg.Eventing.WebhookIdempotencyTTL
	if ttl <= 0 {
		ttl = stripeWebhookTTL
	}
	guard, err := stripewebhook.NewIdempotencyGuard(store, ttl, stripeWebhookName)
	if err != nil {
		return err
	}
	deps.StripeWebhook = webhookService
	deps.StripeGuard = guard
	deps.StripeSigner = client
	return nil
}

