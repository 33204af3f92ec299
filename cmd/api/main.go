package main

// @title ZapTask Billing API
// @version 1.0
// @description Subscription lifecycle and entitlement API for ZapTask workspaces.

// @contact.name API Support
// @contact.url https://zaptask.io/support
// @contact.email support@zaptask.io

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zaptask/zaptask/config"
	"github.com/zaptask/zaptask/pkg/api/handlers"
	custommw "github.com/zaptask/zaptask/pkg/api/middleware"
	"github.com/zaptask/zaptask/pkg/auth"
	"github.com/zaptask/zaptask/pkg/billing"
	"github.com/zaptask/zaptask/pkg/cache"
	"github.com/zaptask/zaptask/pkg/database"
	"github.com/zaptask/zaptask/pkg/email"
	"github.com/zaptask/zaptask/pkg/jobs"
	"github.com/zaptask/zaptask/pkg/logger"
	"github.com/zaptask/zaptask/pkg/metrics"
	custommiddleware "github.com/zaptask/zaptask/pkg/middleware"
	"github.com/zaptask/zaptask/pkg/plan"
	"github.com/zaptask/zaptask/pkg/storage"
)

func main() {
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	appLog := logger.New(cfg.LogLevel)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// The plan catalog validates Stripe price configuration; a misconfigured
	// price map must never reach production traffic.
	catalog, err := plan.BuildCatalog(plan.PriceIDs{
		Midi:        cfg.PriceMidi,
		Maxi:        cfg.PriceMaxi,
		Business:    cfg.PriceBusiness,
		LTDSolo:     cfg.PriceLTDSolo,
		LTDTeam:     cfg.PriceLTDTeam,
		LTDAgency:   cfg.PriceLTDAgency,
		LTDBusiness: cfg.PriceLTDBusiness,
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx := context.Background()

	// Database
	db, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}
	log.Printf("✅ Database migrations applied")

	// Redis cache
	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// JWT blacklist backs forced logout on entitlement denial
	tokenBlacklist := auth.NewTokenBlacklist(redisClient)

	// Email service
	emailService := email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.SendGridAPIKey)

	// Billing services
	store := storage.NewStore(db.Pool)
	store.SetMetrics(prometheusMetrics)

	// Sample pool usage for the connections gauge
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			prometheusMetrics.UpdateDBConnections(float64(db.Pool.Stat().AcquiredConns()))
		}
	}()
	provider := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.CheckoutSuccessURL,
		CancelURL:     cfg.CheckoutCancelURL,
	})

	orchestrator := billing.NewOrchestrator(store, store, catalog, provider, appLog)

	reconciler := billing.NewReconciler(store, catalog, provider, appLog, cfg.FrontendURL)
	reconciler.SetEmailSender(emailService)
	reconciler.SetMetrics(prometheusMetrics)

	sweeper := billing.NewSweeper(store, catalog, provider, appLog)
	sweeper.SetMetrics(prometheusMetrics)

	// Cron: hourly sweep of due scheduled changes
	cronManager := jobs.NewCronManager(sweeper, log.Default())
	if err := cronManager.SetupJobs(); err != nil {
		log.Fatalf("❌ Failed to set up cron jobs: %v", err)
	}
	cronManager.Start()

	// Echo
	e := echo.New()
	e.HideBanner = true

	// Rate limiters
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	planRateLimiter := custommiddleware.NewPlanRateLimiter()
	webhookRateLimiter := custommiddleware.NewRateLimiter(100, 20) // Stripe retries bursts

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig()))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.SecurityHeadersConfig{}))
	e.Use(globalRateLimiter.RateLimitMiddleware())

	// Health endpoints (public)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "ZapTask Billing API",
			"version":     "1.0.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}
		if _, err := redisClient.Redis.Ping(c.Request().Context()).Result(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
			"cache":    "up",
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Handlers
	billingHandler := handlers.NewBillingHandler(orchestrator, provider, reconciler, store, store, catalog, appLog, cfg.FrontendURL)
	billingHandler.SetMetrics(prometheusMetrics)

	entitlementGate := custommiddleware.NewEntitlementGate(store, store, tokenBlacklist, appLog)
	entitlementGate.SetMetrics(prometheusMetrics)

	v1 := e.Group("/api/v1")

	// Public routes
	v1.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "pong"})
	})
	v1.GET("/billing/pricing", billingHandler.GetPricing)
	// Stripe webhook with its own rate budget, signature-verified inside
	v1.POST("/webhooks/stripe", billingHandler.HandleWebhook, webhookRateLimiter.RateLimitMiddleware())

	// Authenticated routes
	authed := v1.Group("")
	authed.Use(custommw.JWTMiddlewareWithBlacklist(cfg.JWTSecret, tokenBlacklist))
	authed.Use(planRateLimiter.Middleware())

	billingGroup := authed.Group("/billing")
	{
		billingGroup.POST("/plan", billingHandler.ChangePlan)
		billingGroup.POST("/redeem", billingHandler.Redeem)
		billingGroup.GET("/entitlements", billingHandler.GetEntitlements)
		billingGroup.POST("/portal", billingHandler.CreatePortalSession)
	}

	// Settings behind the entitlement gate: over-limit workspaces get their
	// session revoked here.
	settingsGroup := authed.Group("/companies", entitlementGate.Middleware())
	{
		settingsGroup.PATCH("/settings", billingHandler.UpdateSettings)
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 ZapTask Billing API starting on %s", address)
	log.Printf("📝 Log level: %s", cfg.LogLevel)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d), webhook 100/min", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("⏰ Cron jobs: hourly scheduled-change sweep, daily 4AM pending stats")

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	cronManager.Stop()
	log.Println("✅ Cron jobs stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
