package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/safesurf-vpn/safesurf-backend/internal/config"
	"github.com/safesurf-vpn/safesurf-backend/internal/database"
	"github.com/safesurf-vpn/safesurf-backend/internal/handlers"
	"github.com/safesurf-vpn/safesurf-backend/internal/logging"
	"github.com/safesurf-vpn/safesurf-backend/internal/middleware"
	"github.com/safesurf-vpn/safesurf-backend/internal/queue"
	"github.com/safesurf-vpn/safesurf-backend/internal/routes"
	"github.com/safesurf-vpn/safesurf-backend/internal/services"
	"github.com/safesurf-vpn/safesurf-backend/internal/worker"
	"github.com/safesurf-vpn/safesurf-backend/internal/xui"
	"github.com/safesurf-vpn/safesurf-backend/internal/yookassa"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		slog.Error("redis connection failed", "error", err)
		os.Exit(1)
	}

	// Add the Postgres ERROR sink now that the database is up
	pgLogHandler := logging.SetupSinks(database.DB)

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cleanupDone)

	// Clients
	panelClient := xui.NewClient(cfg.PanelTimeout)
	paymentClient := yookassa.NewClient(cfg.YooKassaShopID, cfg.YooKassaSecretKey)

	// Provisioning queue and services
	jobs := queue.New(rdb, cfg.QueueWorkers, cfg.QueueMaxRetries)
	subscriptionService := services.NewSubscriptionService(database.DB, cfg, paymentClient, jobs)
	provisionService := services.NewProvisionService(database.DB, rdb, panelClient)
	panelService := services.NewPanelService(database.DB, panelClient)
	authService := services.NewAuthService(database.DB, cfg)

	jobs.Start(func(ctx context.Context, job *queue.Job) error {
		_, err := provisionService.EnsureProvisioned(ctx, job.SubscriptionID)
		return err
	})

	sweeper := worker.NewSweeper(subscriptionService, provisionService, rdb, cfg.SweepInterval)
	sweeper.Start()

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler(rdb)
	webhookHandler := handlers.NewWebhookHandler(cfg, subscriptionService)
	subscriptionHandler := handlers.NewSubscriptionHandler(cfg, database.DB, subscriptionService, provisionService)
	feedHandler := handlers.NewFeedHandler(cfg, subscriptionService, provisionService)
	adminHandler := handlers.NewAdminHandler(database.DB, panelService, subscriptionService, jobs)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    4 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, database.DB, authHandler, healthHandler, webhookHandler, subscriptionHandler, feedHandler, adminHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	sweeper.Stop()
	jobs.Stop()
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
