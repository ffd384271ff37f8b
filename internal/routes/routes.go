package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	"github.com/safesurf-vpn/safesurf-backend/internal/config"
	"github.com/safesurf-vpn/safesurf-backend/internal/handlers"
	"github.com/safesurf-vpn/safesurf-backend/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	webhookHandler *handlers.WebhookHandler,
	subscriptionHandler *handlers.SubscriptionHandler,
	feedHandler *handlers.FeedHandler,
	adminHandler *handlers.AdminHandler,
) {
	// The feed is polled by VPN clients on their own schedule, so it stays
	// outside the general API limiter.
	app.Get("/api/sub/:uuid", feedHandler.Serve)

	// Gateway callbacks retry in bursts and authenticate by signature and
	// source CIDR, not JWT, so they bypass the limiter too.
	app.Post("/api/webhooks/yookassa", webhookHandler.HandleYooKassa)

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Public catalog
	api.Get("/plans", subscriptionHandler.ListPlans)

	// Auth — public, with a stricter limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)

	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)

	// Subscription — protected
	api.Get("/subscription", middleware.JWTProtected(cfg), subscriptionHandler.Get)
	api.Post("/subscription/refresh", middleware.JWTProtected(cfg), subscriptionHandler.Refresh)
	api.Get("/subscription/url", middleware.JWTProtected(cfg), subscriptionHandler.GetURL)
	api.Post("/subscription/checkout", middleware.JWTProtected(cfg), subscriptionHandler.Checkout)

	// Admin
	admin := api.Group("/admin", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg))
	admin.Get("/panels", adminHandler.ListPanels)
	admin.Post("/panels", adminHandler.CreatePanel)
	admin.Put("/panels/:id", adminHandler.UpdatePanel)
	admin.Delete("/panels/:id", adminHandler.DeletePanel)
	admin.Post("/panels/:id/test", adminHandler.TestPanel)

	admin.Post("/plans", adminHandler.CreatePlan)
	admin.Put("/plans/:id", adminHandler.UpdatePlan)
	admin.Delete("/plans/:id", adminHandler.DeletePlan)

	admin.Get("/servers", adminHandler.ListServers)
	admin.Post("/servers", adminHandler.CreateServer)
	admin.Delete("/servers/:id", adminHandler.DeleteServer)

	admin.Get("/subscriptions", adminHandler.ListSubscriptions)
	admin.Put("/subscriptions/:id/status", adminHandler.UpdateSubscriptionStatus)
	admin.Post("/subscriptions/:id/extend", adminHandler.ExtendSubscription)

	admin.Get("/queue/stats", adminHandler.QueueStats)
}
