package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mkarst/CertForge/app/controllers"
	"github.com/mkarst/CertForge/internal/pkg/metrics"
	"github.com/mkarst/CertForge/internal/pkg/middleware"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Public marketing + content pages
	app.Get("/about", loggedInMiddleware, controllers.HandleAbout)
	app.Get("/pricing", loggedInMiddleware, controllers.HandlePricing)
	app.Get("/blog", loggedInMiddleware, controllers.HandleBlogIndex)
	app.Get("/blog/:slug", loggedInMiddleware, controllers.HandleBlogPost)
	app.Get("/page/:slug", loggedInMiddleware, controllers.HandlePage)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Social OAuth
	app.Get("/auth/:provider", controllers.HandleOAuthBegin)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/lemonsqueezy", controllers.HandleLemonSqueezyWebhook)
	app.Post("/webhooks/polar", controllers.HandlePolarWebhook)

	// Identity provider webhook
	app.Post("/webhooks/identity", controllers.HandleIdentityWebhook)

	// Prometheus scrape endpoint
	app.Get("/metrics", metrics.Handler())
}
