package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/mkarst/CertForge/app/controllers"
	"github.com/mkarst/CertForge/internal/pkg/env"
	"github.com/mkarst/CertForge/internal/pkg/middleware"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/") || strings.HasPrefix(c.Path(), "/webhooks/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", loggedInMiddleware, controllers.HandleHome)
	group.Get("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Get("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Get("/activate", loggedInMiddleware, controllers.HandleAuthActivate)

	// Onboarding
	group.Get("/onboarding", middleware.RequireAuth, controllers.HandleOnboarding)
	group.Post("/onboarding", middleware.RequireAuth, controllers.HandleOnboarding)

	// Study surfaces
	group.Get("/dashboard", middleware.RequireAuth, middleware.RequireOnboarding, controllers.HandleDashboard)
	group.Get("/exams", loggedInMiddleware, controllers.HandleExamList)
	group.Get("/exam/:slug", loggedInMiddleware, controllers.HandleExamDetail)
	group.Post("/exam/:slug/start", middleware.RequireAuth, controllers.HandleQuizStart)
	group.Get("/quiz/:id", middleware.RequireAuth, controllers.HandleQuizQuestion)
	group.Post("/quiz/:id/answer", middleware.RequireAuth, controllers.HandleQuizAnswer)
	group.Get("/quiz/:id/complete", middleware.RequireAuth, controllers.HandleQuizComplete)
	group.Post("/quiz/:id/complete", middleware.RequireAuth, controllers.HandleQuizComplete)
	group.Get("/quiz/:id/result", middleware.RequireAuth, controllers.HandleQuizResult)

	// AI analysis, paid feature
	group.Post("/quiz/:id/analyze", middleware.RequireAuth, middleware.RequirePremium, controllers.HandleAttemptAnalysis)

	// User settings + membership
	group.Get("/user/settings", middleware.RequireAuth, controllers.HandleUserSettings)
	group.Post("/user/settings", middleware.RequireAuth, controllers.HandleUserSettingsUpdate)
	group.Post("/user/settings/api-key", middleware.RequireAuth, controllers.HandleIssueAPIKey)
	group.Post("/user/settings/api-key/revoke", middleware.RequireAuth, controllers.HandleRevokeAPIKey)
	group.Get("/user/settings/membership", middleware.RequireAuth, controllers.HandleMembership)
	group.Post("/user/settings/membership/resync", middleware.RequireAuth, controllers.HandleMembershipResync)

	// Admin content management
	group.Get("/admin/posts", middleware.RequireAdmin, controllers.HandleAdminPosts)
	group.Get("/admin/posts/create", middleware.RequireAdmin, controllers.HandleAdminPostEdit)
	group.Post("/admin/posts/store", middleware.RequireAdmin, controllers.HandleAdminPostStore)
	group.Get("/admin/posts/edit/:id", middleware.RequireAdmin, controllers.HandleAdminPostEdit)
	group.Post("/admin/posts/update/:id", middleware.RequireAdmin, controllers.HandleAdminPostStore)
	group.Post("/admin/posts/delete/:id", middleware.RequireAdmin, controllers.HandleAdminPostDelete)
	group.Get("/admin/pages", middleware.RequireAdmin, controllers.HandleAdminPages)
	group.Post("/admin/pages/store", middleware.RequireAdmin, controllers.HandleAdminPageStore)
	group.Post("/admin/pages/delete/:id", middleware.RequireAdmin, controllers.HandleAdminPageDelete)
}
