package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/internal/pkg/progress"
)

// HandleHome renders the landing page with cached site statistics.
func HandleHome(c *fiber.Ctx) error {
	go progress.UpdateCacheIfNeeded()

	stats := progress.GetSiteStats()

	return renderPage(c, "home", "", fiber.Map{
		"Flash":          flash.Get(c),
		"TotalUsers":     stats.TotalUsers,
		"TotalQuestions": stats.TotalQuestions,
		"TodayAttempts":  stats.TodayAttempts,
	})
}

func HandlePricing(c *fiber.Ctx) error {
	return renderPage(c, "pricing", "Pricing", fiber.Map{
		"Flash": flash.Get(c),
	})
}

func HandleAbout(c *fiber.Ctx) error {
	return renderPage(c, "about", "About", nil)
}
