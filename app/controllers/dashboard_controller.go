package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/app/repository"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/progress"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// HandleDashboard renders the study progress overview.
func HandleDashboard(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	userProgress, err := progress.GetUserProgress(database.GetDB(), uc.UserID)
	if err != nil {
		log.Errorf("[Dashboard] Failed to compute progress for user %d: %v", uc.UserID, err)
		userProgress = &progress.UserProgress{}
	}

	attempts, err := repository.GetGlobalFactory().GetQuizRepository().GetAttemptsByUser(uc.UserID, 0, 10)
	if err != nil {
		log.Errorf("[Dashboard] Failed to load attempts for user %d: %v", uc.UserID, err)
		attempts = nil
	}

	return renderPage(c, "dashboard", "Dashboard", fiber.Map{
		"Flash":          flash.Get(c),
		"Progress":       userProgress,
		"RecentAttempts": attempts,
	})
}
