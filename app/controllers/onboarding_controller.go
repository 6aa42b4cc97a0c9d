package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/app/repository"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/session"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// HandleOnboarding lets a fresh user pick a target exam and a daily goal.
func HandleOnboarding(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	if c.Method() == fiber.MethodPost {
		fm := fiber.Map{
			"type": "error",
		}

		examID, err := strconv.ParseUint(c.FormValue("target_exam_id"), 10, 64)
		if err != nil || examID == 0 {
			fm["message"] = "Please pick a target exam."

			return flash.WithError(c, fm).Redirect("/onboarding")
		}
		if _, err := repository.GetGlobalFactory().GetExamRepository().GetByID(uint(examID)); err != nil {
			fm["message"] = "Please pick a valid target exam."

			return flash.WithError(c, fm).Redirect("/onboarding")
		}

		goal := 10
		if v, err := strconv.Atoi(c.FormValue("daily_goal")); err == nil && v > 0 && v <= 200 {
			goal = v
		}

		db := database.GetDB()
		settings, err := models.GetOrCreateUserSettings(db, uc.UserID)
		if err != nil {
			log.Errorf("[Onboarding] Failed to load settings for user %d: %v", uc.UserID, err)
			fm["message"] = "Something went wrong, please try again."

			return flash.WithError(c, fm).Redirect("/onboarding")
		}

		settings.TargetExamID = uint(examID)
		settings.DailyQuestionGoal = goal
		settings.ReminderEmails = c.FormValue("reminder_emails") != ""
		if err := db.Save(settings).Error; err != nil {
			log.Errorf("[Onboarding] Failed to save settings for user %d: %v", uc.UserID, err)
			fm["message"] = "Something went wrong, please try again."

			return flash.WithError(c, fm).Redirect("/onboarding")
		}

		if err := db.Model(&models.User{}).Where("id = ?", uc.UserID).
			Update("onboarding_completed", true).Error; err != nil {
			log.Errorf("[Onboarding] Failed to flag user %d as onboarded: %v", uc.UserID, err)
		}
		_ = session.SetSessionValue(c, USER_ONBOARDED, "1")

		fm = fiber.Map{
			"type":    "success",
			"message": "You're all set. Time for your first quiz!",
		}

		return flash.WithSuccess(c, fm).Redirect("/dashboard")
	}

	exams, err := repository.GetGlobalFactory().GetExamRepository().GetPublished()
	if err != nil {
		log.Errorf("[Onboarding] Failed to load exams: %v", err)
		exams = nil
	}

	return renderPage(c, "onboarding", "Get started", fiber.Map{
		"Flash": flash.Get(c),
		"Exams": exams,
	})
}
