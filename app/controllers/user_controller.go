package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// HandleUserSettings renders account settings including study preferences
// and the API key state. A freshly issued key is shown exactly once via
// flash data.
func HandleUserSettings(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	settings, err := models.GetOrCreateUserSettings(database.GetDB(), uc.UserID)
	if err != nil {
		log.Errorf("[User] Failed to load settings for user %d: %v", uc.UserID, err)
		return c.Status(fiber.StatusInternalServerError).Render("errors/500", fiber.Map{})
	}

	return renderPage(c, "user/settings", "Settings", fiber.Map{
		"Flash":    flash.Get(c),
		"Settings": settings,
	})
}

// HandleUserSettingsUpdate stores study preference changes.
func HandleUserSettingsUpdate(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	db := database.GetDB()

	fm := fiber.Map{
		"type": "error",
	}

	settings, err := models.GetOrCreateUserSettings(db, uc.UserID)
	if err != nil {
		fm["message"] = "Could not load your settings."

		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	if v, err := strconv.Atoi(c.FormValue("daily_goal")); err == nil && v > 0 && v <= 200 {
		settings.DailyQuestionGoal = v
	}
	settings.ReminderEmails = c.FormValue("reminder_emails") != ""

	if err := db.Save(settings).Error; err != nil {
		log.Errorf("[User] Failed to save settings for user %d: %v", uc.UserID, err)
		fm["message"] = "Saving failed, please try again."

		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "Settings saved.",
	}

	return flash.WithSuccess(c, fm).Redirect("/user/settings")
}

// HandleIssueAPIKey generates a fresh API key. The raw secret is only ever
// shown in the redirect flash; we store nothing but its hash.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	db := database.GetDB()

	fm := fiber.Map{
		"type": "error",
	}

	settings, err := models.GetOrCreateUserSettings(db, uc.UserID)
	if err != nil {
		fm["message"] = "Could not load your settings."

		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		log.Errorf("[User] Failed to issue API key for user %d: %v", uc.UserID, err)
		fm["message"] = "Key generation failed, please try again."

		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	if err := db.Save(settings).Error; err != nil {
		log.Errorf("[User] Failed to store API key for user %d: %v", uc.UserID, err)
		fm["message"] = "Key generation failed, please try again."

		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "API key created. Copy it now, it will not be shown again.",
		"api_key": rawKey,
	}

	return flash.WithSuccess(c, fm).Redirect("/user/settings")
}

// HandleRevokeAPIKey invalidates the current API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	db := database.GetDB()

	fm := fiber.Map{
		"type": "error",
	}

	settings, err := models.GetOrCreateUserSettings(db, uc.UserID)
	if err != nil {
		fm["message"] = "Could not load your settings."

		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	settings.RevokeAPIKey()
	if err := db.Save(settings).Error; err != nil {
		log.Errorf("[User] Failed to revoke API key for user %d: %v", uc.UserID, err)
		fm["message"] = "Revoking failed, please try again."

		return flash.WithError(c, fm).Redirect("/user/settings")
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "API key revoked.",
	}

	return flash.WithSuccess(c, fm).Redirect("/user/settings")
}
