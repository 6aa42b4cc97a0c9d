package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/app/repository"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/entitlements"
	"github.com/mkarst/CertForge/internal/pkg/progress"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// HandleGetUserAccount returns account information for the authenticated user (API key or session).
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user"})
	}

	db := database.GetDB()
	if db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
	}
	settings, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load user settings"})
	}

	userProgress, err := progress.GetUserProgress(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load progress"})
	}

	ent, err := entitlements.GetResolver().Resolve(userCtx.UserID)
	if err != nil {
		ent = entitlements.Free()
	}

	response := fiber.Map{
		"id":                  account.ID,
		"name":                account.Name,
		"email":               account.Email,
		"role":                account.Role,
		"status":              account.Status,
		"plan":                settings.Plan,
		"is_subscribed":       ent.IsSubscribed,
		"target_exam_id":      settings.TargetExamID,
		"daily_question_goal": settings.DailyQuestionGoal,
		"questions_answered":  userProgress.QuestionsAnswered,
		"accuracy_percent":    userProgress.AccuracyPercent,
		"streak_days":         userProgress.StreakDays,
		"created_at":          account.CreatedAt,
	}
	if settings.HasActiveAPIKey() {
		response["api_key_prefix"] = settings.APIKeyPrefix
		response["api_key_last_used_at"] = settings.APIKeyLastUsedAt
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// HandleGetUserEntitlement returns the computed entitlement flags.
func HandleGetUserEntitlement(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	ent, err := entitlements.GetResolver().Resolve(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to resolve entitlement"})
	}

	return c.Status(fiber.StatusOK).JSON(ent)
}

// HandleGetUserAttempts lists the authenticated user's quiz attempts.
func HandleGetUserAttempts(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	attempts, err := repository.GetGlobalFactory().GetQuizRepository().GetAttemptsByUser(userCtx.UserID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load attempts"})
	}

	items := make([]fiber.Map, 0, len(attempts))
	for _, a := range attempts {
		items = append(items, fiber.Map{
			"id":             a.ID,
			"exam_id":        a.ExamID,
			"started_at":     a.StartedAt,
			"completed_at":   a.CompletedAt,
			"question_count": a.QuestionCount,
			"correct_count":  a.CorrectCount,
			"score_percent":  a.ScorePercent,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"attempts": items,
		"count":    len(items),
		"offset":   offset,
	})
}
