package controllers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/app/repository"
	"github.com/mkarst/CertForge/internal/pkg/ai"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/metrics"
	"github.com/mkarst/CertForge/internal/pkg/progress"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// HandleAttemptAnalysis generates (or re-serves) the AI study analysis for a
// completed attempt. Premium feature, gated by the route middleware.
func HandleAttemptAnalysis(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	quizRepo := repository.GetGlobalFactory().GetQuizRepository()

	attempt, err := quizRepo.GetAttemptWithAnswers(attemptIDParam(c))
	if err != nil || attempt.UserID != uc.UserID {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	fm := fiber.Map{
		"type": "error",
	}
	resultURL := fmt.Sprintf("/quiz/%d/result", attempt.ID)

	if !attempt.IsCompleted() {
		fm["message"] = "Finish the quiz before requesting an analysis."

		return flash.WithError(c, fm).Redirect(resultURL)
	}

	// One analysis per attempt; serve the stored one on repeat requests.
	if existing, err := quizRepo.GetAnalysis(attempt.ID); err == nil && existing != nil {
		return flash.WithSuccess(c, fiber.Map{
			"type":    "success",
			"message": "Analysis ready.",
		}).Redirect(resultURL)
	}

	client, err := ai.NewGeminiClientFromEnv(c.Context())
	if err != nil {
		log.Errorf("[Analysis] Gemini client unavailable: %v", err)
		metrics.AIAnalysisRequests.WithLabelValues("unavailable").Inc()
		fm["message"] = "Analysis is currently unavailable."

		return flash.WithError(c, fm).Redirect(resultURL)
	}

	topics, err := progress.GetTopicAccuracy(database.GetDB(), uc.UserID)
	if err != nil {
		log.Errorf("[Analysis] Failed to load topic accuracy for user %d: %v", uc.UserID, err)
		topics = nil
	}

	result, err := ai.NewAnalyzer(client).AnalyzeAttempt(c.Context(), attempt.Exam.Title, attempt.ScorePercent, topics)
	if err != nil {
		log.Errorf("[Analysis] Generation failed for attempt %d: %v", attempt.ID, err)
		metrics.AIAnalysisRequests.WithLabelValues("error").Inc()
		fm["message"] = "Analysis failed, please try again later."

		return flash.WithError(c, fm).Redirect(resultURL)
	}

	analysis := &models.AttemptAnalysis{
		AttemptID:      attempt.ID,
		Model:          client.Model(),
		Summary:        result.Summary,
		Recommendation: result.Recommendation,
	}
	if err := analysis.SetWeakTopics(result.WeakTopics); err != nil {
		log.Errorf("[Analysis] Failed to encode weak topics for attempt %d: %v", attempt.ID, err)
	}
	if err := quizRepo.SaveAnalysis(analysis); err != nil {
		log.Errorf("[Analysis] Failed to store analysis for attempt %d: %v", attempt.ID, err)
		metrics.AIAnalysisRequests.WithLabelValues("error").Inc()
		fm["message"] = "Analysis failed, please try again later."

		return flash.WithError(c, fm).Redirect(resultURL)
	}

	metrics.AIAnalysisRequests.WithLabelValues("success").Inc()

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Analysis ready.",
	}).Redirect(resultURL)
}
