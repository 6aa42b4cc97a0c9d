package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/app/repository"
	"github.com/mkarst/CertForge/internal/pkg/cache"
	"github.com/mkarst/CertForge/internal/pkg/constants"
	"github.com/mkarst/CertForge/internal/pkg/entitlements"
	"github.com/mkarst/CertForge/internal/pkg/metrics"
	"github.com/mkarst/CertForge/internal/pkg/metrics/counter"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

const (
	defaultQuizLength       = 10
	attemptQuestionCacheTTL = 24 * time.Hour
)

func attemptQuestionsCacheKey(attemptID uint) string {
	return fmt.Sprintf("quiz:attempt:%d:questions", attemptID)
}

// HandleExamList shows all published exams.
func HandleExamList(c *fiber.Ctx) error {
	exams, err := repository.GetGlobalFactory().GetExamRepository().GetPublished()
	if err != nil {
		log.Errorf("[Quiz] Failed to load exams: %v", err)
		exams = nil
	}

	return renderPage(c, "quiz/exams", "Exams", fiber.Map{
		"Flash": flash.Get(c),
		"Exams": exams,
	})
}

// HandleExamDetail shows one exam with its question count and start button.
func HandleExamDetail(c *fiber.Ctx) error {
	exam, err := repository.GetGlobalFactory().GetExamRepository().GetBySlug(c.Params("slug"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	if err := counter.AddExamView(exam.ID); err != nil {
		log.Errorf("[Quiz] Failed to count exam view for %d: %v", exam.ID, err)
	}

	return renderPage(c, "quiz/exam_detail", exam.Title, fiber.Map{
		"Flash": flash.Get(c),
		"Exam":  exam,
	})
}

// HandleQuizStart creates a new attempt with a random question selection.
func HandleQuizStart(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	examRepo := repository.GetGlobalFactory().GetExamRepository()

	exam, err := examRepo.GetBySlug(c.Params("slug"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	if exam.Premium {
		ent, err := entitlements.GetResolver().Resolve(uc.UserID)
		if err != nil {
			log.Errorf("[Quiz] Entitlement check failed for user %d: %v", uc.UserID, err)
			ent = entitlements.Free()
		}
		if !ent.IsSubscribed {
			fm := fiber.Map{
				"type":    "error",
				"message": "This exam requires an active subscription.",
			}
			return flash.WithError(c, fm).Redirect(constants.MembershipRoute)
		}
	}

	length := defaultQuizLength
	if v, err := strconv.Atoi(c.FormValue("length")); err == nil && v > 0 && v <= 50 {
		length = v
	}

	questions, err := examRepo.GetRandomQuestions(exam.ID, length)
	if err != nil || len(questions) == 0 {
		fm := fiber.Map{
			"type":    "error",
			"message": "No questions available for this exam yet.",
		}
		return flash.WithError(c, fm).Redirect("/exam/" + exam.Slug)
	}

	attempt := &models.QuizAttempt{
		UserID:        uc.UserID,
		ExamID:        exam.ID,
		StartedAt:     time.Now(),
		QuestionCount: len(questions),
	}
	if err := repository.GetGlobalFactory().GetQuizRepository().CreateAttempt(attempt); err != nil {
		log.Errorf("[Quiz] Failed to create attempt for user %d: %v", uc.UserID, err)
		fm := fiber.Map{
			"type":    "error",
			"message": "Could not start the quiz, please try again.",
		}
		return flash.WithError(c, fm).Redirect("/exam/" + exam.Slug)
	}

	ids := make([]uint, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	data, _ := json.Marshal(ids)
	if err := cache.Set(attemptQuestionsCacheKey(attempt.ID), string(data), attemptQuestionCacheTTL); err != nil {
		log.Errorf("[Quiz] Failed to cache question order for attempt %d: %v", attempt.ID, err)
	}

	metrics.QuizAttemptsTotal.Inc()

	return c.Redirect(fmt.Sprintf("/quiz/%d", attempt.ID), fiber.StatusSeeOther)
}

// HandleQuizQuestion renders the next unanswered question of an attempt.
func HandleQuizQuestion(c *fiber.Ctx) error {
	attempt, err := loadOwnAttempt(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}
	if attempt.IsCompleted() {
		return c.Redirect(fmt.Sprintf("/quiz/%d/result", attempt.ID), fiber.StatusSeeOther)
	}

	quizRepo := repository.GetGlobalFactory().GetQuizRepository()
	answered, err := quizRepo.CountAnswers(attempt.ID)
	if err != nil {
		log.Errorf("[Quiz] Failed to count answers for attempt %d: %v", attempt.ID, err)
		return c.Status(fiber.StatusInternalServerError).Render("errors/500", fiber.Map{})
	}

	ids, err := attemptQuestionIDs(attempt)
	if err != nil {
		log.Errorf("[Quiz] Failed to load question order for attempt %d: %v", attempt.ID, err)
		return c.Status(fiber.StatusInternalServerError).Render("errors/500", fiber.Map{})
	}

	if int(answered) >= len(ids) {
		return c.Redirect(fmt.Sprintf("/quiz/%d/complete", attempt.ID), fiber.StatusSeeOther)
	}

	question, err := repository.GetGlobalFactory().GetExamRepository().GetQuestion(ids[answered])
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}
	options, err := question.Options()
	if err != nil {
		log.Errorf("[Quiz] Corrupt options for question %d: %v", question.ID, err)
		return c.Status(fiber.StatusInternalServerError).Render("errors/500", fiber.Map{})
	}

	return renderPage(c, "quiz/question", "Question", fiber.Map{
		"Flash":      flash.Get(c),
		"Attempt":    attempt,
		"Question":   question,
		"Options":    options,
		"QuestionNo": answered + 1,
		"TotalCount": len(ids),
	})
}

// HandleQuizAnswer records one answer and moves on.
func HandleQuizAnswer(c *fiber.Ctx) error {
	attempt, err := loadOwnAttempt(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}
	if attempt.IsCompleted() {
		return c.Redirect(fmt.Sprintf("/quiz/%d/result", attempt.ID), fiber.StatusSeeOther)
	}

	questionID, err := strconv.ParseUint(c.FormValue("question_id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid question id")
	}
	chosenIndex, err := strconv.Atoi(c.FormValue("chosen_index"))
	if err != nil || chosenIndex < 0 {
		return c.Status(fiber.StatusBadRequest).SendString("invalid answer index")
	}

	ids, err := attemptQuestionIDs(attempt)
	if err != nil || !containsID(ids, uint(questionID)) {
		return c.Status(fiber.StatusBadRequest).SendString("question does not belong to this attempt")
	}

	question, err := repository.GetGlobalFactory().GetExamRepository().GetQuestion(uint(questionID))
	if err != nil {
		return c.Status(fiber.StatusNotFound).SendString("question not found")
	}

	answer := &models.AttemptAnswer{
		AttemptID:   attempt.ID,
		QuestionID:  question.ID,
		ChosenIndex: chosenIndex,
		Correct:     question.IsCorrect(chosenIndex),
		AnsweredAt:  time.Now(),
	}
	if err := repository.GetGlobalFactory().GetQuizRepository().SaveAnswer(answer); err != nil {
		log.Errorf("[Quiz] Failed to save answer for attempt %d: %v", attempt.ID, err)
		return c.Status(fiber.StatusInternalServerError).SendString("failed to save answer")
	}

	if err := counter.AddQuestionAnswered(question.ID, answer.Correct); err != nil {
		log.Errorf("[Quiz] Failed to count answer for question %d: %v", question.ID, err)
	}

	return c.Redirect(fmt.Sprintf("/quiz/%d", attempt.ID), fiber.StatusSeeOther)
}

// HandleQuizComplete finalizes an attempt and computes the score.
func HandleQuizComplete(c *fiber.Ctx) error {
	attempt, err := loadOwnAttempt(c)
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}
	if !attempt.IsCompleted() {
		quizRepo := repository.GetGlobalFactory().GetQuizRepository()
		answers, err := quizRepo.GetAnswers(attempt.ID)
		if err != nil {
			log.Errorf("[Quiz] Failed to load answers for attempt %d: %v", attempt.ID, err)
			return c.Status(fiber.StatusInternalServerError).Render("errors/500", fiber.Map{})
		}

		correct := 0
		for _, a := range answers {
			if a.Correct {
				correct++
			}
		}

		now := time.Now()
		attempt.CompletedAt = &now
		attempt.CorrectCount = correct
		if attempt.QuestionCount > 0 {
			attempt.ScorePercent = correct * 100 / attempt.QuestionCount
		}
		if err := quizRepo.UpdateAttempt(attempt); err != nil {
			log.Errorf("[Quiz] Failed to complete attempt %d: %v", attempt.ID, err)
			return c.Status(fiber.StatusInternalServerError).Render("errors/500", fiber.Map{})
		}

		_ = cache.Delete(attemptQuestionsCacheKey(attempt.ID))
	}

	return c.Redirect(fmt.Sprintf("/quiz/%d/result", attempt.ID), fiber.StatusSeeOther)
}

// HandleQuizResult shows the finished attempt with per-answer breakdown.
// Explanations are paid content and stay hidden for free users.
func HandleQuizResult(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	attempt, err := repository.GetGlobalFactory().GetQuizRepository().GetAttemptWithAnswers(attemptIDParam(c))
	if err != nil || attempt.UserID != uc.UserID {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	ent, err := entitlements.GetResolver().Resolve(uc.UserID)
	if err != nil {
		ent = entitlements.Free()
	}

	analysis, _ := repository.GetGlobalFactory().GetQuizRepository().GetAnalysis(attempt.ID)

	return renderPage(c, "quiz/result", "Result", fiber.Map{
		"Flash":            flash.Get(c),
		"Attempt":          attempt,
		"Answers":          attempt.Answers,
		"ShowExplanations": ent.IsSubscribed,
		"CanAnalyze":       ent.IsPremium && attempt.IsCompleted(),
		"Analysis":         analysis,
	})
}

func attemptIDParam(c *fiber.Ctx) uint {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func loadOwnAttempt(c *fiber.Ctx) (*models.QuizAttempt, error) {
	uc := usercontext.GetUserContext(c)
	attempt, err := repository.GetGlobalFactory().GetQuizRepository().GetAttempt(attemptIDParam(c))
	if err != nil {
		return nil, err
	}
	if attempt.UserID != uc.UserID {
		return nil, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func attemptQuestionIDs(attempt *models.QuizAttempt) ([]uint, error) {
	raw, err := cache.Get(attemptQuestionsCacheKey(attempt.ID))
	if err == nil && raw != "" {
		var ids []uint
		if err := json.Unmarshal([]byte(raw), &ids); err == nil {
			return ids, nil
		}
	}

	// Cache expired mid-attempt: rebuild a stable order from the answers
	// already given plus fresh questions for the remainder.
	quizRepo := repository.GetGlobalFactory().GetQuizRepository()
	answers, err := quizRepo.GetAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(answers))
	ids := make([]uint, 0, attempt.QuestionCount)
	for _, a := range answers {
		seen[a.QuestionID] = true
		ids = append(ids, a.QuestionID)
	}

	remaining := attempt.QuestionCount - len(ids)
	if remaining > 0 {
		fresh, err := repository.GetGlobalFactory().GetExamRepository().GetRandomQuestions(attempt.ExamID, attempt.QuestionCount)
		if err != nil {
			return nil, err
		}
		for _, q := range fresh {
			if remaining == 0 {
				break
			}
			if !seen[q.ID] {
				ids = append(ids, q.ID)
				remaining--
			}
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("attempt has no questions")
	}

	data, _ := json.Marshal(ids)
	_ = cache.Set(attemptQuestionsCacheKey(attempt.ID), string(data), attemptQuestionCacheTTL)
	return ids, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
