package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkarst/CertForge/app/models"
)

// quizRepository implements the QuizRepository interface
type quizRepository struct {
	db *gorm.DB
}

// NewQuizRepository creates a new quiz repository instance
func NewQuizRepository(db *gorm.DB) QuizRepository {
	return &quizRepository{db: db}
}

func (r *quizRepository) CreateAttempt(attempt *models.QuizAttempt) error {
	return r.db.Create(attempt).Error
}

func (r *quizRepository) GetAttempt(id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	if err := r.db.First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *quizRepository) GetAttemptWithAnswers(id uint) (*models.QuizAttempt, error) {
	var attempt models.QuizAttempt
	err := r.db.Preload("Answers").Preload("Answers.Question").Preload("Exam").First(&attempt, id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *quizRepository) GetAttemptsByUser(userID uint, offset, limit int) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	err := r.db.Preload("Exam").Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&attempts).Error
	return attempts, err
}

func (r *quizRepository) UpdateAttempt(attempt *models.QuizAttempt) error {
	return r.db.Save(attempt).Error
}

// SaveAnswer upserts one answer. Re-answering the same question within an
// attempt overwrites the previous choice.
func (r *quizRepository) SaveAnswer(answer *models.AttemptAnswer) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "attempt_id"},
			{Name: "question_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"chosen_index", "correct", "answered_at"}),
	}).Create(answer).Error
}

func (r *quizRepository) GetAnswers(attemptID uint) ([]models.AttemptAnswer, error) {
	var answers []models.AttemptAnswer
	err := r.db.Where("attempt_id = ?", attemptID).Order("id ASC").Find(&answers).Error
	return answers, err
}

func (r *quizRepository) CountAnswers(attemptID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.AttemptAnswer{}).Where("attempt_id = ?", attemptID).Count(&count).Error
	return count, err
}

// SaveAnalysis upserts the analysis for an attempt. Regenerating replaces
// the stored result.
func (r *quizRepository) SaveAnalysis(analysis *models.AttemptAnalysis) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"summary", "weak_topics_json", "recommendation", "model"}),
	}).Create(analysis).Error
}

func (r *quizRepository) GetAnalysis(attemptID uint) (*models.AttemptAnalysis, error) {
	var analysis models.AttemptAnalysis
	if err := r.db.Where("attempt_id = ?", attemptID).First(&analysis).Error; err != nil {
		return nil, err
	}
	return &analysis, nil
}
