package repository

import (
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
)

// examRepository implements the ExamRepository interface
type examRepository struct {
	db *gorm.DB
}

// NewExamRepository creates a new exam repository instance
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) Create(exam *models.Exam) error {
	return r.db.Create(exam).Error
}

func (r *examRepository) GetByID(id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := r.db.First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *examRepository) GetBySlug(slug string) (*models.Exam, error) {
	var exam models.Exam
	if err := r.db.Where("slug = ?", slug).First(&exam).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *examRepository) GetPublished() ([]models.Exam, error) {
	var exams []models.Exam
	err := r.db.Where("published = ?", true).Order("vendor ASC, title ASC").Find(&exams).Error
	return exams, err
}

func (r *examRepository) GetByVendor(vendor string) ([]models.Exam, error) {
	var exams []models.Exam
	err := r.db.Where("published = ? AND vendor = ?", true, vendor).Order("title ASC").Find(&exams).Error
	return exams, err
}

func (r *examRepository) Update(exam *models.Exam) error {
	return r.db.Save(exam).Error
}

func (r *examRepository) Delete(id uint) error {
	return r.db.Delete(&models.Exam{}, id).Error
}

func (r *examRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Exam{}).Count(&count).Error
	return count, err
}

func (r *examRepository) GetQuestion(id uint) (*models.Question, error) {
	var question models.Question
	if err := r.db.First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *examRepository) GetQuestions(examID uint, limit int) ([]models.Question, error) {
	var questions []models.Question
	query := r.db.Where("exam_id = ?", examID).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&questions).Error
	return questions, err
}

// GetRandomQuestions draws a random question set for one quiz run.
func (r *examRepository) GetRandomQuestions(examID uint, limit int) ([]models.Question, error) {
	var questions []models.Question
	query := r.db.Where("exam_id = ?", examID).Order("RAND()")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&questions).Error
	return questions, err
}

func (r *examRepository) CountQuestions(examID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Question{}).Where("exam_id = ?", examID).Count(&count).Error
	return count, err
}
