package repository

import (
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByExternalID(externalID string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// ExamRepository defines the interface for exam and question operations
type ExamRepository interface {
	Create(exam *models.Exam) error
	GetByID(id uint) (*models.Exam, error)
	GetBySlug(slug string) (*models.Exam, error)
	GetPublished() ([]models.Exam, error)
	GetByVendor(vendor string) ([]models.Exam, error)
	Update(exam *models.Exam) error
	Delete(id uint) error
	Count() (int64, error)

	GetQuestion(id uint) (*models.Question, error)
	GetQuestions(examID uint, limit int) ([]models.Question, error)
	GetRandomQuestions(examID uint, limit int) ([]models.Question, error)
	CountQuestions(examID uint) (int64, error)
}

// QuizRepository defines the interface for attempt-related operations
type QuizRepository interface {
	CreateAttempt(attempt *models.QuizAttempt) error
	GetAttempt(id uint) (*models.QuizAttempt, error)
	GetAttemptWithAnswers(id uint) (*models.QuizAttempt, error)
	GetAttemptsByUser(userID uint, offset, limit int) ([]models.QuizAttempt, error)
	UpdateAttempt(attempt *models.QuizAttempt) error
	SaveAnswer(answer *models.AttemptAnswer) error
	GetAnswers(attemptID uint) ([]models.AttemptAnswer, error)
	CountAnswers(attemptID uint) (int64, error)

	SaveAnalysis(analysis *models.AttemptAnalysis) error
	GetAnalysis(attemptID uint) (*models.AttemptAnalysis, error)
}

// PostRepository defines the interface for blog post operations
type PostRepository interface {
	Create(post *models.Post) error
	GetByID(id uint64) (*models.Post, error)
	GetBySlug(slug string) (*models.Post, error)
	GetPublished(offset, limit int) ([]models.Post, error)
	GetAll(offset, limit int) ([]models.Post, error)
	Update(post *models.Post) error
	Delete(id uint64) error
	Count(publishedOnly bool) (int64, error)
	SlugExists(slug string) (bool, error)
}

// PageRepository defines the interface for static page operations
type PageRepository interface {
	Create(page *models.Page) error
	GetByID(id uint) (*models.Page, error)
	GetBySlug(slug string) (*models.Page, error)
	GetAll() ([]models.Page, error)
	GetActive() ([]models.Page, error)
	Update(page *models.Page) error
	Delete(id uint) error
	SlugExists(slug string) (bool, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	User UserRepository
	Exam ExamRepository
	Quiz QuizRepository
	Post PostRepository
	Page PageRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
		Exam: NewExamRepository(db),
		Quiz: NewQuizRepository(db),
		Post: NewPostRepository(db),
		Page: NewPageRepository(db),
	}
}
