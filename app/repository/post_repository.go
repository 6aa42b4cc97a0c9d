package repository

import (
	"github.com/mkarst/CertForge/app/models"
	"gorm.io/gorm"
)

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(post *models.Post) error {
	return r.db.Create(post).Error
}

func (r *postRepository) GetByID(id uint64) (*models.Post, error) {
	var post models.Post
	err := r.db.Preload("User").First(&post, id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetBySlug(slug string) (*models.Post, error) {
	var post models.Post
	err := r.db.Preload("User").Where("slug = ?", slug).First(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetPublished(offset, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.Preload("User").
		Where("published = ?", true).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) GetAll(offset, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.Preload("User").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) Update(post *models.Post) error {
	return r.db.Save(post).Error
}

func (r *postRepository) Delete(id uint64) error {
	return r.db.Delete(&models.Post{}, id).Error
}

func (r *postRepository) Count(publishedOnly bool) (int64, error) {
	var count int64
	query := r.db.Model(&models.Post{})
	if publishedOnly {
		query = query.Where("published = ?", true)
	}
	err := query.Count(&count).Error
	return count, err
}

func (r *postRepository) SlugExists(slug string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Post{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}
