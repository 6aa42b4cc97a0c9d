package models

import (
	"time"

	"gorm.io/gorm"
)

// Exam is one certification exam track (e.g. AWS SAA-C03).
type Exam struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Slug          string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug"`
	Title         string         `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=3,max=200"`
	Vendor        string         `gorm:"type:varchar(100);not null;index" json:"vendor"`
	Description   string         `gorm:"type:text" json:"description"`
	Premium       bool           `gorm:"default:false;index" json:"premium"`
	QuestionCount int            `gorm:"default:0" json:"question_count"`
	ViewCount     int64          `gorm:"default:0" json:"view_count"`
	Published     bool           `gorm:"default:false;index" json:"published"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Questions []Question `gorm:"foreignKey:ExamID" json:"-"`
}
