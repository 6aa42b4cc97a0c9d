package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question is a single multiple-choice question belonging to an exam.
// Answer options are stored as a JSON array to keep option order stable.
type Question struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ExamID        uint           `gorm:"not null;index" json:"exam_id"`
	Topic         string         `gorm:"type:varchar(150);not null;index" json:"topic"`
	Prompt        string         `gorm:"type:text;not null" json:"prompt"`
	OptionsJSON   string         `gorm:"type:text;not null" json:"-"`
	CorrectIndex  int            `gorm:"not null" json:"-"`
	Explanation   string         `gorm:"type:text" json:"-"` // premium content, gated in handlers
	Difficulty    string         `gorm:"type:varchar(20);default:'medium'" json:"difficulty"`
	TimesAnswered int64          `gorm:"default:0" json:"times_answered"`
	TimesCorrect  int64          `gorm:"default:0" json:"times_correct"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// Options decodes the stored answer options.
func (q *Question) Options() ([]string, error) {
	var opts []string
	if err := json.Unmarshal([]byte(q.OptionsJSON), &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// SetOptions encodes and stores the answer options.
func (q *Question) SetOptions(opts []string) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	q.OptionsJSON = string(data)
	return nil
}

// IsCorrect reports whether the chosen option index is the correct answer.
func (q *Question) IsCorrect(chosenIndex int) bool {
	return chosenIndex == q.CorrectIndex
}
