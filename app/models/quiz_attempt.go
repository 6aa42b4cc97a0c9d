package models

import (
	"time"

	"gorm.io/gorm"
)

// QuizAttempt is one user run through an exam's question set.
type QuizAttempt struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	ExamID        uint           `gorm:"not null;index" json:"exam_id"`
	StartedAt     time.Time      `gorm:"autoCreateTime" json:"started_at"`
	CompletedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	QuestionCount int            `gorm:"default:0" json:"question_count"`
	CorrectCount  int            `gorm:"default:0" json:"correct_count"`
	ScorePercent  int            `gorm:"default:0" json:"score_percent"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Exam    Exam            `gorm:"foreignKey:ExamID" json:"-"`
	Answers []AttemptAnswer `gorm:"foreignKey:AttemptID" json:"-"`
}

// IsCompleted reports whether the attempt has been submitted.
func (a *QuizAttempt) IsCompleted() bool {
	return a.CompletedAt != nil
}

// AttemptAnswer records one answered question within an attempt.
type AttemptAnswer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AttemptID   uint      `gorm:"not null;index:ux_attempt_answers_attempt_question,unique,priority:1" json:"attempt_id"`
	QuestionID  uint      `gorm:"not null;index:ux_attempt_answers_attempt_question,unique,priority:2" json:"question_id"`
	ChosenIndex int       `gorm:"not null" json:"chosen_index"`
	Correct     bool      `gorm:"default:false" json:"correct"`
	AnsweredAt  time.Time `gorm:"autoCreateTime" json:"answered_at"`

	Question Question `gorm:"foreignKey:QuestionID" json:"-"`
}
