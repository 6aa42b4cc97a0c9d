package models

import (
	"encoding/json"
	"time"
)

// AttemptAnalysis stores the AI-generated study analysis for a completed
// quiz attempt. One analysis per attempt; regenerating replaces the row.
type AttemptAnalysis struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AttemptID      uint      `gorm:"not null;uniqueIndex" json:"attempt_id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	Model          string    `gorm:"type:varchar(100);not null" json:"model"`
	Summary        string    `gorm:"type:text;not null" json:"summary"`
	Recommendation string    `gorm:"type:text" json:"recommendation"`
	WeakTopicsJSON string    `gorm:"type:text" json:"-"`
	GeneratedAt    time.Time `gorm:"autoCreateTime" json:"generated_at"`
}

// WeakTopics decodes the stored weak-topic list.
func (a *AttemptAnalysis) WeakTopics() []string {
	var topics []string
	if err := json.Unmarshal([]byte(a.WeakTopicsJSON), &topics); err != nil {
		return nil
	}
	return topics
}

// SetWeakTopics encodes and stores the weak-topic list.
func (a *AttemptAnalysis) SetWeakTopics(topics []string) error {
	data, err := json.Marshal(topics)
	if err != nil {
		return err
	}
	a.WeakTopicsJSON = string(data)
	return nil
}
