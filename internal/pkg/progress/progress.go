package progress

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/cache"
	"github.com/mkarst/CertForge/internal/pkg/database"
)

const (
	CacheKeyUsersTotal     = "statistics:users:total"
	CacheKeyQuestionsTotal = "statistics:questions:total"
	CacheKeyAttemptsDaily  = "statistics:attempts:daily:%s" // date YYYY-MM-DD
	CacheExpiration        = 30 * time.Minute
)

// SiteStats are the aggregate numbers shown on the landing page.
type SiteStats struct {
	TotalUsers     int
	TotalQuestions int
	TodayAttempts  int
}

// UserProgress is the per-user dashboard view.
type UserProgress struct {
	TotalAttempts     int64
	QuestionsAnswered int64
	AnsweredToday     int64
	DailyGoal         int
	CorrectTotal      int64
	AccuracyPercent   int
	StreakDays        int
	TopicAccuracy     []TopicAccuracy
}

// TopicAccuracy is the per-topic correctness breakdown used by the
// dashboard and the AI analysis prompt.
type TopicAccuracy struct {
	Topic    string
	Answered int64
	Correct  int64
}

func (t TopicAccuracy) Percent() int {
	if t.Answered == 0 {
		return 0
	}
	return int(t.Correct * 100 / t.Answered)
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the site stats cache is due a refresh.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()
	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the site stats cache when due.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateSiteStatsCache(); err != nil {
			log.Printf("Error updating site statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// UpdateSiteStatsCache recomputes the landing page aggregates and stores
// them in Redis.
func UpdateSiteStatsCache() error {
	db := database.GetDB()

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalQuestions int64
	if err := db.Model(&models.Question{}).Count(&totalQuestions).Error; err != nil {
		return err
	}

	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)

	var todayAttempts int64
	if err := db.Model(&models.QuizAttempt{}).
		Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).
		Count(&todayAttempts).Error; err != nil {
		return err
	}

	if err := cache.Set(CacheKeyUsersTotal, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyQuestionsTotal, strconv.FormatInt(totalQuestions, 10), CacheExpiration); err != nil {
		return err
	}
	dailyKey := fmt.Sprintf(CacheKeyAttemptsDaily, today)
	return cache.Set(dailyKey, strconv.FormatInt(todayAttempts, 10), CacheExpiration)
}

// GetSiteStats reads the cached aggregates, refreshing the cache when it is
// stale. Missing keys read as zero so the landing page never errors.
func GetSiteStats() SiteStats {
	UpdateCacheIfNeeded()

	stats := SiteStats{}
	if v, err := cache.GetInt(CacheKeyUsersTotal); err == nil {
		stats.TotalUsers = v
	}
	if v, err := cache.GetInt(CacheKeyQuestionsTotal); err == nil {
		stats.TotalQuestions = v
	}
	dailyKey := fmt.Sprintf(CacheKeyAttemptsDaily, time.Now().Format("2006-01-02"))
	if v, err := cache.GetInt(dailyKey); err == nil {
		stats.TodayAttempts = v
	}
	return stats
}

// GetUserProgress computes the dashboard view for a user.
func GetUserProgress(db *gorm.DB, userID uint) (*UserProgress, error) {
	p := &UserProgress{DailyGoal: 10}

	if us, err := models.GetOrCreateUserSettings(db, userID); err == nil && us.DailyQuestionGoal > 0 {
		p.DailyGoal = us.DailyQuestionGoal
	}

	if err := db.Model(&models.QuizAttempt{}).
		Where("user_id = ? AND completed_at IS NOT NULL", userID).
		Count(&p.TotalAttempts).Error; err != nil {
		return nil, err
	}

	answerBase := db.Model(&models.AttemptAnswer{}).
		Joins("JOIN quiz_attempts ON quiz_attempts.id = attempt_answers.attempt_id").
		Where("quiz_attempts.user_id = ?", userID)

	if err := answerBase.Session(&gorm.Session{}).Count(&p.QuestionsAnswered).Error; err != nil {
		return nil, err
	}
	if err := answerBase.Session(&gorm.Session{}).
		Where("attempt_answers.correct = ?", true).
		Count(&p.CorrectTotal).Error; err != nil {
		return nil, err
	}

	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	if err := answerBase.Session(&gorm.Session{}).
		Where("attempt_answers.answered_at >= ?", todayStart).
		Count(&p.AnsweredToday).Error; err != nil {
		return nil, err
	}

	if p.QuestionsAnswered > 0 {
		p.AccuracyPercent = int(p.CorrectTotal * 100 / p.QuestionsAnswered)
	}

	topics, err := GetTopicAccuracy(db, userID)
	if err != nil {
		return nil, err
	}
	p.TopicAccuracy = topics

	streak, err := computeStreak(db, userID)
	if err != nil {
		return nil, err
	}
	p.StreakDays = streak

	return p, nil
}

// GetTopicAccuracy aggregates answer correctness per topic for a user,
// ordered worst-first so the weakest topics lead.
func GetTopicAccuracy(db *gorm.DB, userID uint) ([]TopicAccuracy, error) {
	var rows []TopicAccuracy
	err := db.Model(&models.AttemptAnswer{}).
		Select("questions.topic AS topic, COUNT(*) AS answered, SUM(CASE WHEN attempt_answers.correct THEN 1 ELSE 0 END) AS correct").
		Joins("JOIN quiz_attempts ON quiz_attempts.id = attempt_answers.attempt_id").
		Joins("JOIN questions ON questions.id = attempt_answers.question_id").
		Where("quiz_attempts.user_id = ?", userID).
		Group("questions.topic").
		Order("correct * 100 / answered ASC").
		Scan(&rows).Error
	return rows, err
}

// computeStreak counts consecutive days with at least one answer, ending
// today or yesterday.
func computeStreak(db *gorm.DB, userID uint) (int, error) {
	var days []string
	err := db.Model(&models.AttemptAnswer{}).
		Select("DATE(attempt_answers.answered_at) AS day").
		Joins("JOIN quiz_attempts ON quiz_attempts.id = attempt_answers.attempt_id").
		Where("quiz_attempts.user_id = ?", userID).
		Group("day").
		Order("day DESC").
		Limit(365).
		Pluck("day", &days).Error
	if err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, nil
	}

	expected := time.Now()
	if days[0] != expected.Format("2006-01-02") {
		// A streak survives until a full day is missed.
		expected = expected.AddDate(0, 0, -1)
		if days[0] != expected.Format("2006-01-02") {
			return 0, nil
		}
	}

	streak := 0
	for _, day := range days {
		if day != expected.Format("2006-01-02") {
			break
		}
		streak++
		expected = expected.AddDate(0, 0, -1)
	}
	return streak, nil
}
