package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/mail"
	"github.com/mkarst/CertForge/internal/pkg/progress"
)

// sendReminder delivers one reminder email. Package variable so tests can
// substitute a fake.
var sendReminder = mail.SendStudyReminderMail

// processStudyReminderJob mails one user who has not hit their daily
// question goal. A Redis marker deduplicates per user per day.
func (q *Queue) processStudyReminderJob(ctx context.Context, job *Job) error {
	payload, err := StudyReminderJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reminder payload: %w", err)
	}

	db := database.GetDB()

	var user models.User
	if err := db.First(&user, payload.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive() {
		return nil
	}

	settings, err := models.GetOrCreateUserSettings(db, user.ID)
	if err != nil {
		return err
	}
	if !settings.ReminderEmails {
		return nil
	}

	p, err := progress.GetUserProgress(db, user.ID)
	if err != nil {
		return err
	}
	remaining := int64(p.DailyGoal) - p.AnsweredToday
	if remaining <= 0 {
		return nil
	}

	marker := fmt.Sprintf("reminder:sent:%s:%d", time.Now().Format("2006-01-02"), user.ID)
	set, err := q.client.SetNX(ctx, marker, "1", 24*time.Hour).Result()
	if err != nil {
		return err
	}
	if !set {
		// Already reminded today.
		return nil
	}

	if err := sendReminder(user.Email, user.Name, int(remaining)); err != nil {
		// Allow a retry tomorrow if delivery failed.
		q.client.Del(ctx, marker)
		return err
	}
	log.Infof("[Reminder] Sent practice reminder to user %d", user.ID)
	return nil
}

// EnqueueStudyReminders enqueues reminder jobs for all users with
// reminders enabled. Called once per day by the manager.
func (q *Queue) EnqueueStudyReminders() error {
	db := database.GetDB()

	var userIDs []uint
	err := db.Model(&models.UserSettings{}).
		Where("reminder_emails = ?", true).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return err
	}

	for _, id := range userIDs {
		payload := StudyReminderJobPayload{UserID: id}
		if _, err := q.EnqueueJob(JobTypeStudyReminder, payload.ToMap()); err != nil {
			return err
		}
	}
	if len(userIDs) > 0 {
		log.Infof("[Reminder] Enqueued %d reminder jobs", len(userIDs))
	}
	return nil
}
