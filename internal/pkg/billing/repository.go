package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkarst/CertForge/app/models"
)

// Repository provides DB operations used by the billing service and the
// event processor.
type Repository interface {
	CreateEventIfNotExists(event *models.BillingEvent) (bool, *models.BillingEvent, error)
	GetEventByID(id uint) (*models.BillingEvent, error)
	MarkEventProcessed(id uint, processingError string) error
	BumpEventReconcileAttempts(id uint) (int, error)
	MarkEventFailedPermanent(id uint, reason string) error
	ListFailedEvents(limit int) ([]models.BillingEvent, error)
	ListEventsOlderThan(cutoff time.Time, limit int) ([]models.BillingEvent, error)
	DeleteEvents(ids []uint) error

	GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error)
	CreateSubscriptionIfNotExists(sub *models.Subscription) (bool, error)
	UpdateSubscriptionIfNewer(sub *models.Subscription, eventTime time.Time) (bool, error)
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)

	GetOrCreateUserSettings(userID uint) (*models.UserSettings, error)
	SaveUserSettings(us *models.UserSettings) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateEventIfNotExists(event *models.BillingEvent) (bool, *models.BillingEvent, error) {
	// The unique (provider, provider_event_id) index is the concurrency
	// guard for duplicate deliveries; DoNothing turns the constraint
	// violation into "already handled".
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetEventByID(id uint) (*models.BillingEvent, error) {
	var event models.BillingEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) MarkEventProcessed(id uint, processingError string) error {
	now := time.Now()
	status := models.EventStatusProcessed
	if processingError != "" {
		status = models.EventStatusFailed
	}
	updates := map[string]interface{}{
		"status":           status,
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) BumpEventReconcileAttempts(id uint) (int, error) {
	err := r.db.Model(&models.BillingEvent{}).Where("id = ?", id).
		UpdateColumn("reconcile_attempts", gorm.Expr("reconcile_attempts + 1")).Error
	if err != nil {
		return 0, err
	}
	var event models.BillingEvent
	if err := r.db.Select("reconcile_attempts").First(&event, id).Error; err != nil {
		return 0, err
	}
	return event.ReconcileAttempts, nil
}

func (r *gormRepository) MarkEventFailedPermanent(id uint, reason string) error {
	return r.db.Model(&models.BillingEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           models.EventStatusFailedPermanent,
		"processing_error": reason,
	}).Error
}

func (r *gormRepository) ListFailedEvents(limit int) ([]models.BillingEvent, error) {
	var events []models.BillingEvent
	err := r.db.Where("status = ?", models.EventStatusFailed).
		Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, err
}

func (r *gormRepository) ListEventsOlderThan(cutoff time.Time, limit int) ([]models.BillingEvent, error) {
	var events []models.BillingEvent
	err := r.db.Where("created_at < ? AND status <> ?", cutoff, models.EventStatusPending).
		Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, err
}

func (r *gormRepository) DeleteEvents(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("id IN ?", ids).Delete(&models.BillingEvent{}).Error
}

func (r *gormRepository) GetSubscription(provider, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscriptionIfNotExists inserts a subscription row unless one with
// the same (provider, provider_subscription_id) already exists. The boolean
// reports whether this call created the row.
func (r *gormRepository) CreateSubscriptionIfNotExists(sub *models.Subscription) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// UpdateSubscriptionIfNewer applies the mutation only while the row's
// last-applied-event watermark is not newer than the event. The conditional
// WHERE makes the read-modify-write atomic against concurrent processors;
// zero affected rows means a newer event won the race and this one is stale.
func (r *gormRepository) UpdateSubscriptionIfNewer(sub *models.Subscription, eventTime time.Time) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND last_event_at <= ?", sub.ID, eventTime).
		Updates(map[string]interface{}{
			"user_id":             sub.UserID,
			"plan_name":           sub.PlanName,
			"provider_plan_ref":   sub.ProviderPlanRef,
			"internal_tier":       sub.InternalTier,
			"status":              sub.Status,
			"renews_at":           sub.RenewsAt,
			"ends_at":             sub.EndsAt,
			"cancellation_reason": sub.CancellationReason,
			"last_event_at":       eventTime,
			"raw_payload_json":    sub.RawPayloadJSON,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetOrCreateUserSettings(userID uint) (*models.UserSettings, error) {
	return models.GetOrCreateUserSettings(r.db, userID)
}

func (r *gormRepository) SaveUserSettings(us *models.UserSettings) error {
	return r.db.Save(us).Error
}
