package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/entitlements"
)

// Service provides provider-neutral webhook event persistence and plan
// reconciliation.
type Service struct {
	repo     Repository
	resolver *entitlements.Resolver
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, resolver *entitlements.Resolver) *Service {
	return &Service{repo: repo, resolver: resolver}
}

// NewServiceFromDB creates a billing service from a GORM DB handle, sharing
// the process-wide entitlement resolver.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), entitlements.GetResolver())
}

// Repo exposes the underlying repository for the processor and jobs.
func (s *Service) Repo() Repository {
	return s.repo
}

// RecordWebhookEvent persists webhook payloads idempotently. The boolean
// return reports whether this delivery created the row; replays of an
// already-stored event return false with the stored row.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		// No provider-issued id: fall back to a payload digest so replays
		// of the identical body still deduplicate.
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
		Status:          models.EventStatusPending,
	}
	return s.repo.CreateEventIfNotExists(event)
}

// MarkEventProcessed finalizes an event's status and stores an optional
// error. A nil error marks the event processed, anything else failed.
func (s *Service) MarkEventProcessed(ctx context.Context, eventID uint, processingErr error) error {
	_ = ctx
	if eventID == 0 {
		return errors.New("billing_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkEventProcessed(eventID, errMsg)
}

// ReconcileUserPlan computes and writes the best effective tier for a user
// into their settings row, and drops the cached entitlement.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID uint) (string, error) {
	_ = ctx
	if userID == 0 {
		return "", errors.New("user_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return "", err
	}

	best := entitlements.TierFree
	for _, sub := range subs {
		if !sub.IsEntitling() {
			continue
		}
		candidate := entitlements.NormalizeTier(sub.InternalTier)
		if candidate == entitlements.TierFree {
			candidate = entitlements.ClassifyPlanName(sub.PlanName)
		}
		if entitlements.TierRank(candidate) > entitlements.TierRank(best) {
			best = candidate
		}
	}

	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return "", err
	}
	if s.resolver != nil {
		s.resolver.Invalidate(userID)
	}
	if entitlements.NormalizeTier(us.Plan) == best {
		return string(best), nil
	}
	us.Plan = string(best)
	if err := s.repo.SaveUserSettings(us); err != nil {
		return "", err
	}
	return string(best), nil
}
