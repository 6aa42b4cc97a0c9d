package controllers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/app/repository"
	"github.com/mkarst/CertForge/internal/pkg/billing"
	"github.com/mkarst/CertForge/internal/pkg/env"
)

type identityWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// HandleIdentityWebhook keeps local user rows in sync with the external
// identity provider. Same verification discipline as the billing hooks:
// HMAC over the raw body before any write.
func HandleIdentityWebhook(c *fiber.Ctx) error {
	payload := c.Body()

	secret := env.GetEnv("IDENTITY_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Error("[Identity] Webhook secret is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "missing_configuration",
		})
	}

	if !billing.VerifyWebhookSignature(payload, c.Get("X-Signature"), secret) {
		log.Warn("[Identity] Webhook signature verification failed")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid_signature",
		})
	}

	var in identityWebhookPayload
	if err := json.Unmarshal(payload, &in); err != nil || strings.TrimSpace(in.Type) == "" || strings.TrimSpace(in.Data.ID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed_payload",
		})
	}

	externalID := strings.TrimSpace(in.Data.ID)
	userRepo := repository.GetGlobalFactory().GetUserRepository()

	switch in.Type {
	case "user.created", "user.updated":
		email := ""
		if len(in.Data.EmailAddresses) > 0 {
			email = strings.TrimSpace(in.Data.EmailAddresses[0].EmailAddress)
		}
		name := strings.TrimSpace(strings.TrimSpace(in.Data.FirstName) + " " + strings.TrimSpace(in.Data.LastName))

		user, err := userRepo.GetByExternalID(externalID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("[Identity] User lookup failed for %s: %v", externalID, err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_error"})
			}
			user = &models.User{
				ExternalID: externalID,
				Name:       name,
				Email:      email,
				Role:       models.ROLE_USER,
				Status:     models.STATUS_ACTIVE,
			}
			if err := userRepo.Create(user); err != nil {
				log.Errorf("[Identity] Failed to create user %s: %v", externalID, err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_error"})
			}
			return c.JSON(fiber.Map{"received": true, "created": true})
		}

		if name != "" {
			user.Name = name
		}
		if email != "" {
			user.Email = email
		}
		if err := userRepo.Update(user); err != nil {
			log.Errorf("[Identity] Failed to update user %s: %v", externalID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_error"})
		}
		return c.JSON(fiber.Map{"received": true})

	case "user.deleted":
		user, err := userRepo.GetByExternalID(externalID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Already gone, deletion is idempotent.
				return c.JSON(fiber.Map{"received": true})
			}
			log.Errorf("[Identity] User lookup failed for %s: %v", externalID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_error"})
		}
		if err := userRepo.Delete(user.ID); err != nil {
			log.Errorf("[Identity] Failed to delete user %s: %v", externalID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "storage_error"})
		}
		return c.JSON(fiber.Map{"received": true})

	default:
		// Unknown identity event types are acknowledged and ignored.
		log.Infof("[Identity] Ignoring event type %s", in.Type)
		return c.JSON(fiber.Map{"received": true, "ignored": true})
	}
}
