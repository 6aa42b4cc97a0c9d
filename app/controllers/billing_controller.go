package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/internal/pkg/billing"
	"github.com/mkarst/CertForge/internal/pkg/constants"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/entitlements"
	"github.com/mkarst/CertForge/internal/pkg/env"
	"github.com/mkarst/CertForge/internal/pkg/session"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// HandleMembership shows the current plan, subscription history and
// checkout links.
func HandleMembership(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	ent, err := entitlements.GetResolver().Resolve(uc.UserID)
	if err != nil {
		log.Errorf("[Billing] Entitlement resolve failed for user %d: %v", uc.UserID, err)
		ent = entitlements.Free()
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	subs, err := svc.Repo().ListSubscriptionsByUser(uc.UserID)
	if err != nil {
		log.Errorf("[Billing] Failed to list subscriptions for user %d: %v", uc.UserID, err)
		subs = nil
	}

	return renderPage(c, "user/membership", "Membership", fiber.Map{
		"Flash":           flash.Get(c),
		"Entitlement":     ent,
		"Subscriptions":   subs,
		"ProCheckout":     env.GetEnv("CHECKOUT_URL_PRO", ""),
		"PremiumCheckout": env.GetEnv("CHECKOUT_URL_PREMIUM", ""),
	})
}

// HandleMembershipResync recomputes the user's effective plan from stored
// subscription state, for when a webhook was missed.
func HandleMembershipResync(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	svc := billing.NewServiceFromDB(database.GetDB())
	plan, err := svc.ReconcileUserPlan(c.Context(), uc.UserID)
	if err != nil {
		log.Errorf("[Billing] Plan resync failed for user %d: %v", uc.UserID, err)
		fm := fiber.Map{
			"type":    "error",
			"message": "Plan sync failed, please try again.",
		}
		return flash.WithError(c, fm).Redirect(constants.MembershipRoute)
	}

	// Session caches the plan for the navbar; refresh it right away.
	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, plan)

	fm := fiber.Map{
		"type":    "success",
		"message": "Your plan is up to date: " + plan,
	}
	return flash.WithSuccess(c, fm).Redirect(constants.MembershipRoute)
}
