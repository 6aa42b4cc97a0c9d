package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/internal/pkg/constants"
	"github.com/mkarst/CertForge/internal/pkg/entitlements"
	icuser "github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// RequirePro gates a web route behind an active Pro or Premium subscription.
func RequirePro(c *fiber.Ctx) error {
	return requireTier(c, entitlements.TierPro, false)
}

// RequirePremium gates a web route behind an active Premium subscription.
func RequirePremium(c *fiber.Ctx) error {
	return requireTier(c, entitlements.TierPremium, false)
}

// RequireAPIPro is the JSON variant of RequirePro for API routes.
func RequireAPIPro(c *fiber.Ctx) error {
	return requireTier(c, entitlements.TierPro, true)
}

// RequireAPIPremium is the JSON variant of RequirePremium for API routes.
func RequireAPIPremium(c *fiber.Ctx) error {
	return requireTier(c, entitlements.TierPremium, true)
}

func requireTier(c *fiber.Ctx, tier entitlements.Tier, api bool) error {
	uc := icuser.GetUserContext(c)
	if !uc.IsLoggedIn {
		if api {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
		}
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	}

	ent, err := entitlements.GetResolver().Resolve(uc.UserID)
	if err != nil {
		log.Printf("entitlement check failed for user %d: %v", uc.UserID, err)
		ent = entitlements.Free()
	}

	allowed := ent.IsPremium
	if tier == entitlements.TierPro {
		allowed = allowed || ent.IsPro
	}
	if allowed {
		return c.Next()
	}

	if api {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "This feature requires a " + string(tier) + " subscription",
		})
	}
	fm := fiber.Map{
		"type":    "error",
		"message": "This feature requires a " + string(tier) + " subscription.",
	}
	return flash.WithError(c, fm).Redirect(constants.MembershipRoute)
}
