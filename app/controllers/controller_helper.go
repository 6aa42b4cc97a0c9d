package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

const (
	AUTH_KEY       string = "authenticated"
	USER_ID        string = "user_id"
	USER_NAME      string = "username"
	USER_IS_ADMIN  string = "isAdmin"
	USER_ONBOARDED string = "onboarded"
	FROM_PROTECTED string = "from_protected"
)

func isLoggedIn(c *fiber.Ctx) bool {
	var fromProtected bool
	if protectedValue := c.Locals(FROM_PROTECTED); protectedValue != nil {
		fromProtected = protectedValue.(bool)
	}

	return fromProtected
}

// ExtractUsername gets the username from Locals (set by middleware)
func ExtractUsername(c *fiber.Ctx) string {
	// Get from Locals (set by authentication middleware)
	if userNameValue := c.Locals(USER_NAME); userNameValue != nil {
		if userName, ok := userNameValue.(string); ok {
			return userName
		}
	}

	return ""
}

// renderPage is the shared wrapper for server-rendered pages. It merges the
// request's user context into the bind map so every template can show the
// login state and plan without per-handler plumbing.
func renderPage(c *fiber.Ctx, template string, title string, bind fiber.Map) error {
	if bind == nil {
		bind = fiber.Map{}
	}
	uc := usercontext.GetUserContext(c)
	bind["Title"] = title
	bind["IsLoggedIn"] = uc.IsLoggedIn
	bind["IsAdmin"] = uc.IsAdmin
	bind["Username"] = uc.Username
	bind["Plan"] = uc.Plan
	bind["Onboarded"] = uc.Onboarded
	if token, ok := c.Locals("csrf").(string); ok {
		bind["Csrf"] = token
	}
	return c.Render(template, bind)
}

// GetClientIP determines the actual client IP address considering proxies.
func GetClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	return c.IP()
}
