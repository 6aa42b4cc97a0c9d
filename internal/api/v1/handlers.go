package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/mkarst/CertForge/app/controllers"
)

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the v1 endpoints
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetUserProfile returns account information for the authenticated user.
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetUserEntitlement returns the computed plan flags for the authenticated user.
func (s *APIServer) GetUserEntitlement(c *fiber.Ctx) error {
	return controllers.HandleGetUserEntitlement(c)
}

// GetUserAttempts lists the authenticated user's quiz attempts.
func (s *APIServer) GetUserAttempts(c *fiber.Ctx) error {
	return controllers.HandleGetUserAttempts(c)
}

// RegisterHandlers wires the v1 endpoints onto the group. Authentication
// middleware is attached per-route by the caller's router, except ping
// which stays public.
func RegisterHandlers(router fiber.Router, s *APIServer, authMiddleware fiber.Handler) {
	router.Get("/ping", s.GetPing)

	protected := router.Group("", authMiddleware)
	protected.Get("/user/profile", s.GetUserProfile)
	protected.Get("/user/entitlement", s.GetUserEntitlement)
	protected.Get("/user/attempts", s.GetUserAttempts)
}
