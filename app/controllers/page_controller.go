package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/database"
)

// HandlePage renders an active CMS page by slug.
func HandlePage(c *fiber.Ctx) error {
	page, err := models.FindPageBySlug(database.GetDB(), c.Params("slug"))
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("[Page] Failed to load page %s: %v", c.Params("slug"), err)
		}
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	return renderPage(c, "page", page.Title, fiber.Map{
		"Page": page,
	})
}
