package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/app/repository"
)

const blogPageSize = 10

// HandleBlogIndex lists published posts, newest first.
func HandleBlogIndex(c *fiber.Ctx) error {
	page, err := strconv.Atoi(c.Query("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	postRepo := repository.GetGlobalFactory().GetPostRepository()

	posts, err := postRepo.GetPublished((page-1)*blogPageSize, blogPageSize)
	if err != nil {
		log.Errorf("[Blog] Failed to load posts: %v", err)
		posts = nil
	}

	total, err := postRepo.Count(true)
	if err != nil {
		total = 0
	}
	totalPages := int((total + blogPageSize - 1) / blogPageSize)

	return renderPage(c, "blog/index", "Blog", fiber.Map{
		"Flash":      flash.Get(c),
		"Posts":      posts,
		"Page":       page,
		"PrevPage":   page - 1,
		"NextPage":   page + 1,
		"TotalPages": totalPages,
	})
}

// HandleBlogPost renders a single published post.
func HandleBlogPost(c *fiber.Ctx) error {
	post, err := repository.GetGlobalFactory().GetPostRepository().GetBySlug(c.Params("slug"))
	if err != nil || !post.Published {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	return renderPage(c, "blog/post", post.Title, fiber.Map{
		"Post": post,
	})
}
