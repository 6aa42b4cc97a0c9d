package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/app/repository"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

// HandleAdminPosts lists all blog posts including drafts.
func HandleAdminPosts(c *fiber.Ctx) error {
	posts, err := repository.GetGlobalFactory().GetPostRepository().GetAll(0, 100)
	if err != nil {
		log.Errorf("[Admin] Failed to load posts: %v", err)
		posts = nil
	}

	return renderPage(c, "admin/posts", "Posts", fiber.Map{
		"Flash": flash.Get(c),
		"Posts": posts,
	})
}

// HandleAdminPostEdit renders the post form, empty or prefilled.
func HandleAdminPostEdit(c *fiber.Ctx) error {
	var post *models.Post
	if idParam := c.Params("id"); idParam != "" {
		id, err := strconv.ParseUint(idParam, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
		}
		post, err = repository.GetGlobalFactory().GetPostRepository().GetByID(id)
		if err != nil {
			return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
		}
	}

	return renderPage(c, "admin/post_edit", "Edit post", fiber.Map{
		"Flash": flash.Get(c),
		"Post":  post,
	})
}

// HandleAdminPostStore creates or updates a post.
func HandleAdminPostStore(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	postRepo := repository.GetGlobalFactory().GetPostRepository()

	fm := fiber.Map{
		"type": "error",
	}

	title := strings.TrimSpace(c.FormValue("title"))
	slug := slugify(c.FormValue("slug"))
	content := c.FormValue("content")
	if title == "" || slug == "" || content == "" {
		fm["message"] = "Title, slug and content are required."

		return flash.WithError(c, fm).Redirect("/admin/posts")
	}

	var post *models.Post
	if idParam := c.Params("id"); idParam != "" {
		id, err := strconv.ParseUint(idParam, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
		}
		post, err = postRepo.GetByID(id)
		if err != nil {
			return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
		}
	} else {
		if exists, _ := postRepo.SlugExists(slug); exists {
			fm["message"] = "A post with this slug already exists."

			return flash.WithError(c, fm).Redirect("/admin/posts")
		}
		post = &models.Post{UserID: uint64(uc.UserID)}
	}

	post.Title = title
	post.Slug = slug
	post.Content = content
	post.Excerpt = strings.TrimSpace(c.FormValue("excerpt"))
	post.Published = c.FormValue("published") != ""

	var err error
	if post.ID == 0 {
		err = postRepo.Create(post)
	} else {
		err = postRepo.Update(post)
	}
	if err != nil {
		log.Errorf("[Admin] Failed to store post %s: %v", slug, err)
		fm["message"] = "Saving failed, please try again."

		return flash.WithError(c, fm).Redirect("/admin/posts")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Post saved.",
	}).Redirect("/admin/posts")
}

// HandleAdminPostDelete removes a post.
func HandleAdminPostDelete(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	if err := repository.GetGlobalFactory().GetPostRepository().Delete(id); err != nil {
		log.Errorf("[Admin] Failed to delete post %d: %v", id, err)
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "Deleting failed, please try again.",
		}).Redirect("/admin/posts")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Post deleted.",
	}).Redirect("/admin/posts")
}

// HandleAdminPages lists CMS pages with an inline create/edit form.
func HandleAdminPages(c *fiber.Ctx) error {
	pages, err := repository.GetGlobalFactory().GetPageRepository().GetAll()
	if err != nil {
		log.Errorf("[Admin] Failed to load pages: %v", err)
		pages = nil
	}

	return renderPage(c, "admin/pages", "Pages", fiber.Map{
		"Flash": flash.Get(c),
		"Pages": pages,
	})
}

// HandleAdminPageStore creates or updates a page keyed by slug.
func HandleAdminPageStore(c *fiber.Ctx) error {
	pageRepo := repository.GetGlobalFactory().GetPageRepository()

	fm := fiber.Map{
		"type": "error",
	}

	slug := slugify(c.FormValue("slug"))
	title := strings.TrimSpace(c.FormValue("title"))
	content := c.FormValue("content")
	if slug == "" || title == "" || content == "" {
		fm["message"] = "Title, slug and content are required."

		return flash.WithError(c, fm).Redirect("/admin/pages")
	}

	page, err := pageRepo.GetBySlug(slug)
	if err != nil {
		page = &models.Page{Slug: slug}
	}
	page.Title = title
	page.Content = content
	page.IsActive = c.FormValue("is_active") != ""

	if page.ID == 0 {
		err = pageRepo.Create(page)
	} else {
		err = pageRepo.Update(page)
	}
	if err != nil {
		log.Errorf("[Admin] Failed to store page %s: %v", slug, err)
		fm["message"] = "Saving failed, please try again."

		return flash.WithError(c, fm).Redirect("/admin/pages")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Page saved.",
	}).Redirect("/admin/pages")
}

// HandleAdminPageDelete removes a page.
func HandleAdminPageDelete(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusNotFound).Render("errors/404", fiber.Map{})
	}

	if err := repository.GetGlobalFactory().GetPageRepository().Delete(uint(id)); err != nil {
		log.Errorf("[Admin] Failed to delete page %d: %v", id, err)
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "Deleting failed, please try again.",
		}).Redirect("/admin/pages")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Page deleted.",
	}).Redirect("/admin/pages")
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == ' ' || r == '_':
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
