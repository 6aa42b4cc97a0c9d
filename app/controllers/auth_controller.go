package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/mkarst/CertForge/app/models"
	"github.com/mkarst/CertForge/internal/pkg/database"
	"github.com/mkarst/CertForge/internal/pkg/env"
	"github.com/mkarst/CertForge/internal/pkg/mail"
	"github.com/mkarst/CertForge/internal/pkg/session"
	"github.com/mkarst/CertForge/internal/pkg/usercontext"
)

func HandleAuthLogin(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		var user models.User

		fm := fiber.Map{
			"type": "error",
		}

		// notice: in production you should not inform the user
		// with detailed messages about login failures
		result := database.GetDB().Where("email = ?", c.FormValue("email")).First(&user)
		if result.Error != nil {
			fm["message"] = "There is a problem with the login process"

			return flash.WithError(c, fm).Redirect("/login")
		}

		if !models.CheckPasswordHash(c.FormValue("password"), user.Password) {
			fm["message"] = "There is a problem with the login process"

			return flash.WithError(c, fm).Redirect("/login")
		}

		if !user.IsActive() {
			fm["message"] = "Please activate your account first. Check your mailbox."

			return flash.WithError(c, fm).Redirect("/login")
		}

		sess, err := session.GetSessionStore().Get(c)
		if err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)

			return flash.WithError(c, fm).Redirect("/login")
		}

		sess.Set(AUTH_KEY, true)
		sess.Set(USER_ID, user.ID)
		sess.Set(USER_NAME, user.Name)
		sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)

		if err := sess.Save(); err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)

			return flash.WithError(c, fm).Redirect("/login")
		}

		if user.OnboardingCompleted {
			_ = session.SetSessionValue(c, USER_ONBOARDED, "1")
		}

		database.GetDB().Model(&user).Update("last_login_at", time.Now())

		fm = fiber.Map{
			"type":    "success",
			"message": "Welcome back! Good luck studying.",
		}

		target := "/dashboard"
		if !user.OnboardingCompleted {
			target = "/onboarding"
		}
		return flash.WithSuccess(c, fm).Redirect(target)
	}

	return renderPage(c, "auth/login", "Login", fiber.Map{
		"Flash": flash.Get(c),
	})
}

func HandleAuthRegister(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		fm := fiber.Map{
			"type": "error",
		}

		name := c.FormValue("username")
		email := c.FormValue("email")
		password := c.FormValue("password")

		user, err := models.CreateUser(name, email, password)
		if err != nil {
			fm["message"] = fmt.Sprintf("registration failed: %s", err)

			return flash.WithError(c, fm).Redirect("/register")
		}

		if err := user.GenerateActivationToken(); err != nil {
			fm["message"] = "registration failed, please try again"

			return flash.WithError(c, fm).Redirect("/register")
		}

		now := time.Now()
		user.ActivationSentAt = &now

		if err := database.GetDB().Create(user).Error; err != nil {
			fm["message"] = "registration failed: email may already be in use"

			return flash.WithError(c, fm).Redirect("/register")
		}

		activationLink := fmt.Sprintf("%s/activate?token=%s", publicBaseURL(), user.ActivationToken)
		go func(to, name, link string) {
			if err := mail.SendActivationMail(to, name, link); err != nil {
				fmt.Printf("failed to send activation mail to %s: %v\n", to, err)
			}
		}(user.Email, user.Name, activationLink)

		fm = fiber.Map{
			"type":    "success",
			"message": "Account created! Please check your mailbox to activate it.",
		}

		return flash.WithSuccess(c, fm).Redirect("/login")
	}

	return renderPage(c, "auth/register", "Register", fiber.Map{
		"Flash": flash.Get(c),
	})
}

func HandleAuthActivate(c *fiber.Ctx) error {
	fm := fiber.Map{
		"type": "error",
	}

	token := c.Query("token")
	if token == "" {
		fm["message"] = "activation token missing"

		return flash.WithError(c, fm).Redirect("/login")
	}

	var user models.User
	result := database.GetDB().Where("activation_token = ?", token).First(&user)
	if result.Error != nil {
		fm["message"] = "invalid activation token"

		return flash.WithError(c, fm).Redirect("/login")
	}

	user.Status = models.STATUS_ACTIVE
	user.ActivationToken = ""
	if err := database.GetDB().Save(&user).Error; err != nil {
		fm["message"] = "activation failed, please try again"

		return flash.WithError(c, fm).Redirect("/login")
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "Your account is active. You can log in now.",
	}

	return flash.WithSuccess(c, fm).Redirect("/login")
}

func HandleAuthLogout(c *fiber.Ctx) error {
	fm := fiber.Map{
		"type": "error",
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		fm["message"] = "logged out (no sess)"

		return flash.WithError(c, fm).Redirect("/login")
	}

	if err := sess.Destroy(); err != nil {
		fm["message"] = fmt.Sprintf("something went wrong: %s", err)

		return flash.WithError(c, fm).Redirect("/login")
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "See you next study session!",
	}

	c.Locals(FROM_PROTECTED, false)
	c.Locals("USER_CONTEXT", usercontext.UserContext{})

	return flash.WithSuccess(c, fm).Redirect("/login")
}

func publicBaseURL() string {
	if domain := env.GetEnv("PUBLIC_DOMAIN", ""); domain != "" {
		return domain
	}
	return "http://localhost:" + env.GetEnv("APP_PORT", "8080")
}
