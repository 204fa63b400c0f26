package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/velora-app/velora/app/models"
	"github.com/velora-app/velora/internal/pkg/database"
	"github.com/velora-app/velora/internal/pkg/entitlements"
	"github.com/velora-app/velora/internal/pkg/usercontext"
	"gorm.io/gorm"
)

// HandleMe returns the authenticated user's profile, subscription state and
// computed entitlements.
func HandleMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var user models.User
	if err := database.GetDB().First(&user, userCtx.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "user_lookup_failed"})
	}

	return c.JSON(fiber.Map{
		"user":         user,
		"entitlements": entitlements.ForUser(&user),
	})
}
