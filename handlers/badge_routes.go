// handlers/badge_routes.go
package handlers

import (
	"devquest/middleware"
	"devquest/models"
	"devquest/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBadgeRoutes(api fiber.Router, badgeService *services.BadgeService, userService *services.UserService) {
	badges := api.Group("/badge")

	badges.Get("/", func(c *fiber.Ctx) error {
		list, err := badgeService.List(c.UserContext())
		if err != nil {
			return respondError(c, "list badges", err)
		}
		return c.JSON(fiber.Map{"message": "Badges fetched.", "badges": list})
	})

	badges.Get("/:id", func(c *fiber.Ctx) error {
		badge, err := badgeService.Get(c.UserContext(), c.Params("id"))
		return badgeReply(c, "get badge", "Badge fetched.", badge, err)
	})

	// Catalog changes are restricted to PMs.
	auth := middleware.AuthRequired()
	pmOnly := requireAction(userService, services.ActBadgeManage)

	badges.Post("/", auth, pmOnly, func(c *fiber.Ctx) error {
		var req services.BadgeInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		badge, err := badgeService.Create(c.UserContext(), req)
		if err != nil {
			return respondError(c, "create badge", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Badge created.", "badge": badge})
	})

	badges.Put("/:id", auth, pmOnly, func(c *fiber.Ctx) error {
		var req services.BadgeInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		badge, err := badgeService.Update(c.UserContext(), c.Params("id"), req)
		return badgeReply(c, "update badge", "Badge updated.", badge, err)
	})

	badges.Delete("/:id", auth, pmOnly, func(c *fiber.Ctx) error {
		if err := badgeService.Delete(c.UserContext(), c.Params("id")); err != nil {
			return respondError(c, "delete badge", err)
		}
		return c.JSON(fiber.Map{"message": "Badge deleted."})
	})

	badges.Post("/:id/icon", auth, pmOnly, func(c *fiber.Ctx) error {
		file, err := c.FormFile("icon")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Icon file is required."})
		}
		badge, err := badgeService.UploadIcon(c.UserContext(), c.Params("id"), file)
		return badgeReply(c, "upload badge icon", "Badge icon uploaded.", badge, err)
	})
}

// requireAction checks a subject-free policy action for the authenticated caller.
func requireAction(userService *services.UserService, action services.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := userService.FindByID(c.UserContext(), middleware.GetUserID(c))
		if err != nil {
			return respondError(c, string(action), err)
		}
		if err := services.Authorize(action, actor, services.Subject{}); err != nil {
			return respondError(c, string(action), err)
		}
		return c.Next()
	}
}

func badgeReply(c *fiber.Ctx, op, message string, badge *models.Badge, err error) error {
	if err != nil {
		return respondError(c, op, err)
	}
	return c.JSON(fiber.Map{"message": message, "badge": badge})
}
