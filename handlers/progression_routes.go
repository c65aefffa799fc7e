// handlers/progression_routes.go
package handlers

import (
	"devquest/middleware"
	"devquest/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(api fiber.Router, progressionService *services.ProgressionService) {
	secured := api.Group("/user", middleware.AuthRequired())

	secured.Get("/progress", func(c *fiber.Ctx) error {
		report, err := progressionService.Progress(c.UserContext(), middleware.GetUserID(c))
		if err != nil {
			return respondError(c, "progress", err)
		}
		return c.JSON(fiber.Map{"message": "Progress fetched.", "progress": report})
	})
}
