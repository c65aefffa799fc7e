package handlers

import (
	"errors"

	"devquest/logger"
	"devquest/services"

	"github.com/gofiber/fiber/v2"
)

// respondError writes {message} with the status carried by a services.AppError.
// Anything else is reported as a generic 500; all 5xx are logged.
func respondError(c *fiber.Ctx, op string, err error) error {
	status := services.StatusOf(err)
	message := "Server error."
	var appErr *services.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= fiber.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"message": message})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body."})
}
