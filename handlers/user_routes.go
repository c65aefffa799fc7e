// handlers/user_routes.go
package handlers

import (
	"devquest/middleware"
	"devquest/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(api fiber.Router, userService *services.UserService, loginLimiter fiber.Handler) {
	auth := api.Group("/auth/user")

	auth.Post("/register", func(c *fiber.Ctx) error {
		var req services.RegisterInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := userService.Register(c.UserContext(), req)
		if err != nil {
			return respondError(c, "register", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message": "User registered successfully.",
			"user":    res.User,
			"token":   res.Token,
		})
	})

	auth.Post("/login", loginLimiter, func(c *fiber.Ctx) error {
		var req services.LoginInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		res, err := userService.Login(c.UserContext(), req)
		if err != nil {
			return respondError(c, "login", err)
		}
		return c.JSON(fiber.Map{
			"message": "Login successful.",
			"user":    res.User,
			"token":   res.Token,
		})
	})

	auth.Get("/me", middleware.AuthRequired(), func(c *fiber.Ctx) error {
		user, err := userService.Me(c.UserContext(), middleware.GetUserID(c))
		if err != nil {
			return respondError(c, "me", err)
		}
		return c.JSON(fiber.Map{"message": "User fetched.", "user": user})
	})

	auth.Get("/all", middleware.AuthRequired(), func(c *fiber.Ctx) error {
		users, err := userService.List(c.UserContext(), c.Query("q"))
		if err != nil {
			return respondError(c, "list users", err)
		}
		return c.JSON(fiber.Map{"message": "Users fetched.", "users": users})
	})
}
