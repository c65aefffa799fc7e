// handlers/project_routes.go
package handlers

import (
	"devquest/middleware"
	"devquest/models"
	"devquest/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProjectRoutes(api fiber.Router, projectService *services.ProjectService) {
	secured := api.Group("/projects", middleware.AuthRequired())

	secured.Post("/create", func(c *fiber.Ctx) error {
		var req services.CreateProjectInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		project, err := projectService.Create(c.UserContext(), middleware.GetUserID(c), req)
		if err != nil {
			return respondError(c, "create project", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Project created.", "project": project})
	})

	secured.Get("/all", func(c *fiber.Ctx) error {
		projects, err := projectService.All(c.UserContext())
		if err != nil {
			return respondError(c, "list projects", err)
		}
		return c.JSON(fiber.Map{"message": "Projects fetched.", "projects": projects})
	})

	secured.Get("/", func(c *fiber.Ctx) error {
		projects, err := projectService.Mine(c.UserContext(), middleware.GetUserID(c))
		if err != nil {
			return respondError(c, "my projects", err)
		}
		return c.JSON(fiber.Map{"message": "Projects fetched.", "projects": projects})
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		project, err := projectService.ByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, "get project", err)
		}
		return c.JSON(fiber.Map{"message": "Project fetched.", "project": project})
	})

	secured.Put("/:id/assign-pm", func(c *fiber.Ctx) error {
		var req struct {
			PMID string `json:"pm_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		project, err := projectService.AssignPM(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req.PMID)
		return projectReply(c, "assign pm", "PM assigned.", project, err)
	})

	secured.Put("/:id/members", func(c *fiber.Ctx) error {
		var req struct {
			DeveloperID string `json:"developer_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		project, err := projectService.AddMember(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req.DeveloperID)
		return projectReply(c, "add member", "Member added.", project, err)
	})

	secured.Put("/:id/settings", func(c *fiber.Ctx) error {
		var req services.ProjectSettingsInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		project, err := projectService.UpdateSettings(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req)
		return projectReply(c, "update settings", "Settings updated.", project, err)
	})

	secured.Put("/:id/accept", func(c *fiber.Ctx) error {
		project, err := projectService.Accept(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		return projectReply(c, "accept project", "Project accepted.", project, err)
	})

	secured.Put("/:id/start", func(c *fiber.Ctx) error {
		project, err := projectService.Start(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		return projectReply(c, "start project", "Project started.", project, err)
	})

	secured.Put("/:id/cancel", func(c *fiber.Ctx) error {
		project, err := projectService.Cancel(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		return projectReply(c, "cancel project", "Project cancelled.", project, err)
	})

	secured.Put("/:id/complete", func(c *fiber.Ctx) error {
		project, awarded, err := projectService.Complete(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		if err != nil {
			return respondError(c, "complete project", err)
		}
		return c.JSON(fiber.Map{
			"message": "Project completed and XP distributed.",
			"project": project,
			"awarded": awarded,
		})
	})
}

func projectReply(c *fiber.Ctx, op, message string, project *models.Project, err error) error {
	if err != nil {
		return respondError(c, op, err)
	}
	return c.JSON(fiber.Map{"message": message, "project": project})
}
