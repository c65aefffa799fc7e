// handlers/task_routes.go
package handlers

import (
	"devquest/middleware"
	"devquest/models"
	"devquest/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTaskRoutes(api fiber.Router, taskService *services.TaskService) {
	secured := api.Group("/tasks", middleware.AuthRequired())

	secured.Post("/create", func(c *fiber.Ctx) error {
		var req services.CreateTaskInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		task, err := taskService.Create(c.UserContext(), middleware.GetUserID(c), req)
		if err != nil {
			return respondError(c, "create task", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Task created.", "task": task})
	})

	secured.Put("/edit/:id", func(c *fiber.Ctx) error {
		var req services.EditTaskInput
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		task, err := taskService.Edit(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req)
		return taskReply(c, "edit task", "Task updated.", task, err)
	})

	secured.Put("/accept/:id", func(c *fiber.Ctx) error {
		task, err := taskService.Accept(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		return taskReply(c, "accept task", "Task accepted.", task, err)
	})

	secured.Put("/start/:id", func(c *fiber.Ctx) error {
		task, err := taskService.Start(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		return taskReply(c, "start task", "Task started.", task, err)
	})

	secured.Put("/review/:id", func(c *fiber.Ctx) error {
		task, err := taskService.Review(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		return taskReply(c, "review task", "Task submitted for review.", task, err)
	})

	secured.Put("/complete/:id", func(c *fiber.Ctx) error {
		task, update, err := taskService.Complete(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
		if err != nil {
			return respondError(c, "complete task", err)
		}
		return c.JSON(fiber.Map{
			"message":  "Task completed.",
			"task":     task,
			"progress": update,
		})
	})

	secured.Get("/all", func(c *fiber.Ctx) error {
		page, err := taskService.List(c.UserContext(), services.TaskQuery{
			Page:       c.QueryInt("page", 1),
			Limit:      c.QueryInt("limit", 10),
			Status:     c.Query("status"),
			ProjectID:  c.Query("projectId"),
			AssignedTo: c.Query("assignedTo"),
			Sort:       c.Query("sort", "latest"),
		})
		if err != nil {
			return respondError(c, "list tasks", err)
		}
		return c.JSON(fiber.Map{
			"message":     "Tasks fetched.",
			"tasks":       page.Tasks,
			"page":        page.Page,
			"limit":       page.Limit,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		})
	})

	secured.Get("/project/:projectId", func(c *fiber.Ctx) error {
		tasks, err := taskService.ByProject(c.UserContext(), c.Params("projectId"))
		if err != nil {
			return respondError(c, "project tasks", err)
		}
		return c.JSON(fiber.Map{"message": "Tasks fetched.", "tasks": tasks})
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		task, err := taskService.Get(c.UserContext(), c.Params("id"))
		return taskReply(c, "get task", "Task fetched.", task, err)
	})

	secured.Delete("/:id", func(c *fiber.Ctx) error {
		if err := taskService.Delete(c.UserContext(), middleware.GetUserID(c), c.Params("id")); err != nil {
			return respondError(c, "delete task", err)
		}
		return c.JSON(fiber.Map{"message": "Task deleted."})
	})

	secured.Post("/:id/comments", func(c *fiber.Ctx) error {
		var req struct {
			Message string `json:"message"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
		comment, err := taskService.AddComment(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req.Message)
		if err != nil {
			return respondError(c, "add comment", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Comment added.", "comment": comment})
	})

	secured.Post("/:id/attachments", func(c *fiber.Ctx) error {
		file, err := c.FormFile("file")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "File is required."})
		}
		attachment, err := taskService.AddAttachment(c.UserContext(), middleware.GetUserID(c), c.Params("id"), file)
		if err != nil {
			return respondError(c, "add attachment", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "File attached.", "attachment": attachment})
	})
}

func taskReply(c *fiber.Ctx, op, message string, task *models.Task, err error) error {
	if err != nil {
		return respondError(c, op, err)
	}
	return c.JSON(fiber.Map{"message": message, "task": task})
}
