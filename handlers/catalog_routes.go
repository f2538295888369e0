// handlers/catalog_routes.go
package handlers

import (
	"strconv"

	"quest-service/apperr"
	"quest-service/middleware"
	"quest-service/services"

	"github.com/gofiber/fiber/v2"
)

type CatalogHandler struct {
	Catalog    *services.CatalogService
	Reconciler *services.RewardReconciler
}

func SetupCatalogRoutes(app *fiber.App, catalog *services.CatalogService, reconciler *services.RewardReconciler) {
	h := &CatalogHandler{Catalog: catalog, Reconciler: reconciler}

	// 🔐 Admin only
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))
	admin.Get("/tasks", h.ListTasks)
	admin.Post("/tasks", h.CreateTask)
	admin.Put("/tasks/:id", h.UpdateTask)
	admin.Get("/completions/pending-rewards", h.PendingRewards)
}

func (h *CatalogHandler) ListTasks(c *fiber.Ctx) error {
	var active *bool
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperr.Validation("active must be true or false")
		}
		active = &v
	}
	tasks, err := h.Catalog.ListTasks(c.UserContext(), active)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tasks": tasks, "count": len(tasks)})
}

func (h *CatalogHandler) CreateTask(c *fiber.Ctx) error {
	var req services.CreateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	task, err := h.Catalog.CreateTask(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *CatalogHandler) UpdateTask(c *fiber.Ctx) error {
	var req services.UpdateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	task, err := h.Catalog.UpdateTask(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (h *CatalogHandler) PendingRewards(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	count, pending, err := h.Reconciler.Pending(c.UserContext(), limit)
	if err != nil {
		return apperr.Internal(err)
	}
	return c.JSON(fiber.Map{"pending": pending, "count": count})
}
