package handler

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/fxgateway/internal/effect"
	"github.com/makeasinger/fxgateway/internal/service"
	"github.com/makeasinger/fxgateway/internal/store"
	"github.com/makeasinger/fxgateway/pkg/response"
)

type EffectHandler struct {
	service *service.TaskService
}

func NewEffectHandler(svc *service.TaskService) *EffectHandler {
	return &EffectHandler{service: svc}
}

// Register mounts the effect routes on the API group
func (h *EffectHandler) Register(api fiber.Router) {
	api.Get("/effects", h.Catalogue)
	api.Post("/:effect/start-task", h.Start)
	api.Get("/:effect/status/:taskId", h.Status)
}

// Catalogue handles GET /api/effects
func (h *EffectHandler) Catalogue(c *fiber.Ctx) error {
	return response.OK(c, h.service.Catalogue())
}

// Start handles POST /api/:effect/start-task
func (h *EffectHandler) Start(c *fiber.Ctx) error {
	effectName := c.Params("effect")

	body := make(map[string]any)
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	result, err := h.service.StartTask(c.UserContext(), effectName, body)
	if err != nil {
		var verr *effect.ValidationError
		switch {
		case errors.As(err, &verr):
			var details interface{}
			if len(verr.Allowed) > 0 {
				details = fiber.Map{"field": verr.Field, "allowed": verr.Allowed}
			} else {
				details = fiber.Map{"field": verr.Field}
			}
			return response.ValidationError(c, verr.Message, details)
		case errors.Is(err, effect.ErrUnknownEffect):
			return response.NotFound(c, fmt.Sprintf("Unknown effect: %s", effectName))
		}
		log.Printf("[Task] start %s failed: %v", effectName, err)
		return response.ServiceError(c, "Failed to start task")
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/:effect/status/:taskId
func (h *EffectHandler) Status(c *fiber.Ctx) error {
	effectName := c.Params("effect")
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	result, err := h.service.GetStatus(c.UserContext(), effectName, taskID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTaskNotFound):
			return response.TaskNotFound(c, "Task not found or expired")
		case errors.Is(err, effect.ErrUnknownEffect):
			return response.NotFound(c, fmt.Sprintf("Unknown effect: %s", effectName))
		}
		log.Printf("[Task] status %s/%s failed: %v", effectName, taskID, err)
		return response.ServiceError(c, "Failed to load task")
	}

	// Failed tasks are still a successful lookup
	return response.OK(c, result)
}
