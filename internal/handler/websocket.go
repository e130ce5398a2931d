package handler

import (
	"context"
	"encoding/json"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/fxgateway/internal/model"
	"github.com/makeasinger/fxgateway/internal/service"
	ws "github.com/makeasinger/fxgateway/internal/websocket"
)

type WatchHandler struct {
	service *service.TaskService
	hub     *ws.Hub
}

func NewWatchHandler(svc *service.TaskService, hub *ws.Hub) *WatchHandler {
	return &WatchHandler{service: svc, hub: hub}
}

// Register mounts /ws/tasks/:taskId
func (h *WatchHandler) Register(app fiber.Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/tasks/:taskId", websocket.New(h.Watch))
}

// Watch streams the state of one task: a snapshot on connect, then its outcome
func (h *WatchHandler) Watch(c *websocket.Conn) {
	taskID := c.Params("taskId")

	if _, err := h.service.Lookup(context.Background(), taskID); err != nil {
		data, _ := json.Marshal(model.WSStatusMessage{
			Type:   model.WSMessageTypeStatus,
			TaskID: taskID,
			Status: model.TaskStatusNotFound,
			Error:  "Task not found or expired",
		})
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("WebSocket write error: %v", err)
		}
		return
	}

	h.hub.HandleConnection(c, taskID, func() []byte {
		task, err := h.service.Lookup(context.Background(), taskID)
		if err != nil {
			return nil
		}
		data, err := json.Marshal(model.WSStatusMessage{
			Type:   model.WSMessageTypeStatus,
			TaskID: task.ID,
			Effect: task.Effect,
			Status: task.Status,
			Result: task.Result,
			Error:  task.Error,
		})
		if err != nil {
			return nil
		}
		return data
	})
}
