package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/makeasinger/fxgateway/internal/model"
)

// Client represents a WebSocket subscriber for one task
type Client struct {
	TaskID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by task ID
	clients map[string]map[*Client]bool

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Broadcast messages to task subscribers
	broadcast chan *BroadcastMessage

	done chan struct{}
	mu   sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	TaskID  string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop; it returns after Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.TaskID] == nil {
				h.clients[client.TaskID] = make(map[*Client]bool)
			}
			h.clients[client.TaskID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for task %s", client.TaskID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			log.Printf("Client unregistered from task %s", client.TaskID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients[msg.TaskID] {
				select {
				case client.Send <- msg.Message:
				default:
					log.Printf("Subscriber queue full, dropping message for task %s", msg.TaskID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop terminates the main loop
func (h *Hub) Stop() {
	close(h.done)
}

// remove drops a client; callers hold mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.TaskID]
	if !ok {
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		close(client.Send)
		if len(clients) == 0 {
			delete(h.clients, client.TaskID)
		}
	}
}

// Subscribers returns the number of clients watching a task
func (h *Hub) Subscribers(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[taskID])
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// TaskFinished pushes the terminal state of a task to its subscribers
func (h *Hub) TaskFinished(task *model.Task) {
	msg := model.WSStatusMessage{
		Type:   model.WSMessageTypeStatus,
		TaskID: task.ID,
		Effect: task.Effect,
		Status: task.Status,
		Result: task.Result,
		Error:  task.Error,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal status message: %v", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{TaskID: task.ID, Message: data}:
	default:
		log.Printf("Broadcast queue full, dropping status for task %s", task.ID)
	}
}

// HandleConnection serves a WebSocket subscriber. snapshot, when non-nil, is called
// once the client is registered and its message is queued first, so subscribers that
// connect around completion still see the outcome.
func (h *Hub) HandleConnection(c *websocket.Conn, taskID string, snapshot func() []byte) {
	client := &Client{
		TaskID: taskID,
		Conn:   c,
		Send:   make(chan []byte, 16),
	}

	h.Register(client)
	defer h.Unregister(client)

	if snapshot != nil {
		if data := snapshot(); data != nil {
			select {
			case client.Send <- data:
			default:
			}
		}
	}

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
