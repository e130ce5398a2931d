package model

import "time"

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage is pushed to subscribers when a task reaches a terminal state
type WSStatusMessage struct {
	Type   string     `json:"type"`
	TaskID string     `json:"taskId"`
	Effect string     `json:"effect"`
	Status TaskStatus `json:"status"`
	Result string     `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// TaskEvent is published on the event bus for every task transition
type TaskEvent struct {
	TaskID    string     `json:"taskId"`
	Effect    string     `json:"effect"`
	Status    TaskStatus `json:"status"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	Timestamp time.Time  `json:"timestamp"`
}
