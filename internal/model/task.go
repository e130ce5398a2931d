package model

import "time"

// Task status
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"

	// TaskStatusNotFound is only ever reported, never stored
	TaskStatusNotFound TaskStatus = "not_found"
)

// IsTerminal reports whether no further transition can happen from s
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

// Task represents one unit of asynchronous effect work
type Task struct {
	ID          string        `json:"id"`
	Effect      string        `json:"effect"`
	Status      TaskStatus    `json:"status"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Retention   time.Duration `json:"retention"`
}

// Expired reports whether the task has outlived its retention window at now.
func (t *Task) Expired(now time.Time) bool {
	return t.Retention > 0 && now.Sub(t.CreatedAt) > t.Retention
}

// TaskJob contains the data the background worker needs for one task
type TaskJob struct {
	TaskID string            `json:"taskId"`
	Effect string            `json:"effect"`
	Params map[string]string `json:"params"`
}

// StartTaskResponse represents the response when a task is accepted
type StartTaskResponse struct {
	Success bool       `json:"success"`
	TaskID  string     `json:"taskId"`
	Status  TaskStatus `json:"status"`
}

// TaskStatusResponse represents the current state of a task
type TaskStatusResponse struct {
	Success        bool       `json:"success"`
	TaskID         string     `json:"taskId"`
	Status         TaskStatus `json:"status"`
	Result         string     `json:"result,omitempty"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	VideoURL       string     `json:"videoUrl,omitempty"`
	Error          string     `json:"error,omitempty"`
	ElapsedSeconds float64    `json:"elapsedSeconds,omitempty"`
	ProcessingTime float64    `json:"processingTime,omitempty"`
}
