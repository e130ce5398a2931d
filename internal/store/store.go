// Package store keeps task records for the lifetime of their retention window.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/makeasinger/fxgateway/internal/model"
)

var (
	// ErrTaskNotFound is returned for ids that were never issued or have expired.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskFinalized is returned when a terminal task is asked to transition again.
	ErrTaskFinalized = errors.New("task already finalized")
)

// TaskStore defines the operations shared by every task backend.
//
// Create inserts a pending record. Complete and Fail move a pending record to its
// terminal state exactly once. Get hides expired records and may delete them.
// Sweep removes every record whose retention window ended before now.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	Complete(ctx context.Context, id, result string) (*model.Task, error)
	Fail(ctx context.Context, id, errMsg string) (*model.Task, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// finalize applies a terminal transition to a copy of task.
func finalize(task *model.Task, status model.TaskStatus, value string, now time.Time) (*model.Task, error) {
	if task.Status.IsTerminal() {
		return nil, ErrTaskFinalized
	}

	updated := *task
	updated.Status = status
	updated.CompletedAt = &now
	if status == model.TaskStatusSuccess {
		updated.Result = value
		updated.Error = ""
	} else {
		updated.Error = value
		updated.Result = ""
	}
	return &updated, nil
}
