package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/makeasinger/fxgateway/internal/model"
)

// MemoryStore keeps tasks in a process-local map.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	now   func() time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for lazy expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-memory task store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tasks: make(map[string]*model.Task),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a new task
func (s *MemoryStore) Create(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	stored := *task
	s.tasks[task.ID] = &stored
	return nil
}

// Get returns a copy of the task, deleting it first if it has expired
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Task, error) {
	s.mu.RLock()
	task, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}

	if task.Expired(s.now()) {
		s.mu.Lock()
		if current, ok := s.tasks[id]; ok && current.Expired(s.now()) {
			delete(s.tasks, id)
		}
		s.mu.Unlock()
		return nil, ErrTaskNotFound
	}

	out := *task
	return &out, nil
}

// Complete marks a pending task as succeeded
func (s *MemoryStore) Complete(_ context.Context, id, result string) (*model.Task, error) {
	return s.transition(id, model.TaskStatusSuccess, result)
}

// Fail marks a pending task as failed
func (s *MemoryStore) Fail(_ context.Context, id, errMsg string) (*model.Task, error) {
	return s.transition(id, model.TaskStatusFailed, errMsg)
}

func (s *MemoryStore) transition(id string, status model.TaskStatus, value string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	updated, err := finalize(task, status, value, s.now())
	if err != nil {
		return nil, err
	}
	s.tasks[id] = updated

	out := *updated
	return &out, nil
}

// Sweep deletes every task whose retention window ended before now
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, task := range s.tasks {
		if task.Expired(now) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked tasks
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
