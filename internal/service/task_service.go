package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/makeasinger/fxgateway/internal/effect"
	"github.com/makeasinger/fxgateway/internal/model"
	"github.com/makeasinger/fxgateway/internal/store"
	"github.com/makeasinger/fxgateway/internal/worker"
)

// TaskService starts effect tasks and reports their state
type TaskService struct {
	store            store.TaskStore
	dispatcher       worker.Dispatcher
	registry         *effect.Registry
	validate         *validator.Validate
	defaultRetention time.Duration
	now              func() time.Time
}

// NewTaskService creates a new task service. defaultRetention applies to effects
// that declare no retention of their own.
func NewTaskService(
	taskStore store.TaskStore,
	dispatcher worker.Dispatcher,
	registry *effect.Registry,
	defaultRetention time.Duration,
) *TaskService {
	return &TaskService{
		store:            taskStore,
		dispatcher:       dispatcher,
		registry:         registry,
		validate:         validator.New(),
		defaultRetention: defaultRetention,
		now:              time.Now,
	}
}

// StartTask validates the request, records a pending task and hands it to the worker
func (s *TaskService) StartTask(ctx context.Context, effectName string, body map[string]any) (*model.StartTaskResponse, error) {
	eff, err := s.registry.Get(effectName)
	if err != nil {
		return nil, err
	}

	params, err := eff.Validate(s.validate, body)
	if err != nil {
		return nil, err
	}

	retention := eff.Retention
	if retention <= 0 {
		retention = s.defaultRetention
	}

	task := &model.Task{
		ID:        uuid.New().String(),
		Effect:    eff.Name,
		Status:    model.TaskStatusPending,
		CreatedAt: s.now(),
		Retention: retention,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	job := &model.TaskJob{TaskID: task.ID, Effect: eff.Name, Params: params}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		// Never leave an unreachable pending record behind
		if _, ferr := s.store.Fail(context.WithoutCancel(ctx), task.ID, "failed to dispatch task"); ferr != nil {
			log.Printf("[Task] %s: failed to record dispatch failure: %v", task.ID, ferr)
		}
		return nil, fmt.Errorf("failed to dispatch task: %w", err)
	}

	log.Printf("[Task] %s accepted (%s)", task.ID, eff.Name)

	return &model.StartTaskResponse{
		Success: true,
		TaskID:  task.ID,
		Status:  task.Status,
	}, nil
}

// GetStatus reports the current state of a task started on effectName
func (s *TaskService) GetStatus(ctx context.Context, effectName, taskID string) (*model.TaskStatusResponse, error) {
	eff, err := s.registry.Get(effectName)
	if err != nil {
		return nil, err
	}

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Effect != eff.Name {
		return nil, store.ErrTaskNotFound
	}

	resp := &model.TaskStatusResponse{
		Success: task.Status != model.TaskStatusFailed,
		TaskID:  task.ID,
		Status:  task.Status,
	}

	switch task.Status {
	case model.TaskStatusPending:
		resp.ElapsedSeconds = seconds(s.now().Sub(task.CreatedAt))

	case model.TaskStatusSuccess:
		resp.Result = task.Result
		if eff.Media == model.MediaVideo {
			resp.VideoURL = task.Result
		} else {
			resp.ImageURL = task.Result
		}
		resp.ProcessingTime = processingTime(task)

	case model.TaskStatusFailed:
		resp.Error = task.Error
		resp.ProcessingTime = processingTime(task)
	}

	return resp, nil
}

// Catalogue lists every effect the gateway serves
func (s *TaskService) Catalogue() *model.EffectListResponse {
	effects := s.registry.All()
	resp := &model.EffectListResponse{
		Success: true,
		Effects: make([]model.EffectInfo, 0, len(effects)),
	}
	for _, eff := range effects {
		resp.Effects = append(resp.Effects, eff.Info())
	}
	return resp
}

// Lookup returns the raw task record regardless of effect
func (s *TaskService) Lookup(ctx context.Context, taskID string) (*model.Task, error) {
	return s.store.Get(ctx, taskID)
}

// IsNotFound reports whether err means the task or effect does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrTaskNotFound) || errors.Is(err, effect.ErrUnknownEffect)
}

func processingTime(task *model.Task) float64 {
	if task.CompletedAt == nil {
		return 0
	}
	return seconds(task.CompletedAt.Sub(task.CreatedAt))
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return math.Round(d.Seconds()*10) / 10
}
