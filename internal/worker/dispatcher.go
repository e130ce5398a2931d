package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/fxgateway/internal/model"
)

// Task types
const (
	TaskTypeEffect = "effect:process"
	QueueEffects   = "effects"
)

// ErrDispatcherClosed is returned once a dispatcher has been shut down
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// Dispatcher hands accepted jobs to the background worker without blocking the caller
type Dispatcher interface {
	Dispatch(ctx context.Context, job *model.TaskJob) error
}

// Processor runs a single job to completion
type Processor interface {
	Process(ctx context.Context, job *model.TaskJob)
}

// LocalDispatcher runs every job on its own goroutine inside this process
type LocalDispatcher struct {
	processor Processor
	timeout   time.Duration

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher creates a dispatcher; timeout bounds each job, zero means none
func NewLocalDispatcher(processor Processor, timeout time.Duration) *LocalDispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		processor: processor,
		timeout:   timeout,
		base:      base,
		cancel:    cancel,
	}
}

// Dispatch starts the job. The request context is not inherited.
func (d *LocalDispatcher) Dispatch(_ context.Context, job *model.TaskJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func(job model.TaskJob) {
		defer d.wg.Done()

		ctx := d.base
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(d.base, d.timeout)
			defer cancel()
		}

		d.processor.Process(ctx, &job)
	}(*job)

	return nil
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends first the
// remaining jobs are cancelled and ctx.Err() is returned.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		log.Printf("[Task] shutdown deadline reached, cancelling running tasks")
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// AsynqDispatcher enqueues jobs for an asynq server
type AsynqDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewAsynqDispatcher creates a new asynq-backed dispatcher
func NewAsynqDispatcher(client *asynq.Client, timeout time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, timeout: timeout}
}

// Dispatch enqueues the job once; failed tasks are not retried
func (d *AsynqDispatcher) Dispatch(ctx context.Context, job *model.TaskJob) error {
	task, err := NewEffectTask(job)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueEffects),
		asynq.MaxRetry(0),
		asynq.TaskID(job.TaskID),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}

	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// NewEffectTask wraps a job as an asynq task
func NewEffectTask(job *model.TaskJob) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeEffect, data), nil
}
