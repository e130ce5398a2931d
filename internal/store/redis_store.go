package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/fxgateway/internal/model"
)

const (
	taskKeyPrefix    = "fxgateway:task:"
	defaultTaskTTL   = 24 * time.Hour
	maxWatchAttempts = 5
)

// RedisStore keeps tasks in Redis. Key TTLs enforce the retention window,
// so records survive process restarts and are shared between replicas.
type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisStore creates a task store backed by the given client
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		now:   time.Now,
	}
}

// Create saves a new task with a TTL equal to its retention window
func (s *RedisStore) Create(ctx context.Context, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ttl := task.Retention
	if ttl <= 0 {
		ttl = defaultTaskTTL
	}

	created, err := s.redis.SetNX(ctx, taskKey(task.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	if !created {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	return nil
}

// Get loads a task by id
func (s *RedisStore) Get(ctx context.Context, id string) (*model.Task, error) {
	data, err := s.redis.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	task, err := decodeTask(data)
	if err != nil {
		return nil, err
	}

	if task.Expired(s.now()) {
		s.redis.Del(ctx, taskKey(id))
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// Complete marks a pending task as succeeded
func (s *RedisStore) Complete(ctx context.Context, id, result string) (*model.Task, error) {
	return s.transition(ctx, id, model.TaskStatusSuccess, result)
}

// Fail marks a pending task as failed
func (s *RedisStore) Fail(ctx context.Context, id, errMsg string) (*model.Task, error) {
	return s.transition(ctx, id, model.TaskStatusFailed, errMsg)
}

// Sweep is a no-op: Redis expires task keys on its own.
func (s *RedisStore) Sweep(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) transition(ctx context.Context, id string, status model.TaskStatus, value string) (*model.Task, error) {
	key := taskKey(id)
	var updated *model.Task

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrTaskNotFound
			}
			return err
		}

		task, err := decodeTask(data)
		if err != nil {
			return err
		}

		updated, err = finalize(task, status, value, s.now())
		if err != nil {
			return err
		}

		out, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchAttempts; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrTaskFinalized) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	return nil, fmt.Errorf("failed to update task %s: too many concurrent writers", id)
}

func decodeTask(data []byte) (*model.Task, error) {
	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func taskKey(id string) string {
	return taskKeyPrefix + id
}
