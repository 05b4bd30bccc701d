package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sapliy/rental-ecosystem/pkg/observability"
)

// TaskQueue receives notification tasks from other services.
const TaskQueue = "notifications"

// Task is one queued notification request. ID makes redelivery idempotent.
type Task struct {
	ID string `json:"id"`
	CreateRequest
}

// Idempotency records which task ids were already processed.
type Idempotency interface {
	// Claim returns false when key was claimed before.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisIdempotency struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotency{client: client, ttl: ttl}
}

func (r *RedisIdempotency) Claim(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, key, "1", r.ttl).Result()
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func taskKey(id string) string { return "notif:task:" + id }

// Worker processes tasks from TaskQueue.
type Worker struct {
	notifier Notifier
	seen     Idempotency
	logger   *observability.Logger
}

// NewWorker builds a worker. seen may be nil, which disables deduplication.
func NewWorker(n Notifier, seen Idempotency, logger *observability.Logger) *Worker {
	return &Worker{notifier: n, seen: seen, logger: logger.With("component", "notification_worker")}
}

// ProcessTask is a RabbitMQ handler. A returned error dead-letters the message.
func (w *Worker) ProcessTask(ctx context.Context, body []byte) error {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.ID == "" {
		return fmt.Errorf("%w: task has no id", ErrInvalidRequest)
	}
	logger := w.logger.With("task_id", task.ID, "user_id", task.UserID)

	if w.seen != nil {
		first, err := w.seen.Claim(ctx, taskKey(task.ID))
		if err != nil {
			logger.Warn("idempotency check failed, processing anyway", "error", err)
		} else if !first {
			logger.Info("task already processed, skipping")
			return nil
		}
	}

	n, err := w.notifier.Notify(ctx, task.CreateRequest)
	switch {
	case err == nil:
		logger.Info("task processed", "notification_id", n.ID)
		return nil
	case errors.Is(err, ErrDuplicateReminder):
		return nil
	case errors.Is(err, ErrInvalidRequest), n != nil:
		// Either unfixable or already persisted; a redelivery must not create it twice.
		return err
	default:
		if w.seen != nil {
			if rerr := w.seen.Release(ctx, taskKey(task.ID)); rerr != nil {
				logger.Warn("failed to release idempotency key", "error", rerr)
			}
		}
		return err
	}
}
