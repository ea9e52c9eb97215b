package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
)

const lockPrefix = "shopledger:jobs:lock:"

// Singleton skips a task while another worker holds its lock. Cron entries
// fire on every scheduler replica, so scans guard against running twice.
type Singleton struct {
	locker *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSingleton builds a Singleton over client. ttl bounds how long a crashed
// worker can keep the lock.
func NewSingleton(client redislock.RedisClient, ttl time.Duration, logger *slog.Logger) *Singleton {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Singleton{locker: redislock.New(client), ttl: ttl, logger: logger}
}

// Wrap guards next with a lock named after the task type.
func (s *Singleton) Wrap(next asynq.HandlerFunc) asynq.HandlerFunc {
	if s == nil || s.locker == nil {
		return next
	}
	return func(ctx context.Context, task *asynq.Task) error {
		key := lockPrefix + task.Type()
		lock, err := s.locker.Obtain(ctx, key, s.ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger(s.logger).Info("task already running, skipping", slog.String("task", task.Type()))
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger(s.logger).Warn("release task lock", slog.String("task", task.Type()), slog.Any("error", err))
			}
		}()
		return next(ctx, task)
	}
}
