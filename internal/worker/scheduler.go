package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/cost-model-service/internal/config"
)

// StartScheduler creates and starts an Asynq Scheduler that enqueues the
// pending sweep on cfg.PendingSweepSchedule. An empty schedule disables it
// and returns a no-op stop function.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	if cfg.PendingSweepSchedule == "" {
		slog.Info("Pending sweep schedule not configured, scheduler disabled")
		return func() {}, nil
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	task := asynq.NewTask(
		TaskSweepPending,
		nil, // Empty payload - handler queries all stale pending articles
		asynq.MaxRetry(0),
		asynq.Timeout(time.Minute),
		asynq.Retention(time.Hour),
		asynq.Unique(cfg.PendingSweepAge), // Prevent overlapping sweeps
	)

	entryID, err := scheduler.Register(cfg.PendingSweepSchedule, task)
	if err != nil {
		return nil, fmt.Errorf("failed to register pending sweep schedule: %w", err)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info(
		"Scheduler started",
		"schedule", cfg.PendingSweepSchedule,
		"entry_id", entryID,
	)

	return func() { scheduler.Shutdown() }, nil
}
