package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/cost-model-service/internal/config"
	"github.com/jimdaga/cost-model-service/internal/processing"
)

// Deps are the collaborators the asynq task handlers use.
type Deps struct {
	Processor *processing.Processor
	Pending   processing.PendingLister
	// Queue re-schedules stale pending articles found by the sweep task.
	Queue JobQueue
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, deps Deps) error {
	srv, mux, err := newServer(cfg, deps)
	if err != nil {
		return err
	}

	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, deps Deps) (stop func(), err error) {
	srv, mux, err := newServer(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, deps Deps) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     cfg.WorkerConcurrency,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessArticle, handleProcessArticle(logger, deps.Processor))
	mux.HandleFunc(TaskSweepPending, handleSweepPending(logger, deps.Pending, deps.Queue, cfg.PendingSweepAge))

	logger.Info("Worker starting", "concurrency", cfg.WorkerConcurrency)
	return srv, mux, nil
}

// handleProcessArticle runs the processing state machine for the article in
// the payload. Pipeline failures are recorded on the article by the state
// machine itself; an error here means the outcome could not be recorded.
func handleProcessArticle(logger *slog.Logger, processor *processing.Processor) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload processArticlePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.ArticleID == 0 {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing article:process task", "article_id", payload.ArticleID)

		return processor.Process(ctx, payload.ArticleID)
	}
}

// handleSweepPending re-schedules articles stuck in pending.
func handleSweepPending(logger *slog.Logger, pending processing.PendingLister, queue JobQueue, olderThan time.Duration) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := processing.RecoverPending(ctx, pending, queue, olderThan, logger)
		if err != nil {
			return fmt.Errorf("pending sweep failed after %d article(s): %w", n, err)
		}
		return nil
	}
}

// makeErrorHandler logs tasks that returned an error. Process tasks run
// without retries, so every failure here is final for that delivery.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		taskID, _ := asynq.GetTaskID(ctx)
		attrs := []any{"task_type", task.Type(), "task_id", taskID, "error", err.Error()}

		if task.Type() == TaskProcessArticle {
			var payload processArticlePayload
			if json.Unmarshal(task.Payload(), &payload) == nil {
				attrs = append(attrs, "article_id", payload.ArticleID)
			}
		}

		logger.Error("Task execution failed", attrs...)
	}
}
