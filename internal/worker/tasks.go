package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskProcessArticle = "article:process"
	TaskSweepPending   = "article:sweep-pending"
)

type processArticlePayload struct {
	ArticleID uint `json:"article_id"`
}

// NewProcessArticleTask builds the task that runs the state machine for
// articleID. It is never retried: a failed run ends in the failed state and
// re-processing is an explicit decision. Duplicate deliveries are harmless
// because a run only starts from the pending state.
func NewProcessArticleTask(articleID uint, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(processArticlePayload{ArticleID: articleID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessArticle,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour),
	), nil
}

// AsynqQueue enqueues processing runs in Redis for the asynq worker. Jobs
// survive restarts of both the API process and the worker.
type AsynqQueue struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewAsynqQueue connects an asynq client to redisURL. timeout bounds each run.
func NewAsynqQueue(redisURL string, timeout time.Duration) (*AsynqQueue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &AsynqQueue{client: asynq.NewClient(opt), timeout: timeout}, nil
}

// Schedule enqueues a process task for articleID.
func (q *AsynqQueue) Schedule(ctx context.Context, articleID uint) error {
	task, err := NewProcessArticleTask(articleID, q.timeout)
	if err != nil {
		return fmt.Errorf("failed to build task for article %d: %w", articleID, err)
	}

	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue article %d: %w", articleID, err)
	}
	return nil
}

// Close closes the Asynq client connection gracefully.
func (q *AsynqQueue) Close() error {
	return q.client.Close()
}
