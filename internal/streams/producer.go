package streams

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher appends article events to the article:events stream
type Publisher struct {
	rdb    *redis.Client
	maxLen int64
}

// NewPublisher creates a new Publisher instance
func NewPublisher(redisURL string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &Publisher{rdb: redis.NewClient(opts), maxLen: 10000}, nil
}

// Notify publishes event and discards the stream message id.
func (p *Publisher) Notify(ctx context.Context, event ArticleEvent) error {
	_, err := p.PublishArticleEvent(ctx, event)
	return err
}

// PublishArticleEvent publishes an event to the stream and returns its message id
func (p *Publisher) PublishArticleEvent(ctx context.Context, event ArticleEvent) (string, error) {
	values, err := eventValues(event)
	if err != nil {
		return "", err
	}

	result := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamArticleEvents,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*", // auto-generate ID
		Values: values,
	})

	if result.Err() != nil {
		return "", fmt.Errorf("failed to publish to stream: %w", result.Err())
	}

	return result.Val(), nil
}

// Close closes the Redis client connection
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

// eventValues builds the stream entry fields. status and article_id are
// duplicated outside the payload so consumers can filter without decoding.
func eventValues(event ArticleEvent) (map[string]interface{}, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return map[string]interface{}{
		"payload":        string(payload),
		"article_id":     event.ArticleID,
		"status":         event.Status,
		"published_at":   event.At.Unix(),
		"schema_version": SchemaVersionV1,
	}, nil
}
