// Package streams publishes article lifecycle events to a Redis Stream so
// other services can react to finished analyses without polling.
package streams

import "time"

// Stream name constants
const (
	StreamArticleEvents = "article:events"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// ArticleEvent is one processing status transition of an article.
type ArticleEvent struct {
	ArticleID uint      `json:"article_id"`
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`          // processing/completed/failed
	Error     string    `json:"error,omitempty"` // processing_error when failed
	At        time.Time `json:"at"`
}
