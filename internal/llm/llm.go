// Package llm provides deterministic single-shot completion calls against
// hosted language models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request purposes, used for logging, metrics and the stub provider.
const (
	PurposeExtractWeight = "extract_weight"
	PurposeCostModel     = "cost_model"
)

// Request is one prompt sent to the model. Temperature is always zero.
type Request struct {
	Purpose   string
	System    string
	Prompt    string
	MaxTokens int
	// JSONObject asks the provider to constrain output to a single JSON object.
	JSONObject bool
}

// Completer sends a prompt and returns the model's text.
// An empty string with a nil error is a successful but empty answer; every
// failure is returned as *Error.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrNoCandidates is returned when the provider answers without any choice.
var ErrNoCandidates = errors.New("model returned no candidates")

// Error is the single failure type of every provider.
type Error struct {
	Provider string
	Purpose  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s request failed: %v", e.Provider, e.Purpose, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cms_llm_requests_total",
		Help: "Language model requests by provider, purpose and outcome",
	},
	[]string{"provider", "purpose", "outcome"},
)

func observe(provider, purpose string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
	}
	requestsTotal.WithLabelValues(provider, purpose, outcome).Inc()
}

// CleanText strips surrounding whitespace and Markdown code fences that
// models tend to wrap JSON answers in.
func CleanText(text string) string {
	clean := strings.TrimSpace(text)
	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimPrefix(clean, "```JSON")
		clean = strings.TrimPrefix(clean, "```")
		clean = strings.TrimSuffix(strings.TrimSpace(clean), "```")
	}
	return strings.TrimSpace(clean)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f(ctx, req).
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
