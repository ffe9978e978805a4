// Package costmodel allocates an article's cost across known price indices
// with a language model.
package costmodel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jimdaga/cost-model-service/internal/indices"
	"github.com/jimdaga/cost-model-service/internal/llm"
)

const systemPrompt = "You are a cost modeling assistant for manufactured parts. Answer with JSON only."

const promptTemplate = `Decompose the cost of the article below into contributions of the listed price indices.

Article name: %s
Description: %s
Unit weight: %s

Available price indices (id | name | unit):
%s

Rules:
- Only use ids from the list above.
- "part" is the quantity of the index's unit consumed by one article (for example kilograms of material, hours of labor, MWh of electricity).
- Leave out indices that do not contribute. An empty array is a valid answer.
- Answer with a JSON array of objects with the keys "index_id" (integer), "part" (number) and optionally "label" (short string).

Example: [{"index_id": 3, "part": 0.6, "label": "housing"}, {"index_id": 7, "part": 0.3}]`

var entriesSchema = llm.MustCompileSchema(`{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"index_id": {"type": "integer"},
			"part": {"type": "number"},
			"label": {"type": ["string", "null"]}
		},
		"required": ["index_id", "part"]
	}
}`)

// Error is returned when the cost model could not be obtained: the model
// call failed or its answer was not a valid allocation.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cost model generation failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Input describes the article to allocate.
type Input struct {
	ArticleName     string
	Description     *string
	UnitWeightGrams *float64
	Indices         []indices.Entry
}

// Entry is one validated contribution.
type Entry struct {
	IndexID uint    `json:"index_id"`
	Part    float64 `json:"part"`
	Label   *string `json:"label,omitempty"`
}

// answerEntry is one item as the model wrote it. The id is signed so that
// zero or negative ids decode and get dropped like any other unknown id.
type answerEntry struct {
	IndexID int64   `json:"index_id"`
	Part    float64 `json:"part"`
	Label   *string `json:"label"`
}

// Generator requests cost allocations from a model
type Generator struct {
	llm    llm.Completer
	logger *slog.Logger
}

// NewGenerator creates a generator using completer.
func NewGenerator(completer llm.Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: completer, logger: logger}
}

// Generate asks the model for an allocation over in.Indices and returns the
// entries whose ids exist in that snapshot, in the model's order. Parts are
// returned as given.
func (g *Generator) Generate(ctx context.Context, in Input) ([]Entry, error) {
	if len(in.Indices) == 0 {
		g.logger.Warn("No price indices available, skipping cost model generation", "article_name", in.ArticleName)
		return []Entry{}, nil
	}

	answer, err := g.llm.Complete(ctx, llm.Request{
		Purpose: llm.PurposeCostModel,
		System:  systemPrompt,
		Prompt:  buildPrompt(in),
	})
	if err != nil {
		return nil, &Error{Err: err}
	}

	var raw []answerEntry
	if err := entriesSchema.Decode(answer, &raw); err != nil {
		return nil, &Error{Err: err}
	}

	known := make(map[uint]bool, len(in.Indices))
	for _, idx := range in.Indices {
		known[idx.ID] = true
	}

	entries := make([]Entry, 0, len(raw))
	seen := make(map[uint]bool, len(raw))
	for _, item := range raw {
		if item.IndexID <= 0 || !known[uint(item.IndexID)] {
			g.logger.Warn("Dropping cost model entry for unknown index",
				"article_name", in.ArticleName,
				"index_id", item.IndexID,
			)
			continue
		}
		id := uint(item.IndexID)
		if seen[id] {
			g.logger.Warn("Dropping repeated cost model entry",
				"article_name", in.ArticleName,
				"index_id", id,
			)
			continue
		}
		seen[id] = true

		entry := Entry{IndexID: id, Part: item.Part, Label: item.Label}
		if entry.Label != nil && strings.TrimSpace(*entry.Label) == "" {
			entry.Label = nil
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func buildPrompt(in Input) string {
	description := "(none)"
	if in.Description != nil && strings.TrimSpace(*in.Description) != "" {
		description = strings.TrimSpace(*in.Description)
	}

	weight := "unknown"
	if in.UnitWeightGrams != nil {
		weight = strconv.FormatFloat(*in.UnitWeightGrams, 'f', -1, 64) + " g"
	}

	var list strings.Builder
	for _, idx := range in.Indices {
		fmt.Fprintf(&list, "%d | %s | %s\n", idx.ID, idx.Name, idx.Unit)
	}

	return fmt.Sprintf(promptTemplate, in.ArticleName, description, weight, strings.TrimRight(list.String(), "\n"))
}
