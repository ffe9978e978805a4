// Package extraction derives structured attributes from specification
// documents with a language model.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jimdaga/cost-model-service/internal/llm"
)

const systemPrompt = "You extract product attributes from technical specification documents. Answer with JSON only."

const weightPromptTemplate = `Determine the weight of ONE unit of the product described in the specification below.

Rules:
- Convert the weight to grams. 1 kg = 1000 g, 1 lb = 453.592 g, 1 oz = 28.3495 g, 1 t = 1000000 g.
- If the document states no unit weight, use null. Do not guess from dimensions.
- Answer with a single JSON object with exactly one key, "unit_weight_grams", whose value is a number or null.

Example: {"unit_weight_grams": 2500}

File name: %s

Specification:
"""
%s
"""`

var weightSchema = llm.MustCompileSchema(`{
	"type": "object",
	"properties": {
		"unit_weight_grams": {"type": ["number", "null"], "minimum": 0}
	},
	"required": ["unit_weight_grams"],
	"additionalProperties": false
}`)

// Error is returned when the model call itself fails (transport, auth,
// timeout). A document without a weight is not an error.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("weight extraction failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Weight is the outcome of a successful extraction.
type Weight struct {
	// UnitWeightGrams is nil when the model found no weight or answered in
	// an unusable shape.
	UnitWeightGrams *float64
	// Text is the decoded, truncated document text that was sent.
	Text string
	// Raw is the validated model answer, nil when validation failed.
	Raw json.RawMessage
}

// Extractor asks a model for the unit weight of a documented product
type Extractor struct {
	llm       llm.Completer
	charLimit int
	maxTokens int
	logger    *slog.Logger
}

// NewExtractor creates an extractor sending at most charLimit characters of
// each document.
func NewExtractor(completer llm.Completer, charLimit int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		llm:       completer,
		charLimit: charLimit,
		maxTokens: 64,
		logger:    logger,
	}
}

// ExtractWeight decodes and truncates content, asks the model for the unit
// weight in grams and validates the answer. Failures of the model call are
// returned as *Error; a malformed answer yields a nil weight and a warning.
func (e *Extractor) ExtractWeight(ctx context.Context, content []byte, filename string) (Weight, error) {
	text := Truncate(DecodeText(content), e.charLimit)
	result := Weight{Text: text}

	if strings.TrimSpace(text) == "" {
		e.logger.Info("Specification has no text, skipping weight extraction", "filename", filename)
		return result, nil
	}

	answer, err := e.llm.Complete(ctx, llm.Request{
		Purpose:    llm.PurposeExtractWeight,
		System:     systemPrompt,
		Prompt:     fmt.Sprintf(weightPromptTemplate, filename, text),
		MaxTokens:  e.maxTokens,
		JSONObject: true,
	})
	if err != nil {
		return Weight{}, &Error{Err: err}
	}

	var parsed struct {
		UnitWeightGrams *float64 `json:"unit_weight_grams"`
	}
	if err := weightSchema.Decode(answer, &parsed); err != nil {
		e.logger.Warn("Unusable weight extraction answer, continuing without weight",
			"filename", filename,
			"error", err,
			"answer", Truncate(answer, 200),
		)
		return result, nil
	}

	result.UnitWeightGrams = parsed.UnitWeightGrams
	result.Raw = json.RawMessage(answer)
	return result, nil
}
