// Package processing runs the article analysis state machine:
// pending → processing → completed | failed.
package processing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/cost-model-service/internal/articles"
	"github.com/jimdaga/cost-model-service/internal/costmodel"
	"github.com/jimdaga/cost-model-service/internal/extraction"
	"github.com/jimdaga/cost-model-service/internal/indices"
	"github.com/jimdaga/cost-model-service/internal/models"
	"github.com/jimdaga/cost-model-service/internal/streams"
)

// failureWriteTimeout bounds recording a failure, independent of the run's
// own context which may already be cancelled or expired.
const failureWriteTimeout = 10 * time.Second

// Store is the persistence the state machine needs.
type Store interface {
	Get(ctx context.Context, id uint) (*models.Article, error)
	MarkProcessing(ctx context.Context, id uint, runID string, at time.Time) (bool, error)
	Complete(ctx context.Context, id uint, r articles.Results) error
	MarkFailed(ctx context.Context, id uint, message string, at time.Time) error
}

// WeightExtractor derives the unit weight from a specification document.
type WeightExtractor interface {
	ExtractWeight(ctx context.Context, content []byte, filename string) (extraction.Weight, error)
}

// CostModelGenerator allocates cost contributions across price indices.
type CostModelGenerator interface {
	Generate(ctx context.Context, in costmodel.Input) ([]costmodel.Entry, error)
}

// IndexSource supplies the current price index snapshot.
type IndexSource interface {
	Snapshot(ctx context.Context) ([]indices.Entry, error)
}

// Notifier receives lifecycle events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event streams.ArticleEvent) error
}

// Processor drives one article at a time through the pipeline. It holds no
// per-article state, so one Processor serves any number of concurrent runs.
type Processor struct {
	store     Store
	extractor WeightExtractor
	generator CostModelGenerator
	indices   IndexSource
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewProcessor wires the pipeline steps. notifier may be nil.
func NewProcessor(store Store, extractor WeightExtractor, generator CostModelGenerator, source IndexSource, notifier Notifier, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:     store,
		extractor: extractor,
		generator: generator,
		indices:   source,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process runs the state machine for articleID to a terminal state. Errors
// of the pipeline steps end in the failed state and are not returned; the
// returned error only reports that the state could not be recorded.
func (p *Processor) Process(ctx context.Context, articleID uint) error {
	runID := uuid.NewString()
	logger := p.logger.With("article_id", articleID, "run_id", runID)

	startedAt := p.now()
	started, err := p.store.MarkProcessing(ctx, articleID, runID, startedAt)
	if err != nil {
		// still pending, so the pending sweep will schedule it again
		return fmt.Errorf("failed to start run for article %d: %w", articleID, err)
	}
	if !started {
		logger.Info("Article is not pending, skipping run")
		runsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	logger.Info("Article processing started")
	p.notify(ctx, logger, streams.ArticleEvent{
		ArticleID: articleID,
		RunID:     runID,
		Status:    models.ArticleStatusProcessing,
		At:        startedAt,
	})

	entries, completedAt, err := p.runGuarded(ctx, logger, articleID)
	if err != nil {
		return p.fail(ctx, logger, articleID, runID, startedAt, err)
	}

	runsTotal.WithLabelValues(models.ArticleStatusCompleted).Inc()
	runDuration.WithLabelValues(models.ArticleStatusCompleted).Observe(completedAt.Sub(startedAt).Seconds())
	entriesTotal.Add(float64(entries))

	logger.Info("Article processing completed", "cost_model_entries", entries)
	p.notify(ctx, logger, streams.ArticleEvent{
		ArticleID: articleID,
		RunID:     runID,
		Status:    models.ArticleStatusCompleted,
		At:        completedAt,
	})
	return nil
}

// runGuarded is run with panics turned into errors, so a panicking step
// still ends the article in the failed state.
func (p *Processor) runGuarded(ctx context.Context, logger *slog.Logger, articleID uint) (entries int, completedAt time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Article processing panicked", "panic", r, "stack", string(debug.Stack()))
			entries, err = 0, fmt.Errorf("panic during processing: %v", r)
		}
	}()
	return p.run(ctx, logger, articleID)
}

// run performs the work of the processing state, completes the article and
// returns the number of persisted cost model entries.
func (p *Processor) run(ctx context.Context, logger *slog.Logger, articleID uint) (int, time.Time, error) {
	article, err := p.store.Get(ctx, articleID)
	if err != nil {
		return 0, time.Time{}, err
	}

	var filename string
	if article.ProductSpecificationFilename != nil {
		filename = *article.ProductSpecificationFilename
	}

	weight, err := p.extractor.ExtractWeight(ctx, article.ProductSpecificationFile, filename)
	if err != nil {
		return 0, time.Time{}, err
	}

	unitWeightKg := article.UnitWeight
	if weight.UnitWeightGrams != nil {
		kg := *weight.UnitWeightGrams / 1000.0
		unitWeightKg = &kg
		logger.Info("Extracted unit weight", "unit_weight_kg", kg, "unit_weight_grams", *weight.UnitWeightGrams)
	} else {
		logger.Info("No unit weight found in specification")
	}

	snapshot, err := p.indices.Snapshot(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to load price index snapshot: %w", err)
	}

	generated, err := p.generator.Generate(ctx, costmodel.Input{
		ArticleName:     article.ArticleName,
		Description:     article.Description,
		UnitWeightGrams: weight.UnitWeightGrams,
		Indices:         snapshot,
	})
	if err != nil {
		return 0, time.Time{}, err
	}

	entries := make([]models.CostModelEntry, len(generated))
	for i, e := range generated {
		entries[i] = models.CostModelEntry{ArticleID: articleID, IndexID: e.IndexID, Part: e.Part, Label: e.Label}
	}

	completedAt := p.now()
	if err := p.store.Complete(ctx, articleID, articles.Results{
		CompletedAt:         completedAt,
		UnitWeightKg:        unitWeightKg,
		ExtractedText:       weight.Text,
		ExtractedAttributes: weight.Raw,
		Entries:             entries,
	}); err != nil {
		return 0, time.Time{}, err
	}

	return len(entries), completedAt, nil
}

// fail records cause as the article's processing error in a fresh context.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, articleID uint, runID string, startedAt time.Time, cause error) error {
	message := failureMessage(cause)
	logger.Error("Article processing failed", "error", cause)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	failedAt := p.now()
	if err := p.store.MarkFailed(writeCtx, articleID, message, failedAt); err != nil {
		logger.Error("Failed to record processing failure", "error", err)
		return fmt.Errorf("failed to record failure of article %d: %w", articleID, err)
	}

	runsTotal.WithLabelValues(models.ArticleStatusFailed).Inc()
	runDuration.WithLabelValues(models.ArticleStatusFailed).Observe(failedAt.Sub(startedAt).Seconds())

	p.notify(writeCtx, logger, streams.ArticleEvent{
		ArticleID: articleID,
		RunID:     runID,
		Status:    models.ArticleStatusFailed,
		Error:     message,
		At:        failedAt,
	})
	return nil
}

func (p *Processor) notify(ctx context.Context, logger *slog.Logger, event streams.ArticleEvent) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		logger.Warn("Failed to publish article event", "status", event.Status, "error", err)
	}
}
