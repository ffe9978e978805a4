package processing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jimdaga/cost-model-service/internal/articles"
	"github.com/jimdaga/cost-model-service/internal/costmodel"
	"github.com/jimdaga/cost-model-service/internal/extraction"
	"github.com/jimdaga/cost-model-service/internal/indices"
	"github.com/jimdaga/cost-model-service/internal/llm"
	"github.com/jimdaga/cost-model-service/internal/models"
	"github.com/jimdaga/cost-model-service/internal/streams"
	"github.com/jimdaga/cost-model-service/internal/testutil"
	"gorm.io/gorm"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type extractorFunc func(ctx context.Context, content []byte, filename string) (extraction.Weight, error)

func (f extractorFunc) ExtractWeight(ctx context.Context, content []byte, filename string) (extraction.Weight, error) {
	return f(ctx, content, filename)
}

type generatorFunc func(ctx context.Context, in costmodel.Input) ([]costmodel.Entry, error)

func (f generatorFunc) Generate(ctx context.Context, in costmodel.Input) ([]costmodel.Entry, error) {
	return f(ctx, in)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []streams.ArticleEvent
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event streams.ArticleEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Status
	}
	return out
}

func grams(v float64) extractorFunc {
	return func(ctx context.Context, content []byte, filename string) (extraction.Weight, error) {
		return extraction.Weight{UnitWeightGrams: &v, Text: string(content)}, nil
	}
}

func noWeight(ctx context.Context, content []byte, filename string) (extraction.Weight, error) {
	return extraction.Weight{Text: string(content)}, nil
}

func entries(list ...costmodel.Entry) generatorFunc {
	return func(ctx context.Context, in costmodel.Input) ([]costmodel.Entry, error) {
		return list, nil
	}
}

type fixture struct {
	db       *gorm.DB
	store    *articles.Store
	indices  []models.PriceIndex
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	return &fixture{
		db:       db,
		store:    articles.NewStore(db),
		indices:  testutil.SeedIndices(t, db, "Aluminium [€/t]", "Arbeitskosten [€/h]", "Strom [€/MWh]"),
		notifier: &recordingNotifier{},
	}
}

func (f *fixture) processor(ex WeightExtractor, gen CostModelGenerator) *Processor {
	return NewProcessor(f.store, ex, gen, indices.NewProvider(f.db), f.notifier, discard)
}

func (f *fixture) article(t *testing.T, name string) uint {
	t.Helper()
	filename := name + ".txt"
	a := &models.Article{
		ArticleName:                  name,
		ProductSpecificationFile:     []byte("Gewicht: 2,5 kg"),
		ProductSpecificationFilename: &filename,
	}
	if err := f.store.Create(context.Background(), a); err != nil {
		t.Fatalf("failed to create article: %v", err)
	}
	return a.ID
}

func (f *fixture) load(t *testing.T, id uint) *models.Article {
	t.Helper()
	a, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load article: %v", err)
	}
	return a
}

// assertConsistent checks the relations between status, error and timestamps.
func assertConsistent(t *testing.T, a *models.Article) {
	t.Helper()
	if (a.ProcessingStatus == models.ArticleStatusFailed) != (a.ProcessingError != nil) {
		t.Errorf("status %s with error %v", a.ProcessingStatus, a.ProcessingError)
	}
	if models.IsTerminalStatus(a.ProcessingStatus) != (a.ProcessingCompletedAt != nil) {
		t.Errorf("status %s with completed_at %v", a.ProcessingStatus, a.ProcessingCompletedAt)
	}
	if a.ProcessingStartedAt != nil && a.ProcessingCompletedAt != nil && a.ProcessingStartedAt.After(*a.ProcessingCompletedAt) {
		t.Errorf("started %v after completed %v", a.ProcessingStartedAt, a.ProcessingCompletedAt)
	}
}

func TestProcessStoresWeightInKilogramsAndEntries(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "bracket")

	var gotInput costmodel.Input
	gen := generatorFunc(func(ctx context.Context, in costmodel.Input) ([]costmodel.Entry, error) {
		gotInput = in
		return []costmodel.Entry{
			{IndexID: f.indices[0].ID, Part: 0.6},
			{IndexID: f.indices[1].ID, Part: 0.3},
		}, nil
	})

	if err := f.processor(grams(2500), gen).Process(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := f.load(t, id)
	assertConsistent(t, a)
	if a.ProcessingStatus != models.ArticleStatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", a.ProcessingStatus, a.ProcessingError)
	}
	if a.UnitWeight == nil || *a.UnitWeight != 2.5 {
		t.Errorf("expected 2.5 kg, got %v", a.UnitWeight)
	}
	if len(a.CostModelEntries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(a.CostModelEntries))
	}
	if a.CostModelEntries[0].Part != 0.6 || a.CostModelEntries[1].Part != 0.3 {
		t.Errorf("expected parts kept as given, got %+v", a.CostModelEntries)
	}
	if a.ExtractedText == nil || *a.ExtractedText != "Gewicht: 2,5 kg" {
		t.Errorf("expected extracted text cache, got %v", a.ExtractedText)
	}
	if a.ProcessingRunID == nil || *a.ProcessingRunID == "" {
		t.Error("expected run id to be recorded")
	}

	if gotInput.UnitWeightGrams == nil || *gotInput.UnitWeightGrams != 2500 {
		t.Errorf("expected generator to receive grams, got %v", gotInput.UnitWeightGrams)
	}
	if len(gotInput.Indices) != 3 {
		t.Errorf("expected generator to receive the full snapshot, got %d", len(gotInput.Indices))
	}

	got := f.notifier.statuses()
	if strings.Join(got, ",") != "processing,completed" {
		t.Errorf("unexpected events %v", got)
	}
}

func TestProcessWithoutWeightCompletes(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "cable")

	if err := f.processor(extractorFunc(noWeight), entries()).Process(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := f.load(t, id)
	assertConsistent(t, a)
	if a.ProcessingStatus != models.ArticleStatusCompleted {
		t.Fatalf("expected completed, got %s", a.ProcessingStatus)
	}
	if a.UnitWeight != nil {
		t.Errorf("expected weight to stay nil, got %v", *a.UnitWeight)
	}
	if len(a.CostModelEntries) != 0 {
		t.Errorf("expected no entries, got %d", len(a.CostModelEntries))
	}
}

func TestProcessExtractionTimeoutFails(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "housing")

	generatorCalled := false
	gen := generatorFunc(func(ctx context.Context, in costmodel.Input) ([]costmodel.Entry, error) {
		generatorCalled = true
		return nil, nil
	})
	ex := extractorFunc(func(ctx context.Context, content []byte, filename string) (extraction.Weight, error) {
		// status is observable as processing while the model call runs
		st, _ := f.store.Status(ctx, id)
		if st == nil || st.ProcessingStatus != models.ArticleStatusProcessing {
			t.Errorf("expected processing during extraction, got %+v", st)
		}
		return extraction.Weight{}, &extraction.Error{Err: &llm.Error{Provider: "openai", Purpose: llm.PurposeExtractWeight, Err: context.DeadlineExceeded}}
	})

	if err := f.processor(ex, gen).Process(context.Background(), id); err != nil {
		t.Fatalf("expected failure to be recorded, got %v", err)
	}

	a := f.load(t, id)
	assertConsistent(t, a)
	if a.ProcessingStatus != models.ArticleStatusFailed {
		t.Fatalf("expected failed, got %s", a.ProcessingStatus)
	}
	if a.ProcessingError == nil || !strings.Contains(*a.ProcessingError, "deadline exceeded") {
		t.Errorf("expected timeout message, got %v", a.ProcessingError)
	}
	if generatorCalled {
		t.Error("expected no cost model generation after extraction failure")
	}
	if len(a.CostModelEntries) != 0 {
		t.Errorf("expected no entries, got %d", len(a.CostModelEntries))
	}

	got := f.notifier.statuses()
	if strings.Join(got, ",") != "processing,failed" {
		t.Errorf("unexpected events %v", got)
	}
}

func TestProcessGenerationErrorFails(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "valve")

	gen := generatorFunc(func(ctx context.Context, in costmodel.Input) ([]costmodel.Entry, error) {
		return nil, &costmodel.Error{Err: &llm.SchemaError{Violations: []string{"/: expected array"}}}
	})

	f.processor(grams(120), gen).Process(context.Background(), id)

	a := f.load(t, id)
	assertConsistent(t, a)
	if a.ProcessingStatus != models.ArticleStatusFailed {
		t.Fatalf("expected failed, got %s", a.ProcessingStatus)
	}
	if a.UnitWeight != nil {
		t.Errorf("expected staged weight not to be persisted, got %v", *a.UnitWeight)
	}
}

func TestProcessPersistenceFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "flange")

	// the last row collides with the first on the (article, index) key
	gen := entries(
		costmodel.Entry{IndexID: f.indices[0].ID, Part: 0.5},
		costmodel.Entry{IndexID: f.indices[1].ID, Part: 0.2},
		costmodel.Entry{IndexID: f.indices[0].ID, Part: 0.1},
	)

	if err := f.processor(grams(800), gen).Process(context.Background(), id); err != nil {
		t.Fatalf("expected failure to be recorded, got %v", err)
	}

	a := f.load(t, id)
	assertConsistent(t, a)
	if a.ProcessingStatus != models.ArticleStatusFailed {
		t.Fatalf("expected failed, got %s", a.ProcessingStatus)
	}
	if a.UnitWeight != nil {
		t.Errorf("expected weight update to be rolled back, got %v", *a.UnitWeight)
	}

	var count int64
	f.db.Model(&models.CostModelEntry{}).Where("article_id = ?", id).Count(&count)
	if count != 0 {
		t.Errorf("expected zero entries after failed insert, got %d", count)
	}
}

func TestProcessRecordsFailureAfterRunContextIsCancelled(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "lever")

	ctx, cancel := context.WithCancel(context.Background())
	ex := extractorFunc(func(_ context.Context, content []byte, filename string) (extraction.Weight, error) {
		cancel()
		return extraction.Weight{}, &extraction.Error{Err: context.Canceled}
	})

	if err := f.processor(ex, entries()).Process(ctx, id); err != nil {
		t.Fatalf("expected failure to be recorded despite cancelled context, got %v", err)
	}

	a := f.load(t, id)
	if a.ProcessingStatus != models.ArticleStatusFailed {
		t.Errorf("expected failed, got %s", a.ProcessingStatus)
	}
}

func TestProcessPanickingStepFails(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "hinge")

	ex := extractorFunc(func(ctx context.Context, content []byte, filename string) (extraction.Weight, error) {
		var attrs map[string]string
		attrs["weight"] = "unknown"
		return extraction.Weight{}, nil
	})

	if err := f.processor(ex, entries()).Process(context.Background(), id); err != nil {
		t.Fatalf("expected panic to be recorded as a failure, got %v", err)
	}

	a := f.load(t, id)
	assertConsistent(t, a)
	if a.ProcessingStatus != models.ArticleStatusFailed {
		t.Fatalf("expected failed, got %s", a.ProcessingStatus)
	}
	if a.ProcessingError == nil || !strings.Contains(*a.ProcessingError, "panic during processing") {
		t.Errorf("expected panic in processing error, got %v", a.ProcessingError)
	}
	if got := f.notifier.statuses(); len(got) != 2 || got[1] != models.ArticleStatusFailed {
		t.Errorf("expected processing then failed events, got %v", got)
	}
}

func TestProcessRunsOnlyFromPending(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "gear")

	calls := 0
	ex := extractorFunc(func(ctx context.Context, content []byte, filename string) (extraction.Weight, error) {
		calls++
		return extraction.Weight{}, nil
	})
	p := f.processor(ex, entries())

	p.Process(context.Background(), id)
	first := f.load(t, id)

	if err := p.Process(context.Background(), id); err != nil {
		t.Fatalf("unexpected error on second delivery: %v", err)
	}
	second := f.load(t, id)

	if calls != 1 {
		t.Errorf("expected one run, got %d", calls)
	}
	if !first.ProcessingStartedAt.Equal(*second.ProcessingStartedAt) {
		t.Error("expected processing_started_at never to be reset")
	}
	if second.ProcessingStatus != models.ArticleStatusCompleted {
		t.Errorf("expected terminal state to stick, got %s", second.ProcessingStatus)
	}
}

func TestProcessNotifierErrorsAreNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("redis down")
	id := f.article(t, "pulley")

	f.processor(extractorFunc(noWeight), entries()).Process(context.Background(), id)

	if a := f.load(t, id); a.ProcessingStatus != models.ArticleStatusCompleted {
		t.Errorf("expected completed, got %s", a.ProcessingStatus)
	}
}

func TestStatusPollingIsMonotonic(t *testing.T) {
	f := newFixture(t)
	id := f.article(t, "shaft")

	release := make(chan struct{})
	ex := extractorFunc(func(ctx context.Context, content []byte, filename string) (extraction.Weight, error) {
		<-release
		return extraction.Weight{}, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.processor(ex, entries()).Process(context.Background(), id)
	}()

	rank := map[string]int{
		models.ArticleStatusPending:    0,
		models.ArticleStatusProcessing: 1,
		models.ArticleStatusCompleted:  2,
		models.ArticleStatusFailed:     2,
	}

	last := -1
	released := false
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := f.store.Status(context.Background(), id)
		if err != nil {
			t.Fatalf("unexpected status error: %v", err)
		}
		r := rank[st.ProcessingStatus]
		if r < last {
			t.Fatalf("status went backwards to %s", st.ProcessingStatus)
		}
		last = r
		if st.ProcessingStatus == models.ArticleStatusProcessing && !released {
			close(release)
			released = true
		}
		if models.IsTerminalStatus(st.ProcessingStatus) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !released {
		close(release)
	}

	<-done
	if last != 2 {
		t.Errorf("expected to observe a terminal state, last rank %d", last)
	}
}
