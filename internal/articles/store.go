// Package articles persists articles and their cost models and serves the
// analyze, status and result endpoints.
package articles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/cost-model-service/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no live article has the requested id.
	ErrNotFound = errors.New("article not found")
	// ErrDuplicateName is returned when an article with the same name exists.
	ErrDuplicateName = errors.New("article name already exists")
	// ErrStatusChanged is returned when a guarded transition finds the
	// article in a different status than required.
	ErrStatusChanged = errors.New("article processing status changed concurrently")
)

// Status is the polling view of an article.
type Status struct {
	ID                    uint       `json:"id"`
	ProcessingStatus      string     `json:"processing_status"`
	ProcessingError       *string    `json:"processing_error"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at"`
}

// Results is everything a successful run writes in its final transaction.
type Results struct {
	CompletedAt         time.Time
	UnitWeightKg        *float64
	ExtractedText       string
	ExtractedAttributes json.RawMessage
	Entries             []models.CostModelEntry
}

// Store reads and writes articles. Every status change is a conditional
// update on the expected current status, so transitions cannot go backwards.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new article in the pending state.
func (s *Store) Create(ctx context.Context, article *models.Article) error {
	article.ProcessingStatus = models.ArticleStatusPending
	article.ProcessingError = nil
	article.ProcessingStartedAt = nil
	article.ProcessingCompletedAt = nil

	if err := s.db.WithContext(ctx).Create(article).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

// NameExists reports whether a live article already uses name.
func (s *Store) NameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Article{}).Where("article_name = ?", name).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check article name: %w", err)
	}
	return count > 0, nil
}

// Get loads an article with its stored files and cost model entries.
func (s *Store) Get(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	err := s.db.WithContext(ctx).
		Preload("CostModelEntries", func(db *gorm.DB) *gorm.DB { return db.Order("index_id ASC") }).
		First(&article, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %d: %w", id, err)
	}
	return &article, nil
}

// Status reads only the processing columns of an article.
func (s *Store) Status(ctx context.Context, id uint) (*Status, error) {
	var st Status
	err := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Select("id", "processing_status", "processing_error", "processing_started_at", "processing_completed_at").
		Where("id = ?", id).
		Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load status of article %d: %w", id, err)
	}
	return &st, nil
}

// List returns articles newest first without their file contents.
func (s *Store) List(ctx context.Context, limit int) ([]models.Article, error) {
	var list []models.Article
	err := s.db.WithContext(ctx).
		Omit("product_specification_file", "drawing_file", "extracted_text").
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return list, nil
}

// MarkProcessing moves a pending article to processing and records when
// and by which run it started. It reports false when the article was not
// pending, which means another run owns it or it is already terminal.
func (s *Store) MarkProcessing(ctx context.Context, id uint, runID string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ? AND processing_status = ?", id, models.ArticleStatusPending).
		Updates(map[string]interface{}{
			"processing_status":     models.ArticleStatusProcessing,
			"processing_started_at": at,
			"processing_run_id":     runID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark article %d processing: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Complete writes the extracted attributes, inserts all cost model entries
// and moves the processing article to completed in one transaction. Either
// the article is completed with all of its results or nothing changes.
func (s *Store) Complete(ctx context.Context, id uint, r Results) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Article{}).
			Where("id = ? AND processing_status = ?", id, models.ArticleStatusProcessing).
			Updates(map[string]interface{}{
				"unit_weight":             r.UnitWeightKg,
				"extracted_text":          r.ExtractedText,
				"extracted_attributes":    datatypes.JSON(r.ExtractedAttributes),
				"processing_status":       models.ArticleStatusCompleted,
				"processing_completed_at": r.CompletedAt,
				"processing_error":        nil,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update article %d: %w", id, res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrStatusChanged
		}

		if len(r.Entries) == 0 {
			return nil
		}
		for i := range r.Entries {
			r.Entries[i].ArticleID = id
		}
		if err := tx.Create(&r.Entries).Error; err != nil {
			return fmt.Errorf("failed to insert cost model entries for article %d: %w", id, err)
		}
		return nil
	})
}

// MarkFailed moves a pending or processing article to failed with message.
// It runs in a new session on the root connection pool, never inside a
// caller's transaction, so it succeeds even after a failed transaction.
func (s *Store) MarkFailed(ctx context.Context, id uint, message string, at time.Time) error {
	res := s.db.Session(&gorm.Session{NewDB: true, Context: ctx}).
		Model(&models.Article{}).
		Where("id = ? AND processing_status IN ?", id, []string{models.ArticleStatusPending, models.ArticleStatusProcessing}).
		Updates(map[string]interface{}{
			"processing_status":       models.ArticleStatusFailed,
			"processing_error":        message,
			"processing_completed_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark article %d failed: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrStatusChanged
	}
	return nil
}

// StalePending returns ids of articles created before cutoff that are still
// pending, oldest first. A zero cutoff returns every pending article.
func (s *Store) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]uint, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("processing_status = ?", models.ArticleStatusPending)
	if !cutoff.IsZero() {
		query = query.Where("created_at < ?", cutoff)
	}

	var ids []uint
	err := query.
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending articles: %w", err)
	}
	return ids, nil
}
