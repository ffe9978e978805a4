package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Article processing status constants
const (
	ArticleStatusPending    = "pending"
	ArticleStatusProcessing = "processing"
	ArticleStatusCompleted  = "completed"
	ArticleStatusFailed     = "failed"
)

// IsTerminalStatus reports whether no further transition may leave status.
func IsTerminalStatus(status string) bool {
	return status == ArticleStatusCompleted || status == ArticleStatusFailed
}

// Article is one product being cost-estimated, with its uploaded documents
// and the lifecycle of its background analysis.
type Article struct {
	gorm.Model
	ArticleName string   `gorm:"column:article_name;size:255;not null;uniqueIndex:idx_articles_article_name,where:deleted_at IS NULL"`
	Description *string  `gorm:"type:text"`
	UnitWeight  *float64 `gorm:"column:unit_weight"` // kilograms

	ExtractedText       *string        `gorm:"column:extracted_text;type:text"`
	ExtractedAttributes datatypes.JSON `gorm:"column:extracted_attributes"`

	ProductSpecificationFile     []byte  `gorm:"column:product_specification_file"`
	ProductSpecificationFilename *string `gorm:"column:product_specification_filename;size:255"`
	DrawingFile                  []byte  `gorm:"column:drawing_file"`
	DrawingFilename              *string `gorm:"column:drawing_filename;size:255"`

	ProcessingStatus      string     `gorm:"column:processing_status;size:50;not null;default:'pending';index"`
	ProcessingError       *string    `gorm:"column:processing_error;type:text"`
	ProcessingStartedAt   *time.Time `gorm:"column:processing_started_at"`
	ProcessingCompletedAt *time.Time `gorm:"column:processing_completed_at"`
	ProcessingRunID       *string    `gorm:"column:processing_run_id;size:36"`

	// Associations
	CostModelEntries []CostModelEntry `gorm:"foreignKey:ArticleID;constraint:OnDelete:CASCADE;"`
}
