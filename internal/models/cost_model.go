package models

import "time"

// CostModelEntry attributes a part of an article's cost to one price index.
// Part is not clamped or normalized; it is whatever the generator allocated.
type CostModelEntry struct {
	ArticleID uint    `gorm:"primaryKey;autoIncrement:false"`
	IndexID   uint    `gorm:"column:index_id;primaryKey;autoIncrement:false"`
	Part      float64 `gorm:"not null"`
	Label     *string `gorm:"type:text"`
	CreatedAt time.Time
}
