package models

import (
	"time"

	"gorm.io/gorm"
)

// PriceIndex is one dated value of a commodity, labor or energy price series.
// The pipeline only reads these rows.
type PriceIndex struct {
	gorm.Model
	Name         string    `gorm:"size:255;not null;uniqueIndex:idx_price_indices_name_date"`
	Date         time.Time `gorm:"type:date;not null;uniqueIndex:idx_price_indices_name_date"`
	Value        float64   `gorm:"not null"`
	Unit         string    `gorm:"size:64;not null"`
	PriceFactor  float64   `gorm:"not null;default:1"`
	ValuePerGram *float64  `gorm:"column:value_per_gram"` // set only for mass units
}
