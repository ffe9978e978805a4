package indices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/cost-model-service/internal/models"
	"gorm.io/gorm"
)

// InitCatalog loads the catalog at path and syncs it into the database.
// An empty path is not an error; the database is used as-is.
func InitCatalog(ctx context.Context, db *gorm.DB, path string) (int, error) {
	if path == "" {
		return 0, nil
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		return 0, err
	}

	n, err := SyncCatalog(ctx, db, catalog)
	if err != nil {
		return n, err
	}

	slog.Info("Synced index catalog", "path", path, "series", len(catalog.Indices), "rows", n)
	return n, nil
}

// SyncCatalog upserts every observation of the catalog by (name, date) and
// returns the number of rows written.
func SyncCatalog(ctx context.Context, db *gorm.DB, catalog *Catalog) (int, error) {
	written := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, idx := range catalog.Indices {
			for _, v := range idx.Values {
				row, err := toRow(idx, v)
				if err != nil {
					return err
				}
				if err := upsertRow(tx, row); err != nil {
					return fmt.Errorf("failed to sync index %q at %s: %w", idx.Name, v.Date, err)
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func toRow(idx CatalogIndex, v CatalogValue) (models.PriceIndex, error) {
	date, err := time.Parse(catalogDateLayout, v.Date)
	if err != nil {
		return models.PriceIndex{}, fmt.Errorf("index %q has invalid date %q: %w", idx.Name, v.Date, err)
	}

	row := models.PriceIndex{
		Name:        idx.Name,
		Date:        date,
		Value:       v.Value,
		Unit:        idx.Unit,
		PriceFactor: idx.PriceFactor,
	}

	grams, isMass := GramsPerUnit(idx.Unit)
	if row.PriceFactor == 0 {
		row.PriceFactor = 1
		if isMass {
			row.PriceFactor = grams
		}
	}
	if isMass {
		perGram := v.Value / grams
		row.ValuePerGram = &perGram
	}

	return row, nil
}

func upsertRow(tx *gorm.DB, row models.PriceIndex) error {
	var existing models.PriceIndex
	err := tx.Where("name = ? AND date = ?", row.Name, row.Date).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(&row).Error
	}
	if err != nil {
		return err
	}

	return tx.Model(&existing).Updates(map[string]interface{}{
		"value":          row.Value,
		"unit":           row.Unit,
		"price_factor":   row.PriceFactor,
		"value_per_gram": row.ValuePerGram,
	}).Error
}
