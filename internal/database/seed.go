package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jimdaga/cost-model-service/internal/indices"
	"github.com/jimdaga/cost-model-service/internal/models"
	"gorm.io/gorm"
)

// devCatalog holds a few months of the series the cost model usually draws on.
const devCatalog = `
indices:
  - name: "Aluminium [€/t] (Finanzen.net)"
    values:
      - {date: "2025-01-02", value: 2410.5}
      - {date: "2025-02-03", value: 2535.0}
      - {date: "2025-03-03", value: 2598.25}
  - name: "Stahl Warmband [€/t] (Eurofer)"
    values:
      - {date: "2025-01-02", value: 585.0}
      - {date: "2025-02-03", value: 602.0}
      - {date: "2025-03-03", value: 619.5}
  - name: "Kupfer [€/t] (Finanzen.net)"
    values:
      - {date: "2025-01-02", value: 8710.0}
      - {date: "2025-02-03", value: 8955.0}
      - {date: "2025-03-03", value: 9120.0}
  - name: "ABS Granulat [€/kg] (Plasticker)"
    values:
      - {date: "2025-01-02", value: 1.62}
      - {date: "2025-02-03", value: 1.66}
      - {date: "2025-03-03", value: 1.71}
  - name: "Arbeitskosten Deutschland [€/h] (Eurostat)"
    values:
      - {date: "2025-01-02", value: 41.3}
      - {date: "2025-03-03", value: 41.9}
  - name: "Strom [€/MWh] (Finanzen.net)"
    values:
      - {date: "2025-01-02", value: 118.4}
      - {date: "2025-02-03", value: 131.7}
      - {date: "2025-03-03", value: 109.2}
`

// SeedDevData populates an empty price index table with sample series for
// local development.
// Idempotent: skips if any index already exists.
func SeedDevData(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.PriceIndex{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count price indices: %w", err)
	}
	if count > 0 {
		slog.Info("Seed data already exists, skipping", "price_indices", count)
		return nil
	}

	catalog, err := indices.ParseCatalog([]byte(devCatalog))
	if err != nil {
		return err
	}

	n, err := indices.SyncCatalog(ctx, db, catalog)
	if err != nil {
		return fmt.Errorf("failed to seed price indices: %w", err)
	}

	slog.Info("Seeded dev data", "series", len(catalog.Indices), "price_indices", n)
	return nil
}
