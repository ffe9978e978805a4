package indices

import (
	"context"
	"fmt"

	"github.com/jimdaga/cost-model-service/internal/models"
	"gorm.io/gorm"
)

// Entry is the view of a price index handed to cost model generation.
type Entry struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Provider reads the current index snapshot from the database.
type Provider struct {
	db *gorm.DB
}

// NewProvider creates a snapshot provider backed by db.
func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db}
}

// Latest returns the most recent row of every index series, ordered by name.
func (p *Provider) Latest(ctx context.Context) ([]models.PriceIndex, error) {
	var rows []models.PriceIndex
	if err := p.db.WithContext(ctx).
		Order("name ASC").
		Order("date DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load price indices: %w", err)
	}

	latest := make([]models.PriceIndex, 0, len(rows))
	for _, row := range rows {
		if n := len(latest); n > 0 && latest[n-1].Name == row.Name {
			continue
		}
		latest = append(latest, row)
	}
	return latest, nil
}

// Snapshot returns {id, name, unit} for the latest row of every series.
func (p *Provider) Snapshot(ctx context.Context) ([]Entry, error) {
	latest, err := p.Latest(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(latest))
	for i, row := range latest {
		entries[i] = Entry{ID: row.ID, Name: row.Name, Unit: row.Unit}
	}
	return entries, nil
}
