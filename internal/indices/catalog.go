// Package indices loads price index series into the database and serves the
// latest-value snapshot that cost model generation works against.
package indices

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const catalogDateLayout = "2006-01-02"

// Catalog is the parsed index catalog file.
type Catalog struct {
	Indices []CatalogIndex `yaml:"indices"`
}

// CatalogIndex is one price series. Unit defaults to the unit found in the
// bracketed part of the name.
type CatalogIndex struct {
	Name        string         `yaml:"name"`
	Unit        string         `yaml:"unit"`
	PriceFactor float64        `yaml:"price_factor"`
	Values      []CatalogValue `yaml:"values"`
}

// CatalogValue is a single dated observation.
type CatalogValue struct {
	Date  string  `yaml:"date"`
	Value float64 `yaml:"value"`
}

// LoadCatalog reads and parses a catalog file with strict validation.
// Unknown keys are rejected so typos in hand-maintained files surface early.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML and validates every series.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to parse index catalog: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Indices))
	for i := range catalog.Indices {
		idx := &catalog.Indices[i]
		if idx.Name == "" {
			return nil, fmt.Errorf("index catalog entry %d missing required field: name", i)
		}
		if seen[idx.Name] {
			return nil, fmt.Errorf("index catalog lists %q twice", idx.Name)
		}
		seen[idx.Name] = true

		if idx.Unit == "" {
			idx.Unit = UnitFromName(idx.Name)
		}
		if idx.Unit == "" {
			return nil, fmt.Errorf("index %q has no unit and none can be derived from its name", idx.Name)
		}
		for _, v := range idx.Values {
			if _, err := time.Parse(catalogDateLayout, v.Date); err != nil {
				return nil, fmt.Errorf("index %q has invalid date %q: %w", idx.Name, v.Date, err)
			}
		}
	}

	return &catalog, nil
}
