package indices

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// IndexResponse is the JSON shape of one price index value.
type IndexResponse struct {
	ID           uint     `json:"id"`
	Name         string   `json:"name"`
	Date         string   `json:"date"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	PriceFactor  float64  `json:"price_factor"`
	ValuePerGram *float64 `json:"value_per_gram"`
	IsMaterial   bool     `json:"is_material"`
}

// ListLatestHandler returns the latest value of every price index
func ListLatestHandler(provider *Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		latest, err := provider.Latest(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list price indices", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list price indices"})
			return
		}

		resp := make([]IndexResponse, len(latest))
		for i, row := range latest {
			resp[i] = IndexResponse{
				ID:           row.ID,
				Name:         row.Name,
				Date:         row.Date.Format(time.DateOnly),
				Value:        row.Value,
				Unit:         row.Unit,
				PriceFactor:  row.PriceFactor,
				ValuePerGram: row.ValuePerGram,
				IsMaterial:   IsMassUnit(row.Unit),
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
