// Package server assembles the HTTP API.
package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/cost-model-service/internal/articles"
	"github.com/jimdaga/cost-model-service/internal/health"
	"github.com/jimdaga/cost-model-service/internal/indices"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	apiPrefix   = "/api/v1"
	statusRoute = apiPrefix + "/articles/:id/status"
)

// Deps are the handlers and probes the router mounts.
type Deps struct {
	Articles *articles.Handlers
	Indices  *indices.Provider
	DB       health.Pinger
	Logger   *slog.Logger
}

// NewRouter builds the gin engine with health, metrics and the /api/v1 routes.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), Metrics())

	r.GET("/health", gin.WrapF(health.Handler))
	if deps.DB != nil {
		r.GET("/ready", gin.WrapF(health.ReadyHandler(deps.DB)))
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(apiPrefix)
	deps.Articles.Register(api)
	api.GET("/indices", indices.ListLatestHandler(deps.Indices))

	return r
}
