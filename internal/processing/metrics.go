package processing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_article_runs_total",
			Help: "Article processing runs by outcome (completed, failed, skipped)",
		},
		[]string{"outcome"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cms_article_run_duration_seconds",
			Help:    "Duration of article processing runs from start to terminal state",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	entriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cms_cost_model_entries_total",
		Help: "Cost model entries persisted by completed runs",
	})
)
