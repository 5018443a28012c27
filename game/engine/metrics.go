package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sokoban_macro_search_duration_seconds",
		Help:    "Time to enumerate all macro-moves of a board",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	}, []string{"mode"})

	searchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sokoban_macro_search_results",
		Help:    "Number of candidate boards per search",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sokoban_state_cache_lookups_total",
		Help: "Reachable-state cache lookups by outcome",
	}, []string{"outcome"})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sokoban_env_steps_total",
		Help: "Macro-move steps applied, by mode and result",
	}, []string{"mode", "result"})
)
