// Package metrics provides Prometheus collectors for the retrieval pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gmarcinek/semantic-k/internal/retrieval"
)

const namespace = "semantick"

// Retrieval implements retrieval.Recorder and records strategy decisions.
type Retrieval struct {
	languageSearches  *prometheus.CounterVec
	languageResults   *prometheus.CounterVec
	fallbackDecisions *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	strategies        *prometheus.CounterVec
}

var _ retrieval.Recorder = (*Retrieval)(nil)

// NewRetrieval registers its collectors on reg.
func NewRetrieval(reg prometheus.Registerer) *Retrieval {
	factory := promauto.With(reg)
	return &Retrieval{
		languageSearches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "language_searches_total",
				Help:      "Per-language search tasks by outcome",
			},
			[]string{"language", "outcome"},
		),
		languageResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "language_results_total",
				Help:      "Candidates contributed by each language before merging",
			},
			[]string{"language"},
		),
		fallbackDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_decisions_total",
				Help:      "Whether primary results triggered fallback languages",
			},
			[]string{"triggered"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of retrieval pipeline stages in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		strategies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategy_total",
				Help:      "Selected response strategies",
			},
			[]string{"strategy"},
		),
	}
}

func (r *Retrieval) LanguageSearched(language string, results int, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case results == 0:
		outcome = "empty"
	}
	r.languageSearches.WithLabelValues(language, outcome).Inc()
	r.languageResults.WithLabelValues(language).Add(float64(results))
}

func (r *Retrieval) FallbackDecision(triggered bool) {
	r.fallbackDecisions.WithLabelValues(strconv.FormatBool(triggered)).Inc()
}

func (r *Retrieval) StageDuration(stage string, elapsed time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *Retrieval) StrategySelected(strategy retrieval.Strategy) {
	r.strategies.WithLabelValues(string(strategy)).Inc()
}
