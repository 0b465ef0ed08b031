// Package metrics holds the Prometheus collectors for extraction and mapping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeUnsupported = "unsupported"
)

var (
	// Extractions counts extractor invocations by extractor and outcome.
	Extractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapipe_extractions_total",
			Help: "Extractor invocations by extractor and outcome",
		},
		[]string{"extractor", "outcome"},
	)

	ExtractionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metapipe_extraction_seconds",
			Help:    "Extractor run time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"extractor"},
	)

	// Values counts values written by the crosswalk, by direction (added/removed).
	Values = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapipe_values_total",
			Help: "Values added or removed by the crosswalk",
		},
		[]string{"direction"},
	)

	Actions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metapipe_actions_total",
			Help: "Metadata actions by token and result",
		},
		[]string{"action", "result"},
	)

	IngestedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "metapipe_ingested_files_total",
			Help: "Files ingested into the library",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
